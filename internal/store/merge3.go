package store

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// editChunk is one contiguous replacement of base lines [start, end) by repl.
type editChunk struct {
	start, end int
	repl       []string
}

// splitLines splits into lines, each keeping its trailing newline. A final
// fragment without a newline is returned as-is.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			lines = append(lines, s)
			return lines
		}
		lines = append(lines, s[:i+1])
		s = s[i+1:]
		if s == "" {
			return lines
		}
	}
}

// editChunks computes the line-level edit script from base to side, anchored
// at base line indices.
func editChunks(base, side string) []editChunk {
	dmp := diffmatchpatch.New()
	c1, c2, lineArray := dmp.DiffLinesToChars(base, side)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(c1, c2, false), lineArray)

	var chunks []editChunk
	basePos := 0
	var cur *editChunk
	flush := func() {
		if cur != nil {
			chunks = append(chunks, *cur)
			cur = nil
		}
	}
	open := func() *editChunk {
		if cur == nil {
			cur = &editChunk{start: basePos, end: basePos}
		}
		return cur
	}
	for _, d := range diffs {
		lines := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			basePos += len(lines)
		case diffmatchpatch.DiffDelete:
			c := open()
			basePos += len(lines)
			c.end = basePos
		case diffmatchpatch.DiffInsert:
			c := open()
			c.repl = append(c.repl, lines...)
		}
	}
	flush()
	return chunks
}

func sameLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ensureNewline terminates the last line so conflict markers stay on their
// own lines.
func ensureNewline(lines []string) []string {
	if n := len(lines); n > 0 && !strings.HasSuffix(lines[n-1], "\n") {
		out := make([]string, n)
		copy(out, lines)
		out[n-1] += "\n"
		return out
	}
	return lines
}

// mergeLines performs a diff3-style merge of target and other against base.
// Non-overlapping edits from both sides are combined; overlapping edits that
// disagree produce a conflict region with markers. Returns the merged text
// and whether the merge was clean.
func mergeLines(base, target, other string) (string, bool) {
	baseLines := splitLines(base)
	a := editChunks(base, target)
	b := editChunks(base, other)

	overlaps := func(x, y editChunk) bool {
		if x.start < y.end && y.start < x.end {
			return true
		}
		// Insertions at the same base point collide with each other and
		// with any edit beginning there.
		return x.start == y.start && (x.start == x.end || y.start == y.end)
	}

	var out []string
	clean := true
	basePos := 0
	i, j := 0, 0

	emitBase := func(to int) {
		out = append(out, baseLines[basePos:to]...)
		basePos = to
	}

	for i < len(a) || j < len(b) {
		switch {
		case j >= len(b) || (i < len(a) && !overlaps(a[i], b[j]) && a[i].start <= b[j].start):
			emitBase(a[i].start)
			out = append(out, a[i].repl...)
			basePos = a[i].end
			i++
		case i >= len(a) || (!overlaps(a[i], b[j]) && b[j].start < a[i].start):
			emitBase(b[j].start)
			out = append(out, b[j].repl...)
			basePos = b[j].end
			j++
		default:
			// Overlapping edits: grow the region until both sides are clear
			// of it, then compare what each side made of the region.
			regionStart := min(a[i].start, b[j].start)
			regionEnd := max(a[i].end, b[j].end)
			ai, bj := i, j
			for {
				grew := false
				for ai < len(a) && (a[ai].start < regionEnd || overlaps(a[ai], editChunk{start: regionStart, end: regionEnd})) {
					if a[ai].end > regionEnd {
						regionEnd = a[ai].end
						grew = true
					}
					ai++
				}
				for bj < len(b) && (b[bj].start < regionEnd || overlaps(b[bj], editChunk{start: regionStart, end: regionEnd})) {
					if b[bj].end > regionEnd {
						regionEnd = b[bj].end
						grew = true
					}
					bj++
				}
				if !grew {
					break
				}
			}

			targetRegion := replay(baseLines, a[i:ai], regionStart, regionEnd)
			otherRegion := replay(baseLines, b[j:bj], regionStart, regionEnd)

			emitBase(regionStart)
			if sameLines(targetRegion, otherRegion) {
				out = append(out, targetRegion...)
			} else {
				clean = false
				out = append(out, "<<<<<<< target\n")
				out = append(out, ensureNewline(targetRegion)...)
				out = append(out, "=======\n")
				out = append(out, ensureNewline(otherRegion)...)
				out = append(out, ">>>>>>> other\n")
			}
			basePos = regionEnd
			i, j = ai, bj
		}
	}
	emitBase(len(baseLines))

	return strings.Join(out, ""), clean
}

// replay applies one side's chunks to the base region [start, end).
func replay(baseLines []string, chunks []editChunk, start, end int) []string {
	var out []string
	pos := start
	for _, c := range chunks {
		if c.start > pos {
			out = append(out, baseLines[pos:c.start]...)
		}
		out = append(out, c.repl...)
		pos = c.end
	}
	if pos < end {
		out = append(out, baseLines[pos:end]...)
	}
	return out
}
