package repo

import (
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
)

// LocalBookmark is a named pointer owned by this workspace. TrackedRemotes
// lists the remotes whose same-named bookmark this one tracks.
type LocalBookmark struct {
	Name           string
	Target         plumbing.Hash
	TrackedRemotes []string
}

// RemoteBookmark mirrors a bookmark as last seen on one remote. Absent marks
// a tracked bookmark that was deleted remotely but is still remembered.
type RemoteBookmark struct {
	Name    string
	Remote  string
	Target  plumbing.Hash
	Tracked bool
	Absent  bool
}

// Tag is an immutable named pointer.
type Tag struct {
	Name   string
	Target plumbing.Hash
}

// RefTable holds every ref of the repo. A bookmark name denotes the same
// logical branch across all remotes; tracking state is orthogonal to
// existence.
type RefTable struct {
	locals  map[string]*LocalBookmark
	remotes map[string]map[string]*RemoteBookmark // name -> remote
	tags    map[string]*Tag
}

// NewRefTable creates an empty ref table.
func NewRefTable() *RefTable {
	return &RefTable{
		locals:  make(map[string]*LocalBookmark),
		remotes: make(map[string]map[string]*RemoteBookmark),
		tags:    make(map[string]*Tag),
	}
}

// Clone deep-copies the table. Transactions stage ref edits on a clone.
func (rt *RefTable) Clone() *RefTable {
	out := NewRefTable()
	for name, b := range rt.locals {
		cp := *b
		cp.TrackedRemotes = append([]string(nil), b.TrackedRemotes...)
		out.locals[name] = &cp
	}
	for name, byRemote := range rt.remotes {
		m := make(map[string]*RemoteBookmark, len(byRemote))
		for remote, b := range byRemote {
			cp := *b
			m[remote] = &cp
		}
		out.remotes[name] = m
	}
	for name, t := range rt.tags {
		cp := *t
		out.tags[name] = &cp
	}
	return out
}

// Equal reports whether both tables hold identical refs.
func (rt *RefTable) Equal(other *RefTable) bool {
	if len(rt.locals) != len(other.locals) || len(rt.tags) != len(other.tags) || len(rt.remotes) != len(other.remotes) {
		return false
	}
	for name, b := range rt.locals {
		o, ok := other.locals[name]
		if !ok || o.Target != b.Target || len(o.TrackedRemotes) != len(b.TrackedRemotes) {
			return false
		}
		for i, rem := range b.TrackedRemotes {
			if o.TrackedRemotes[i] != rem {
				return false
			}
		}
	}
	for name, t := range rt.tags {
		o, ok := other.tags[name]
		if !ok || o.Target != t.Target {
			return false
		}
	}
	for name, byRemote := range rt.remotes {
		oByRemote, ok := other.remotes[name]
		if !ok || len(oByRemote) != len(byRemote) {
			return false
		}
		for remote, b := range byRemote {
			o, ok := oByRemote[remote]
			if !ok || *o != *b {
				return false
			}
		}
	}
	return true
}

// Local returns the local bookmark with the given name.
func (rt *RefTable) Local(name string) (*LocalBookmark, bool) {
	b, ok := rt.locals[name]
	return b, ok
}

// Locals returns all local bookmarks sorted by name.
func (rt *RefTable) Locals() []*LocalBookmark {
	out := make([]*LocalBookmark, 0, len(rt.locals))
	for _, b := range rt.locals {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetLocal creates or retargets a local bookmark.
func (rt *RefTable) SetLocal(name string, target plumbing.Hash) *LocalBookmark {
	if b, ok := rt.locals[name]; ok {
		b.Target = target
		return b
	}
	b := &LocalBookmark{Name: name, Target: target}
	rt.locals[name] = b
	return b
}

// DeleteLocal removes a local bookmark; remote counterparts survive.
func (rt *RefTable) DeleteLocal(name string) {
	delete(rt.locals, name)
}

// RenameLocal renames a local bookmark, carrying target and tracking over.
func (rt *RefTable) RenameLocal(from, to string) bool {
	b, ok := rt.locals[from]
	if !ok {
		return false
	}
	delete(rt.locals, from)
	b.Name = to
	rt.locals[to] = b
	return true
}

// Remote returns the bookmark name as seen on remote.
func (rt *RefTable) Remote(name, remote string) (*RemoteBookmark, bool) {
	byRemote, ok := rt.remotes[name]
	if !ok {
		return nil, false
	}
	b, ok := byRemote[remote]
	return b, ok
}

// RemotesOf returns every remote bookmark with the given name, sorted by
// remote.
func (rt *RefTable) RemotesOf(name string) []*RemoteBookmark {
	byRemote := rt.remotes[name]
	out := make([]*RemoteBookmark, 0, len(byRemote))
	for _, b := range byRemote {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Remote < out[j].Remote })
	return out
}

// AllRemotes returns every remote bookmark, sorted by name then remote.
func (rt *RefTable) AllRemotes() []*RemoteBookmark {
	var out []*RemoteBookmark
	for _, byRemote := range rt.remotes {
		for _, b := range byRemote {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Remote < out[j].Remote
	})
	return out
}

// SetRemote records a bookmark as seen on a remote.
func (rt *RefTable) SetRemote(name, remote string, target plumbing.Hash) *RemoteBookmark {
	byRemote, ok := rt.remotes[name]
	if !ok {
		byRemote = make(map[string]*RemoteBookmark)
		rt.remotes[name] = byRemote
	}
	if b, ok := byRemote[remote]; ok {
		b.Target = target
		b.Absent = false
		return b
	}
	b := &RemoteBookmark{Name: name, Remote: remote, Target: target}
	byRemote[remote] = b
	return b
}

// Tags returns all tags sorted by name.
func (rt *RefTable) Tags() []*Tag {
	out := make([]*Tag, 0, len(rt.tags))
	for _, t := range rt.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetTag creates or moves a tag.
func (rt *RefTable) SetTag(name string, target plumbing.Hash) {
	rt.tags[name] = &Tag{Name: name, Target: target}
}

// DeleteTag removes a tag.
func (rt *RefTable) DeleteTag(name string) {
	delete(rt.tags, name)
}

// retarget repoints every ref via the mapping function; refs whose commit
// line was abandoned move to the surviving parent the mapping supplies.
func (rt *RefTable) retarget(mapTarget func(plumbing.Hash) plumbing.Hash) {
	for _, b := range rt.locals {
		b.Target = mapTarget(b.Target)
	}
	for _, byRemote := range rt.remotes {
		for _, b := range byRemote {
			b.Target = mapTarget(b.Target)
		}
	}
	for _, t := range rt.tags {
		t.Target = mapTarget(t.Target)
	}
}

// TargetsOf returns the set of commit ids any ref points at.
func (rt *RefTable) TargetsOf() map[plumbing.Hash]struct{} {
	out := make(map[plumbing.Hash]struct{})
	for _, b := range rt.locals {
		out[b.Target] = struct{}{}
	}
	for _, byRemote := range rt.remotes {
		for _, b := range byRemote {
			if !b.Absent {
				out[b.Target] = struct{}{}
			}
		}
	}
	for _, t := range rt.tags {
		out[t.Target] = struct{}{}
	}
	return out
}
