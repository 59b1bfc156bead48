package engine

import (
	"context"

	"github.com/go-git/go-billy/v5"
	"go.uber.org/zap"

	"github.com/kurobon/revgraph/internal/repo"
)

// Worker owns a Session and serializes every request onto a single goroutine,
// which is what makes the session's single-handle rule hold under concurrent
// callers. A caller whose context expires stops waiting; the job itself still
// runs to completion and its reply is discarded, so the session never sees a
// half-applied request.
type Worker struct {
	session *Session
	log     *zap.Logger
	jobs    chan func()
	quit    chan struct{}
	done    chan struct{}
}

// NewWorker starts the worker loop over the given session.
func NewWorker(session *Session, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{
		session: session,
		log:     logger,
		jobs:    make(chan func()),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	for {
		select {
		case job := <-w.jobs:
			job()
		case <-w.quit:
			w.session.Close()
			close(w.done)
			return
		}
	}
}

// Stop shuts the worker down and closes the session. Requests submitted
// after Stop fail with a precondition error instead of running.
func (w *Worker) Stop() {
	close(w.quit)
	<-w.done
}

type reply[T any] struct {
	val T
	err error
}

// submit runs fn on the worker goroutine and waits for its reply until ctx
// expires. The reply channel is buffered so a late result never blocks the
// loop.
func submit[T any](ctx context.Context, w *Worker, fn func() (T, error)) (T, error) {
	var zero T
	ch := make(chan reply[T], 1)
	job := func() {
		val, err := fn()
		ch <- reply[T]{val: val, err: err}
	}
	select {
	case w.jobs <- job:
	case <-w.done:
		return zero, repo.Preconditionf("worker stopped")
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Open attaches the session to a workspace rooted at fs.
func (w *Worker) Open(ctx context.Context, fs billy.Filesystem, path string) error {
	_, err := submit(ctx, w, func() (struct{}, error) {
		return struct{}{}, w.session.Open(fs, path)
	})
	return err
}

// Mutate executes one mutation.
func (w *Worker) Mutate(ctx context.Context, m Mutation) (MutationResult, error) {
	return submit(ctx, w, func() (MutationResult, error) {
		return w.session.ExecuteMutation(m), nil
	})
}

// QueryLog opens a log query and returns its first page.
func (w *Worker) QueryLog(ctx context.Context, revset string) (*LogPage, error) {
	return submit(ctx, w, func() (*LogPage, error) {
		return w.session.QueryLog(revset)
	})
}

// QueryLogNextPage returns the next page of the open log query.
func (w *Worker) QueryLogNextPage(ctx context.Context) (*LogPage, error) {
	return submit(ctx, w, func() (*LogPage, error) {
		return w.session.QueryLogNextPage()
	})
}

// QueryWorkspace reports the current repo status.
func (w *Worker) QueryWorkspace(ctx context.Context) (RepoStatus, error) {
	return submit(ctx, w, func() (RepoStatus, error) {
		if w.session.State() == StateClosed {
			return RepoStatus{}, repo.Preconditionf("no open workspace")
		}
		return w.session.Status(), nil
	})
}

// QueryRevision returns the header of one revision.
func (w *Worker) QueryRevision(ctx context.Context, id string) (*RevHeader, error) {
	return submit(ctx, w, func() (*RevHeader, error) {
		return w.session.QueryRevision(id)
	})
}

// Trigger marks the open query stale without blocking the caller; the next
// page request re-evaluates against the current graph. Used by external
// change notifications.
func (w *Worker) Trigger() {
	go func() {
		job := func() {
			if w.session.query != nil {
				w.session.query.stale = true
			}
			w.log.Debug("external trigger marked query stale")
		}
		select {
		case w.jobs <- job:
		case <-w.done:
			// A trigger landing during or after shutdown has nothing left
			// to invalidate.
		}
	}()
}
