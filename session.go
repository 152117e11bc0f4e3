package docsession

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

type (
	// Session is a unit of work over a Store. Reads are cached, writes are
	// recorded and only reach the store on Flush. A Session is not safe for
	// concurrent use.
	Session struct {
		options *Options
		cache   *cache
		flusher *flusher
	}

	Options struct {
		logger      *slog.Logger
		newID       func() string
		concurrency int
	}

	Option func(o *Options)
)

func New(store Store, options ...Option) *Session {
	opts := &Options{
		logger:      slog.Default(),
		newID:       newUUID,
		concurrency: 8,
	}
	for _, option := range options {
		option(opts)
	}

	c := newCache(store, opts.newID)
	return &Session{
		options: opts,
		cache:   c,
		flusher: &flusher{store: store, cache: c, logger: opts.logger},
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.logger = logger
	}
}

// WithIDGenerator sets how ids are made for Create when the store does not
// allocate them itself.
func WithIDGenerator(fn func() string) Option {
	return func(o *Options) {
		o.newID = fn
	}
}

// WithFetchConcurrency bounds the parallel fetches issued by GetMany.
func WithFetchConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

func newUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Get returns the live handle for id, fetching it on first use.
func (s *Session) Get(ctx context.Context, id string) (*Tracked, error) {
	return s.cache.get(ctx, id)
}

// Set replaces the whole body of id. Handles already returned by Get see the
// new value.
func (s *Session) Set(ctx context.Context, id string, fields Fields) error {
	return s.cache.set(ctx, id, fields)
}

func (s *Session) Delete(ctx context.Context, id string) error {
	return s.cache.delete(ctx, id)
}

// Create adds a new document and returns its id. An empty id asks the store,
// or failing that the session, for a fresh one.
func (s *Session) Create(ctx context.Context, fields Fields, id string) (string, error) {
	return s.cache.create(ctx, fields, id)
}

func (s *Session) Contains(ctx context.Context, id string) (bool, error) {
	return s.cache.contains(ctx, id)
}

// Flush writes every pending change in one batch. Documents the store refuses
// are listed in the report and keep their pending state. The returned error is
// only set when the batch could not be submitted, or the session is already
// flushing.
func (s *Session) Flush(ctx context.Context) (FlushReport, error) {
	return s.flusher.flush(ctx)
}

// State reports the session state of id, if the session holds it.
func (s *Session) State(id string) (State, bool) {
	e, ok := s.cache.entries[id]
	if !ok {
		return 0, false
	}
	return e.state, true
}

// Pending lists the operations the next Flush would send.
func (s *Session) Pending() []Operation {
	pending := s.cache.pending()
	ops := make([]Operation, len(pending))
	for i, e := range pending {
		ops[i] = e.operation()
	}
	return ops
}

// Discard forgets id and any change recorded for it. The next Get fetches it
// again.
func (s *Session) Discard(id string) error {
	if err := s.cache.guard("discard", id); err != nil {
		return err
	}
	if e, ok := s.cache.entries[id]; ok {
		s.cache.remove(e)
	}
	return nil
}
