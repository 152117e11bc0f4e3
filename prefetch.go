package docsession

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// GetMany resolves several ids at once. Ids the session does not hold yet are
// fetched in parallel; the store must be safe for concurrent Fetch calls.
func (s *Session) GetMany(ctx context.Context, ids ...string) ([]*Tracked, error) {
	c := s.cache
	if err := c.guard("get", ""); err != nil {
		return nil, err
	}

	var missing []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := c.entries[id]; ok || seen[id] {
			continue
		}
		seen[id] = true
		missing = append(missing, id)
	}

	docs := make([]Document, len(missing))
	found := make([]bool, len(missing))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.options.concurrency)
	for i, id := range missing {
		i, id := i, id
		g.Go(func() error {
			doc, ok, err := c.fetch(gctx, id)
			docs[i], found[i] = doc, ok
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, doc := range docs {
		if found[i] {
			c.bind(doc)
		}
	}

	out := make([]*Tracked, len(ids))
	for i, id := range ids {
		e, ok := c.entries[id]
		if !ok || e.state == StateDeleted {
			return nil, docErr("get", id, ErrNotFound)
		}
		out[i] = e.handle
	}
	return out, nil
}
