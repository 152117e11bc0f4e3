package docsession

import (
	"context"
	"errors"
	"fmt"

	"github.com/zyedidia/generic"
	"github.com/zyedidia/generic/btree"
)

// cache holds every document the session has touched, keyed by id and by the
// order in which it was first touched.
type cache struct {
	store    Store
	newID    func() string
	entries  map[string]*entry
	touched  *btree.Tree[uint64, *entry]
	nextSeq  uint64
	flushing bool
}

func newCache(store Store, newID func() string) *cache {
	return &cache{
		store:   store,
		newID:   newID,
		entries: make(map[string]*entry),
		touched: btree.New[uint64, *entry](generic.Less[uint64]),
	}
}

func (c *cache) guard(op, id string) error {
	if c.flushing {
		return docErr(op, id, ErrSessionBusy)
	}
	return nil
}

func (c *cache) insert(id string, state State, rev string, pristine, current Fields) *entry {
	c.nextSeq++
	e := &entry{
		id:       id,
		seq:      c.nextSeq,
		state:    state,
		rev:      rev,
		pristine: pristine,
		current:  current,
		owner:    c,
	}
	e.handle = &Tracked{e: e}
	c.entries[id] = e
	c.touched.Put(e.seq, e)
	return e
}

func (c *cache) remove(e *entry) {
	delete(c.entries, e.id)
	c.touched.Remove(e.seq)
	e.detached = true
}

// bind caches a document read from the store as a clean entry.
func (c *cache) bind(doc Document) *entry {
	current := doc.Fields
	if current == nil {
		current = Fields{}
	}
	return c.insert(doc.ID, StateClean, doc.Rev, current.Clone(), current)
}

// fetch asks the store for id. A missing document is reported as found=false.
func (c *cache) fetch(ctx context.Context, id string) (Document, bool, error) {
	doc, err := c.store.Fetch(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, fmt.Errorf("fetch %s: %w", id, err)
	}
	doc.ID = id
	return doc, true, nil
}

func (c *cache) get(ctx context.Context, id string) (*Tracked, error) {
	if err := c.guard("get", id); err != nil {
		return nil, err
	}
	if e, ok := c.entries[id]; ok {
		if e.state == StateDeleted {
			return nil, docErr("get", id, ErrNotFound)
		}
		return e.handle, nil
	}
	doc, found, err := c.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, docErr("get", id, ErrNotFound)
	}
	return c.bind(doc).handle, nil
}

func (c *cache) set(ctx context.Context, id string, fields Fields) error {
	if err := c.guard("set", id); err != nil {
		return err
	}
	current := fields.Clone()
	if current == nil {
		current = Fields{}
	}
	if e, ok := c.entries[id]; ok {
		if e.state == StateDeleted {
			return docErr("set", id, ErrInvalidOperation)
		}
		e.current = current
		e.modified()
		return nil
	}
	doc, found, err := c.fetch(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		c.insert(id, StateCreated, "", nil, current)
		return nil
	}
	c.insert(id, StateDirty, doc.Rev, doc.Fields.Clone(), current)
	return nil
}

func (c *cache) delete(ctx context.Context, id string) error {
	if err := c.guard("delete", id); err != nil {
		return err
	}
	if e, ok := c.entries[id]; ok {
		switch e.state {
		case StateDeleted:
			return docErr("delete", id, ErrNotFound)
		case StateCreated:
			c.remove(e)
		default:
			e.state = StateDeleted
		}
		return nil
	}
	doc, found, err := c.fetch(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return docErr("delete", id, ErrNotFound)
	}
	c.insert(id, StateDeleted, doc.Rev, doc.Fields.Clone(), doc.Fields)
	return nil
}

func (c *cache) create(ctx context.Context, fields Fields, id string) (string, error) {
	if err := c.guard("create", id); err != nil {
		return "", err
	}
	current := fields.Clone()
	if current == nil {
		current = Fields{}
	}
	if id == "" {
		allocated, err := c.allocate(ctx)
		if err != nil {
			return "", err
		}
		if _, ok := c.entries[allocated]; ok {
			return "", docErr("create", allocated, ErrConflict)
		}
		c.insert(allocated, StateCreated, "", nil, current)
		return allocated, nil
	}
	if e, ok := c.entries[id]; ok {
		if e.state != StateDeleted {
			return "", docErr("create", id, ErrConflict)
		}
		// The store still holds the document at e.rev: replace it in one put.
		e.current = current
		e.state = StateDirty
		return id, nil
	}
	doc, found, err := c.fetch(ctx, id)
	if err != nil {
		return "", err
	}
	if found {
		c.bind(doc)
		return "", docErr("create", id, ErrConflict)
	}
	c.insert(id, StateCreated, "", nil, current)
	return id, nil
}

func (c *cache) allocate(ctx context.Context) (string, error) {
	if a, ok := c.store.(IDAllocator); ok {
		id, err := a.AllocateID(ctx)
		if errors.Is(err, ErrNoAllocator) {
			return c.newID(), nil
		}
		if err != nil {
			return "", fmt.Errorf("allocate id: %w", err)
		}
		return id, nil
	}
	return c.newID(), nil
}

func (c *cache) contains(ctx context.Context, id string) (bool, error) {
	if err := c.guard("contains", id); err != nil {
		return false, err
	}
	if e, ok := c.entries[id]; ok {
		return e.state != StateDeleted, nil
	}
	doc, found, err := c.fetch(ctx, id)
	if err != nil || !found {
		return false, err
	}
	c.bind(doc)
	return true, nil
}

// pending returns the entries a flush has to write, in first-touch order.
func (c *cache) pending() []*entry {
	var out []*entry
	c.touched.Each(func(_ uint64, e *entry) {
		if e.state != StateClean {
			out = append(out, e)
		}
	})
	return out
}
