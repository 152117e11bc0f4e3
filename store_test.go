package docsession

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// fakeStore is a map-backed Store that records every call and can be told to
// refuse particular documents or fail whole batches.
type fakeStore struct {
	docs      map[string]Document
	gen       int
	fetches   []string
	batches   [][]Operation
	conflicts map[string]bool
	rejects   map[string]string
	failBulk  error
	failFetch error
	onBulk    func()
	nextID    int
	// dropResults trims that many results off the end of every bulk reply.
	dropResults int
	failView    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:      make(map[string]Document),
		conflicts: make(map[string]bool),
		rejects:   make(map[string]string),
	}
}

func (f *fakeStore) seed(id string, fields Fields) string {
	f.gen++
	rev := fmt.Sprintf("%d-seed", f.gen)
	f.docs[id] = Document{ID: id, Rev: rev, Fields: fields.Clone()}
	return rev
}

func (f *fakeStore) Fetch(ctx context.Context, id string) (Document, error) {
	f.fetches = append(f.fetches, id)
	if f.failFetch != nil {
		return Document{}, f.failFetch
	}
	doc, ok := f.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	doc.Fields = doc.Fields.Clone()
	return doc, nil
}

func (f *fakeStore) BulkWrite(ctx context.Context, ops []Operation) ([]Result, error) {
	f.batches = append(f.batches, ops)
	if f.onBulk != nil {
		f.onBulk()
	}
	if f.failBulk != nil {
		return nil, f.failBulk
	}
	if f.dropResults > 0 {
		return make([]Result, max(len(ops)-f.dropResults, 0)), nil
	}
	results := make([]Result, len(ops))
	for i, op := range ops {
		results[i] = f.apply(op)
	}
	return results, nil
}

func (f *fakeStore) apply(op Operation) Result {
	res := Result{ID: op.ID}
	if detail, ok := f.rejects[op.ID]; ok {
		res.Status, res.Detail = StatusError, detail
		return res
	}
	cur := f.docs[op.ID].Rev
	if f.conflicts[op.ID] || cur != op.Rev {
		res.Status, res.Detail = StatusConflict, "revision mismatch"
		return res
	}
	if op.Kind == OpDelete {
		delete(f.docs, op.ID)
		res.Status = StatusOK
		return res
	}
	f.gen++
	res.Status, res.Rev = StatusOK, fmt.Sprintf("%d-bulk", f.gen)
	f.docs[op.ID] = Document{ID: op.ID, Rev: res.Rev, Fields: op.Fields.Clone()}
	return res
}

func (f *fakeStore) QueryView(ctx context.Context, view string, params ViewParams) ([]Row, error) {
	if f.failView != nil {
		return nil, f.failView
	}
	if view != AllDocsView {
		return nil, ErrUnknownView
	}
	ids := make([]string, 0, len(f.docs))
	for id := range f.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var rows []Row
	for _, id := range ids {
		doc := f.docs[id]
		row := Row{ID: id, Key: id}
		if params.IncludeDocs {
			d := doc
			d.Fields = d.Fields.Clone()
			row.Doc = &d
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// allocatingStore adds id allocation to fakeStore.
type allocatingStore struct {
	*fakeStore
	err error
}

func (a allocatingStore) AllocateID(ctx context.Context) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.nextID++
	return fmt.Sprintf("x%d", a.nextID), nil
}

var errUnavailable = errors.New("store unavailable")
