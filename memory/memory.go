package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/airheartdev/docsession"
	"github.com/oklog/ulid/v2"
	"github.com/zyedidia/generic"
	"github.com/zyedidia/generic/btree"
)

type (
	// Store is an in-process document store. Deleted documents are kept as
	// tombstones so their revision history continues if they are recreated.
	Store struct {
		mu      sync.Mutex
		records *btree.Tree[string, *Record]
		views   map[string]*view
		live    int
	}

	Record struct {
		ID             string
		Rev            string
		Fields         docsession.Fields
		Generation     uint64
		Deleted        bool
		LastModifiedAt time.Time
	}
)

var _ docsession.Store = (*Store)(nil)
var _ docsession.IDAllocator = (*Store)(nil)

func New() *Store {
	return &Store{
		records: btree.New[string, *Record](generic.Less[string]),
		views:   make(map[string]*view),
	}
}

func (t *Store) Fetch(ctx context.Context, id string) (docsession.Document, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records.Get(id)
	if !ok || rec.Deleted {
		return docsession.Document{}, docsession.ErrNotFound
	}
	return rec.document(), nil
}

// BulkWrite applies each operation on its own; one failing does not stop the
// others.
func (t *Store) BulkWrite(ctx context.Context, ops []docsession.Operation) ([]docsession.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	results := make([]docsession.Result, len(ops))
	for i, op := range ops {
		results[i] = t.apply(op)
	}
	return results, nil
}

func (t *Store) apply(op docsession.Operation) docsession.Result {
	res := docsession.Result{ID: op.ID}
	if op.ID == "" {
		res.Status, res.Detail = docsession.StatusError, "missing document id"
		return res
	}

	rec, exists := t.records.Get(op.ID)
	current := ""
	if exists && !rec.Deleted {
		current = rec.Rev
	}

	switch op.Kind {
	case docsession.OpPut:
		if err := docsession.CheckFields(op.Fields); err != nil {
			res.Status, res.Detail = docsession.StatusError, err.Error()
			return res
		}
		if op.Rev != current {
			res.Status, res.Detail = docsession.StatusConflict, "revision mismatch"
			return res
		}
		res.Status, res.Rev = docsession.StatusOK, t.write(op.ID, op.Fields.Clone(), false)
	case docsession.OpDelete:
		if current == "" || op.Rev != current {
			res.Status, res.Detail = docsession.StatusConflict, "revision mismatch"
			return res
		}
		res.Status, res.Rev = docsession.StatusOK, t.write(op.ID, nil, true)
	default:
		res.Status, res.Detail = docsession.StatusError, fmt.Sprintf("unknown operation %q", op.Kind)
	}
	return res
}

// write stores a new revision of id. Callers hold t.mu.
func (t *Store) write(id string, fields docsession.Fields, deleted bool) string {
	rec, ok := t.records.Get(id)
	if !ok {
		rec = &Record{ID: id}
		t.records.Put(id, rec)
	}
	if rec.Deleted != deleted || !ok {
		if deleted {
			t.live--
		} else {
			t.live++
		}
	}
	rec.Generation++
	rec.Rev = newRev(rec.Generation)
	rec.Fields = fields
	rec.Deleted = deleted
	rec.LastModifiedAt = time.Now()
	return rec.Rev
}

// Put writes a document regardless of its current revision, the way another
// writer outside any session would. It returns the new revision.
func (t *Store) Put(id string, fields docsession.Fields) (string, error) {
	if err := docsession.CheckFields(fields); err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.write(id, fields.Clone(), false), nil
}

// Del removes a document regardless of its current revision.
func (t *Store) Del(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records.Get(id)
	if !ok || rec.Deleted {
		return docsession.ErrNotFound
	}
	t.write(id, nil, true)
	return nil
}

func (t *Store) AllocateID(ctx context.Context) (string, error) {
	return strings.ToLower(ulid.Make().String()), nil
}

// Size is the number of live documents.
func (t *Store) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func (r *Record) document() docsession.Document {
	return docsession.Document{ID: r.ID, Rev: r.Rev, Fields: r.Fields.Clone()}
}

func newRev(generation uint64) string {
	return fmt.Sprintf("%d-%s", generation, strings.ToLower(ulid.Make().String()))
}
