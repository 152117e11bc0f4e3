package docsession

import (
	"encoding/json"
	"sort"
)

// Tracked is the live handle on a session document. Reads see uncommitted
// edits; Set and Delete mark the document dirty so the next Flush writes it.
// Only top-level fields are observed: mutating a nested map or slice obtained
// from Get is not recorded.
type Tracked struct {
	e *entry
}

func (t *Tracked) ID() string {
	return t.e.id
}

// Rev is the last revision the session knows for the document, empty until a
// created document has been flushed.
func (t *Tracked) Rev() string {
	return t.e.rev
}

func (t *Tracked) Get(field string) (any, bool) {
	v, ok := t.e.current[field]
	return v, ok
}

func (t *Tracked) Has(field string) bool {
	_, ok := t.e.current[field]
	return ok
}

func (t *Tracked) Len() int {
	return len(t.e.current)
}

func (t *Tracked) Keys() []string {
	keys := make([]string, 0, len(t.e.current))
	for k := range t.e.current {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a deep copy of the current fields.
func (t *Tracked) Snapshot() Fields {
	return t.e.current.Clone()
}

func (t *Tracked) Set(field string, value any) error {
	if err := t.e.writable("set"); err != nil {
		return err
	}
	t.e.current[field] = value
	t.e.modified()
	return nil
}

func (t *Tracked) Delete(field string) error {
	if err := t.e.writable("delete field"); err != nil {
		return err
	}
	if _, ok := t.e.current[field]; !ok {
		return nil
	}
	delete(t.e.current, field)
	t.e.modified()
	return nil
}

func (t *Tracked) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.e.current)
}
