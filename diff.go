package docsession

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"
)

// Changes returns the JSON merge patch (RFC 7386) that turns the document as
// fetched into the document as the session now holds it. A created document
// diffs against an empty object; a deleted one yields "null".
func (s *Session) Changes(id string) ([]byte, error) {
	e, ok := s.cache.entries[id]
	if !ok {
		return nil, docErr("changes", id, ErrNotFound)
	}
	if e.state == StateDeleted {
		return []byte("null"), nil
	}
	original := []byte("{}")
	if e.pristine != nil {
		b, err := json.Marshal(e.pristine)
		if err != nil {
			return nil, fmt.Errorf("changes %s: %w", id, err)
		}
		original = b
	}
	modified, err := json.Marshal(e.current)
	if err != nil {
		return nil, fmt.Errorf("changes %s: %w", id, err)
	}
	patch, err := jsonpatch.CreateMergePatch(original, modified)
	if err != nil {
		return nil, fmt.Errorf("changes %s: %w", id, err)
	}
	return patch, nil
}
