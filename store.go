package docsession

import (
	"context"
	"fmt"
	"strings"
)

type (
	// Store is the document store a session reads from and commits to.
	// Fetch returns ErrNotFound for unknown ids. BulkWrite returns one Result per
	// operation in the same order; a non-nil error means no results are available.
	Store interface {
		Fetch(ctx context.Context, id string) (Document, error)
		BulkWrite(ctx context.Context, ops []Operation) ([]Result, error)
		QueryView(ctx context.Context, view string, params ViewParams) ([]Row, error)
	}

	// IDAllocator is implemented by stores that hand out document ids.
	IDAllocator interface {
		AllocateID(ctx context.Context) (string, error)
	}

	Fields map[string]any

	Document struct {
		ID     string `json:"id"`
		Rev    string `json:"rev,omitempty"`
		Fields Fields `json:"fields"`
	}

	Operation struct {
		Kind   OpKind `json:"op"`
		ID     string `json:"id"`
		Rev    string `json:"rev,omitempty"`
		Fields Fields `json:"fields,omitempty"`
	}

	Result struct {
		ID     string       `json:"id"`
		Status ResultStatus `json:"status"`
		Rev    string       `json:"rev,omitempty"`
		Detail string       `json:"detail,omitempty"`
	}

	ViewParams struct {
		Key         any  `json:"key,omitempty"`
		StartKey    any  `json:"startKey,omitempty"`
		EndKey      any  `json:"endKey,omitempty"`
		Limit       int  `json:"limit,omitempty"`
		IncludeDocs bool `json:"includeDocs,omitempty"`
	}

	Row struct {
		ID    string    `json:"id"`
		Key   any       `json:"key"`
		Value any       `json:"value,omitempty"`
		Doc   *Document `json:"doc,omitempty"`
	}
)

type OpKind string

const (
	OpPut    OpKind = "put"
	OpDelete OpKind = "del"
)

type ResultStatus string

const (
	StatusOK       ResultStatus = "ok"
	StatusConflict ResultStatus = "conflict"
	StatusError    ResultStatus = "error"
)

// AllDocsView is the view every store answers: one row per document keyed by id.
const AllDocsView = "_all_docs"

// CheckFields reports why a document body cannot be stored, if it cannot.
// Top-level names starting with an underscore are reserved for the store.
func CheckFields(fields Fields) error {
	for k := range fields {
		if k == "" {
			return fmt.Errorf("empty field name")
		}
		if strings.HasPrefix(k, "_") {
			return fmt.Errorf("field name %q is reserved", k)
		}
	}
	return nil
}

func (op Operation) String() string {
	if op.Rev == "" {
		return fmt.Sprintf("%s(%s)", op.Kind, op.ID)
	}
	return fmt.Sprintf("%s(%s@%s)", op.Kind, op.ID, op.Rev)
}
