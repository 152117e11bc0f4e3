package docsession

import "context"

// Query runs a view on the store. Rows come straight from the store: they do
// not reflect changes still pending in the session, and may lag changes that
// were just flushed.
func (s *Session) Query(ctx context.Context, view string, params ViewParams) ([]Row, error) {
	if err := s.cache.guard("query", view); err != nil {
		return nil, err
	}
	return s.cache.store.QueryView(ctx, view, params)
}

// RowDoc resolves the document behind a view row through the session, so it
// can be edited like any other. A document the session already holds wins
// over the copy carried in the row.
func (s *Session) RowDoc(ctx context.Context, row Row) (*Tracked, error) {
	c := s.cache
	if err := c.guard("get", row.ID); err != nil {
		return nil, err
	}
	if e, ok := c.entries[row.ID]; ok {
		if e.state == StateDeleted {
			return nil, docErr("get", row.ID, ErrNotFound)
		}
		return e.handle, nil
	}
	if row.Doc != nil {
		doc := *row.Doc
		doc.ID = row.ID
		return c.bind(doc).handle, nil
	}
	return c.get(ctx, row.ID)
}

// Len counts the documents in the store through _all_docs. Like Query it
// ignores changes not yet flushed.
func (s *Session) Len(ctx context.Context) (int, error) {
	rows, err := s.Query(ctx, AllDocsView, ViewParams{})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// IDs lists the ids of the stored documents in _all_docs order.
func (s *Session) IDs(ctx context.Context) ([]string, error) {
	rows, err := s.Query(ctx, AllDocsView, ViewParams{})
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids, nil
}
