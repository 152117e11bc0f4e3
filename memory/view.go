package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/airheartdev/docsession"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

type (
	// ViewDef describes a view as expressions over a document. Filter selects
	// documents (all when empty), Key is the row key, Value the row value
	// (nil when empty). Expressions see id, rev and doc.
	ViewDef struct {
		Filter string `yaml:"filter" json:"filter"`
		Key    string `yaml:"key" json:"key"`
		Value  string `yaml:"value" json:"value"`
	}

	view struct {
		filter *vm.Program
		key    *vm.Program
		value  *vm.Program
	}

	viewEnv struct {
		ID  string         `expr:"id"`
		Rev string         `expr:"rev"`
		Doc map[string]any `expr:"doc"`
	}
)

func (t *Store) DefineView(name string, def ViewDef) error {
	if name == docsession.AllDocsView {
		return fmt.Errorf("view %s is built in", name)
	}
	if def.Key == "" {
		return fmt.Errorf("view %s: key expression is required", name)
	}

	v := new(view)
	var err error
	if def.Filter != "" {
		if v.filter, err = expr.Compile(def.Filter, expr.Env(viewEnv{}), expr.AsBool()); err != nil {
			return fmt.Errorf("view %s filter: %w", name, err)
		}
	}
	if v.key, err = expr.Compile(def.Key, expr.Env(viewEnv{})); err != nil {
		return fmt.Errorf("view %s key: %w", name, err)
	}
	if def.Value != "" {
		if v.value, err = expr.Compile(def.Value, expr.Env(viewEnv{})); err != nil {
			return fmt.Errorf("view %s value: %w", name, err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.views[name] = v
	return nil
}

func (t *Store) QueryView(ctx context.Context, name string, params docsession.ViewParams) ([]docsession.Row, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var v *view
	if name != docsession.AllDocsView {
		var ok bool
		if v, ok = t.views[name]; !ok {
			return nil, fmt.Errorf("%w: %s", docsession.ErrUnknownView, name)
		}
	}

	rows := make([]docsession.Row, 0)
	var err error
	t.records.Each(func(id string, rec *Record) {
		if err != nil || rec.Deleted {
			return
		}
		var row docsession.Row
		var ok bool
		if row, ok, err = v.row(rec); err != nil || !ok {
			return
		}
		if !inRange(row.Key, params) {
			return
		}
		if params.IncludeDocs {
			doc := rec.document()
			row.Doc = &doc
		}
		rows = append(rows, row)
	})
	if err != nil {
		return nil, fmt.Errorf("view %s: %w", name, err)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if c := collate(rows[i].Key, rows[j].Key); c != 0 {
			return c < 0
		}
		return rows[i].ID < rows[j].ID
	})
	if params.Limit > 0 && len(rows) > params.Limit {
		rows = rows[:params.Limit]
	}
	return rows, nil
}

// row evaluates the view for one record. A nil view is _all_docs.
func (v *view) row(rec *Record) (docsession.Row, bool, error) {
	if v == nil {
		return docsession.Row{ID: rec.ID, Key: rec.ID, Value: map[string]any{"rev": rec.Rev}}, true, nil
	}

	env := viewEnv{ID: rec.ID, Rev: rec.Rev, Doc: rec.Fields}
	if env.Doc == nil {
		env.Doc = map[string]any{}
	}
	if v.filter != nil {
		keep, err := expr.Run(v.filter, env)
		if err != nil {
			return docsession.Row{}, false, err
		}
		if keep != true {
			return docsession.Row{}, false, nil
		}
	}
	key, err := expr.Run(v.key, env)
	if err != nil {
		return docsession.Row{}, false, err
	}
	row := docsession.Row{ID: rec.ID, Key: key}
	if v.value != nil {
		if row.Value, err = expr.Run(v.value, env); err != nil {
			return docsession.Row{}, false, err
		}
	}
	return row, true, nil
}

func inRange(key any, params docsession.ViewParams) bool {
	if params.Key != nil && collate(key, params.Key) != 0 {
		return false
	}
	if params.StartKey != nil && collate(key, params.StartKey) < 0 {
		return false
	}
	if params.EndKey != nil && collate(key, params.EndKey) > 0 {
		return false
	}
	return true
}
