// Package redisstore keeps documents in Redis hashes. Each write in a batch is
// a compare-and-swap on the document revision done by a Lua script, and the
// whole batch travels in one pipeline.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/airheartdev/docsession"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// KEYS[1] document key; ARGV: kind, expected rev, rev suffix, body.
var writeScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'rev')
local expected = ARGV[2]
if ARGV[1] == 'put' then
  if (cur or '') ~= expected then
    return {'conflict', 'revision mismatch'}
  end
  local gen = 0
  if cur then
    gen = tonumber(string.match(cur, '^(%d+)%-')) or 0
  end
  local rev = tostring(gen + 1) .. '-' .. ARGV[3]
  redis.call('HSET', KEYS[1], 'rev', rev, 'body', ARGV[4])
  return {'ok', rev}
end
if not cur or cur ~= expected then
  return {'conflict', 'revision mismatch'}
end
redis.call('DEL', KEYS[1])
return {'ok', ''}
`)

type Store struct {
	client *redis.Client
	prefix string
	owned  bool
}

var _ docsession.Store = (*Store)(nil)
var _ docsession.IDAllocator = (*Store)(nil)

func New(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Close closes the client if the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

func (s *Store) key(id string) string {
	return s.prefix + ":doc:" + id
}

func (s *Store) Fetch(ctx context.Context, id string) (docsession.Document, error) {
	vals, err := s.client.HMGet(ctx, s.key(id), "rev", "body").Result()
	if err != nil {
		return docsession.Document{}, err
	}
	return decode(id, vals)
}

func decode(id string, vals []any) (docsession.Document, error) {
	rev, _ := vals[0].(string)
	body, _ := vals[1].(string)
	if rev == "" {
		return docsession.Document{}, docsession.ErrNotFound
	}
	doc := docsession.Document{ID: id, Rev: rev}
	if err := json.Unmarshal([]byte(body), &doc.Fields); err != nil {
		return docsession.Document{}, fmt.Errorf("decode %s: %w", id, err)
	}
	return doc, nil
}

func (s *Store) BulkWrite(ctx context.Context, ops []docsession.Operation) ([]docsession.Result, error) {
	results := make([]docsession.Result, len(ops))
	cmds := make([]*redis.Cmd, len(ops))
	pipe := s.client.Pipeline()

	for i, op := range ops {
		results[i].ID = op.ID
		args, err := scriptArgs(op)
		if err != nil {
			results[i].Status, results[i].Detail = docsession.StatusError, err.Error()
			continue
		}
		cmds[i] = writeScript.Eval(ctx, pipe, []string{s.key(op.ID)}, args...)
	}

	if pipe.Len() == 0 {
		return results, nil
	}
	if _, err := pipe.Exec(ctx); err != nil && !isReply(err) {
		return nil, err
	}

	for i, cmd := range cmds {
		if cmd == nil {
			continue
		}
		reply, err := cmd.StringSlice()
		if err != nil || len(reply) != 2 {
			results[i].Status = docsession.StatusError
			if err != nil {
				results[i].Detail = err.Error()
			} else {
				results[i].Detail = fmt.Sprintf("unexpected script reply %v", reply)
			}
			continue
		}
		switch reply[0] {
		case "ok":
			results[i].Status, results[i].Rev = docsession.StatusOK, reply[1]
		case "conflict":
			results[i].Status, results[i].Detail = docsession.StatusConflict, reply[1]
		default:
			results[i].Status, results[i].Detail = docsession.StatusError, reply[1]
		}
	}
	return results, nil
}

func scriptArgs(op docsession.Operation) ([]any, error) {
	if op.ID == "" {
		return nil, errors.New("missing document id")
	}
	switch op.Kind {
	case docsession.OpPut:
		if err := docsession.CheckFields(op.Fields); err != nil {
			return nil, err
		}
		fields := op.Fields
		if fields == nil {
			fields = docsession.Fields{}
		}
		body, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		return []any{string(op.Kind), op.Rev, newSuffix(), string(body)}, nil
	case docsession.OpDelete:
		return []any{string(op.Kind), op.Rev, "", ""}, nil
	}
	return nil, fmt.Errorf("unknown operation %q", op.Kind)
}

// isReply reports whether err came back from Redis as a command reply, as
// opposed to a connection failure.
func isReply(err error) bool {
	var rerr redis.Error
	return errors.As(err, &rerr) && !errors.Is(err, redis.Nil)
}

func (s *Store) AllocateID(ctx context.Context) (string, error) {
	return strings.ToLower(ulid.Make().String()), nil
}

// QueryView answers the built-in _all_docs view by scanning the key space.
func (s *Store) QueryView(ctx context.Context, view string, params docsession.ViewParams) ([]docsession.Row, error) {
	if view != docsession.AllDocsView {
		return nil, fmt.Errorf("%w: %s", docsession.ErrUnknownView, view)
	}

	prefix := s.key("")
	var ids []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		id := strings.TrimPrefix(iter.Val(), prefix)
		if inRange(id, params) {
			ids = append(ids, id)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(ids)
	if params.Limit > 0 && len(ids) > params.Limit {
		ids = ids[:params.Limit]
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HMGet(ctx, s.key(id), "rev", "body")
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, err
		}
	}

	rows := make([]docsession.Row, 0, len(ids))
	for i, id := range ids {
		doc, err := decode(id, cmds[i].Val())
		if errors.Is(err, docsession.ErrNotFound) {
			// deleted between scan and read
			continue
		}
		if err != nil {
			return nil, err
		}
		row := docsession.Row{ID: id, Key: id, Value: map[string]any{"rev": doc.Rev}}
		if params.IncludeDocs {
			row.Doc = &doc
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func inRange(id string, params docsession.ViewParams) bool {
	if params.Key != nil && params.Key != id {
		return false
	}
	if start, ok := params.StartKey.(string); ok && id < start {
		return false
	}
	if end, ok := params.EndKey.(string); ok && id > end {
		return false
	}
	return true
}

func newSuffix() string {
	return strings.ToLower(ulid.Make().String())
}
