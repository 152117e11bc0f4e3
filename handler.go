package docsession

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
)

const DefaultFetchEndpoint = "/docs/fetch"
const DefaultBulkEndpoint = "/docs/bulk"
const DefaultViewEndpoint = "/docs/view"
const DefaultAllocateEndpoint = "/docs/allocate"
const applicationJSON = "application/json"
const RequestIDHeader = "X-Docsession-RequestID"
const authorizationHeader = "Authorization"

type (
	// Server exposes a Store over HTTP for httpstore clients.
	Server struct {
		store   Store
		options *ServerOptions
	}

	ServerOptions struct {
		authFn   AuthFn
		logger   *slog.Logger
		onCommit CommitHook
	}

	ServerOption func(o *ServerOptions)

	AuthFn func(ctx context.Context, token string) bool

	// CommitHook is called after every bulk write with the operations and
	// the store's results.
	CommitHook func(ctx context.Context, ops []Operation, results []Result)
)

func NewServer(store Store, options ...ServerOption) *Server {
	opts := &ServerOptions{
		authFn: func(ctx context.Context, token string) bool { return true },
		logger: slog.Default(),
	}
	for _, option := range options {
		option(opts)
	}
	return &Server{store: store, options: opts}
}

func WithAuth(fn func(ctx context.Context, token string) bool) ServerOption {
	return func(o *ServerOptions) {
		o.authFn = fn
	}
}

func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(o *ServerOptions) {
		o.logger = logger
	}
}

func WithCommitHook(fn CommitHook) ServerOption {
	return func(o *ServerOptions) {
		o.onCommit = fn
	}
}

func (s *Server) HandleFetch() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if !validateRequest(w, req, s.options.authFn) {
			return
		}

		fetch := new(FetchRequest)
		if err := json.NewDecoder(req.Body).Decode(fetch); err != nil || fetch.ID == "" {
			writeError(w, http.StatusBadRequest, ErrorBadRequest, "missing id")
			return
		}

		doc, err := s.store.Fetch(req.Context(), fetch.ID)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrorNotFound, fetch.ID)
			return
		}
		if err != nil {
			s.options.logger.Error("fetch failed", "id", fetch.ID, "err", err)
			writeError(w, http.StatusInternalServerError, ErrorInternal, "")
			return
		}

		writeJSON(w, FetchResponse{Doc: doc})
	}
}

func (s *Server) HandleBulk() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if !validateRequest(w, req, s.options.authFn) {
			return
		}

		bulk := new(BulkRequest)
		if err := json.NewDecoder(req.Body).Decode(bulk); err != nil {
			writeError(w, http.StatusBadRequest, ErrorBadRequest, err.Error())
			return
		}

		results, err := s.store.BulkWrite(req.Context(), bulk.Ops)
		if err != nil {
			s.options.logger.Error("bulk write failed", "operations", len(bulk.Ops), "err", err)
			writeError(w, http.StatusInternalServerError, ErrorInternal, "")
			return
		}

		if s.options.onCommit != nil {
			s.options.onCommit(req.Context(), bulk.Ops, results)
		}

		writeJSON(w, BulkResponse{Results: results})
	}
}

func (s *Server) HandleView() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if !validateRequest(w, req, s.options.authFn) {
			return
		}

		view := new(ViewRequest)
		if err := json.NewDecoder(req.Body).Decode(view); err != nil || view.View == "" {
			writeError(w, http.StatusBadRequest, ErrorBadRequest, "missing view")
			return
		}

		rows, err := s.store.QueryView(req.Context(), view.View, view.Params)
		if errors.Is(err, ErrUnknownView) {
			writeError(w, http.StatusNotFound, ErrorUnknownView, view.View)
			return
		}
		if err != nil {
			s.options.logger.Error("view query failed", "view", view.View, "err", err)
			writeError(w, http.StatusInternalServerError, ErrorInternal, "")
			return
		}
		if rows == nil {
			rows = []Row{}
		}

		writeJSON(w, ViewResponse{Rows: rows})
	}
}

func (s *Server) HandleAllocate() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if !validateRequest(w, req, s.options.authFn) {
			return
		}

		allocator, ok := s.store.(IDAllocator)
		if !ok {
			writeError(w, http.StatusNotImplemented, ErrorNoAllocator, "")
			return
		}

		id, err := allocator.AllocateID(req.Context())
		if err != nil {
			s.options.logger.Error("id allocation failed", "err", err)
			writeError(w, http.StatusInternalServerError, ErrorInternal, "")
			return
		}

		writeJSON(w, AllocateResponse{ID: id})
	}
}

// validateRequest admits JSON POSTs that carry a request id and pass authFn.
// Parameters on the media type, such as a charset, are ignored.
func validateRequest(w http.ResponseWriter, r *http.Request, authFn AuthFn) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, ErrorBadRequest, "method must be POST")
		return false
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != applicationJSON {
		writeError(w, http.StatusUnsupportedMediaType, ErrorBadRequest, "body must be "+applicationJSON)
		return false
	}

	if r.Header.Get(RequestIDHeader) == "" {
		writeError(w, http.StatusBadRequest, ErrorBadRequest, "missing "+RequestIDHeader)
		return false
	}

	if authFn != nil && !authFn(r.Context(), r.Header.Get(authorizationHeader)) {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", applicationJSON)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, reason string) {
	w.Header().Set("Content-Type", applicationJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: code, Reason: reason})
}
