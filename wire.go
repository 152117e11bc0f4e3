package docsession

type (
	FetchRequest struct {
		ID string `json:"id"`
	}

	FetchResponse struct {
		Doc Document `json:"doc"`
	}

	BulkRequest struct {
		Ops []Operation `json:"ops"`
	}

	BulkResponse struct {
		Results []Result `json:"results"`
	}

	ViewRequest struct {
		View   string     `json:"view"`
		Params ViewParams `json:"params"`
	}

	ViewResponse struct {
		Rows []Row `json:"rows"`
	}

	AllocateResponse struct {
		ID string `json:"id"`
	}

	ErrorResponse struct {
		Error  string `json:"error"`
		Reason string `json:"reason,omitempty"`
	}
)

const (
	ErrorNotFound    = "not_found"
	ErrorUnknownView = "unknown_view"
	ErrorBadRequest  = "bad_request"
	ErrorInternal    = "internal"
	ErrorNoAllocator = "no_allocator"
)
