package api

// ListResponse is one page of a listing.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// DispatchRequest is the optional body of POST /api/v1/admin/dispatch.
type DispatchRequest struct {
	DeviceID string `json:"device_id,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// RetryRequest retries one failed item, or every failed item when All is set.
type RetryRequest struct {
	ItemID string `json:"item_id,omitempty"`
	All    bool   `json:"all,omitempty"`
}

// CountResponse reports the number of rows a bulk action touched.
type CountResponse struct {
	Count int64 `json:"count"`
}

// ResolveRequest resolves one conflict, or every unresolved conflict when
// ConflictID is empty.
type ResolveRequest struct {
	ConflictID string `json:"conflict_id,omitempty"`
	Strategy   string `json:"strategy"`
}

// RetentionRequest is the body of PUT /api/v1/admin/retention.
type RetentionRequest struct {
	CompletedDays      int  `json:"completed_retention_days"`
	FailedDays         int  `json:"failed_retention_days"`
	LogsDays           int  `json:"logs_retention_days"`
	ConflictsDays      int  `json:"conflicts_retention_days"`
	AutoCleanupEnabled bool `json:"auto_cleanup_enabled"`
}

// FieldError points at one invalid field of a request.
type FieldError struct {
	Index   int    `json:"index"` // mutation index, -1 for the request itself
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string       `json:"error"` // machine readable kind
	Message string       `json:"message,omitempty"`
	Details []FieldError `json:"details,omitempty"`
}
