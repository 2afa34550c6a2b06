package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind classifies a failed outcome.
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindTransient  ErrorKind = "transient"
	ErrorKindPermanent  ErrorKind = "permanent"
	ErrorKindResolution ErrorKind = "resolution"
)

// Outcome names what a successful result did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"   // mutation written to the entity store
	OutcomeDiscarded Outcome = "discarded" // server state kept, client payload dropped
	OutcomeConflict  Outcome = "conflict"  // divergence recorded, waiting for resolution
	OutcomeRequeued  Outcome = "requeued"  // moved back to pending by an admin or resolver
	OutcomeCleaned   Outcome = "cleaned"   // retention cleanup finished
)

// OkResult is the success branch of Result.
type OkResult struct {
	Outcome Outcome `json:"outcome"`
	Detail  string  `json:"detail,omitempty"`
	Version int64   `json:"version,omitempty"`
}

// ErrResult is the failure branch of Result.
type ErrResult struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Result is a tagged outcome stored with queue items, session details and
// cleanup audits. Exactly one of Ok or Err is set.
type Result struct {
	Ok  *OkResult  `json:"ok,omitempty"`
	Err *ErrResult `json:"err,omitempty"`
}

// Ok builds a success result.
func Ok(outcome Outcome, version int64) *Result {
	return &Result{Ok: &OkResult{Outcome: outcome, Version: version}}
}

// OkDetail builds a success result carrying a short detail string.
func OkDetail(outcome Outcome, detail string) *Result {
	return &Result{Ok: &OkResult{Outcome: outcome, Detail: detail}}
}

// Err builds a failure result.
func Err(kind ErrorKind, message string) *Result {
	return &Result{Err: &ErrResult{Kind: kind, Message: message}}
}

// IsOk reports whether r is a success.
func (r *Result) IsOk() bool {
	return r != nil && r.Ok != nil
}

// Validate checks that exactly one branch is populated.
func (r *Result) Validate() error {
	if r == nil {
		return errors.New("result is nil")
	}
	if (r.Ok == nil) == (r.Err == nil) {
		return errors.New("result must have exactly one of ok or err")
	}
	return nil
}

// String renders a short human form, used by the CLI.
func (r *Result) String() string {
	switch {
	case r == nil:
		return ""
	case r.Ok != nil && r.Ok.Version > 0:
		return fmt.Sprintf("ok:%s@v%d", r.Ok.Outcome, r.Ok.Version)
	case r.Ok != nil:
		return "ok:" + string(r.Ok.Outcome)
	case r.Err != nil:
		return fmt.Sprintf("err:%s: %s", r.Err.Kind, r.Err.Message)
	}
	return ""
}

// MarshalResult encodes a result for storage; nil encodes as SQL NULL.
func MarshalResult(r *Result) (*string, error) {
	if r == nil {
		return nil, nil
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	s := string(data)
	return &s, nil
}

// UnmarshalResult decodes a stored result.
func UnmarshalResult(data *string) (*Result, error) {
	if data == nil || *data == "" {
		return nil, nil
	}
	var r Result
	if err := json.Unmarshal([]byte(*data), &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &r, nil
}
