package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iudanet/fieldsync/internal/models"
)

const (
	// MaxBatchSize is the largest number of mutations accepted in one submission.
	MaxBatchSize = 500
	// MaxIdempotencyKeyLen bounds client supplied idempotency keys.
	MaxIdempotencyKeyLen = 128
	// MaxIdentifierLen bounds entity type and id.
	MaxIdentifierLen = 128
)

// FieldError is one problem with one mutation of a batch.
type FieldError struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// BatchError collects every problem found in a submission. A batch with any
// FieldError is rejected as a whole.
type BatchError struct {
	Errors []FieldError
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		if fe.Index < 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
			continue
		}
		parts = append(parts, fmt.Sprintf("mutation %d: %s: %s", fe.Index, fe.Field, fe.Message))
	}
	return "invalid submission: " + strings.Join(parts, "; ")
}

func (e *BatchError) add(index int, field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Index: index, Field: field, Message: fmt.Sprintf(format, args...)})
}

// ValidateBatch checks a device submission. It returns nil or a *BatchError.
func ValidateBatch(deviceID string, mutations []models.Mutation) error {
	berr := &BatchError{}

	if err := ValidateDeviceID(deviceID); err != nil {
		berr.add(-1, "device_id", "%s", err.Error())
	}

	switch {
	case len(mutations) == 0:
		berr.add(-1, "mutations", "batch is empty")
	case len(mutations) > MaxBatchSize:
		berr.add(-1, "mutations", "batch has %d mutations, limit is %d", len(mutations), MaxBatchSize)
	}

	keys := make(map[string]int)
	for i := range mutations {
		validateMutation(berr, i, &mutations[i])

		key := mutations[i].IdempotencyKey
		if key == "" {
			continue
		}
		if first, seen := keys[key]; seen {
			berr.add(i, "idempotency_key", "duplicates mutation %d in the same batch", first)
			continue
		}
		keys[key] = i
	}

	if len(berr.Errors) > 0 {
		return berr
	}
	return nil
}

func validateMutation(berr *BatchError, i int, m *models.Mutation) {
	m.EntityType = strings.TrimSpace(m.EntityType)
	m.EntityID = strings.TrimSpace(m.EntityID)

	if m.EntityType == "" {
		berr.add(i, "entity_type", "is required")
	} else if len(m.EntityType) > MaxIdentifierLen {
		berr.add(i, "entity_type", "exceeds %d characters", MaxIdentifierLen)
	}

	if m.EntityID == "" {
		berr.add(i, "entity_id", "is required")
	} else if len(m.EntityID) > MaxIdentifierLen {
		berr.add(i, "entity_id", "exceeds %d characters", MaxIdentifierLen)
	}

	if m.Action == "" {
		berr.add(i, "action", "is required")
	} else if !m.Action.Valid() {
		berr.add(i, "action", "unknown action %q", m.Action)
	}

	payload := bytes.TrimSpace(m.Payload)
	switch {
	case len(payload) == 0 || bytes.Equal(payload, []byte("null")):
		berr.add(i, "payload", "is required")
	case !json.Valid(payload):
		berr.add(i, "payload", "is not valid JSON")
	}

	if m.BaseVersion != nil && *m.BaseVersion < 0 {
		berr.add(i, "base_version", "must not be negative")
	}

	if len(m.IdempotencyKey) > MaxIdempotencyKeyLen {
		berr.add(i, "idempotency_key", "exceeds %d characters", MaxIdempotencyKeyLen)
	}
}

// ValidateStrategy checks a resolution strategy name against the known set.
func ValidateStrategy(name string, known []models.ResolutionStrategy) error {
	if name == "" {
		return fmt.Errorf("strategy is required")
	}
	for _, s := range known {
		if string(s) == name {
			return nil
		}
	}
	return fmt.Errorf("unknown strategy %q", name)
}
