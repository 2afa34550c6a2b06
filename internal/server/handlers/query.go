package handlers

import (
	"net/url"
	"strconv"
	"time"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/storage"
)

func parsePage(q url.Values) (storage.Page, error) {
	var p storage.Page
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, badRequest("invalid limit %q", v)
		}
		p.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, badRequest("invalid offset %q", v)
		}
		p.Offset = n
	}
	return p.Normalize(), nil
}

// parseRange reads RFC3339 from/to bounds.
func parseRange(q url.Values) (storage.TimeRange, error) {
	var tr storage.TimeRange
	for _, b := range []struct {
		name string
		dst  *time.Time
	}{{"from", &tr.From}, {"to", &tr.To}} {
		v := q.Get(b.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return tr, badRequest("invalid %s %q: want RFC3339", b.name, v)
		}
		*b.dst = t
	}
	if !tr.From.IsZero() && !tr.To.IsZero() && tr.To.Before(tr.From) {
		return tr, badRequest("to is before from")
	}
	return tr, nil
}

func parseQueueFilter(q url.Values) (storage.QueueFilter, error) {
	f := storage.QueueFilter{
		DeviceID:   q.Get("device"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	if v := q.Get("status"); v != "" {
		s := models.QueueStatus(v)
		if !s.Valid() {
			return f, badRequest("unknown status %q", v)
		}
		f.Status = s
	}

	var err error
	if f.Range, err = parseRange(q); err != nil {
		return f, err
	}
	f.Page, err = parsePage(q)
	return f, err
}

func parseConflictFilter(q url.Values) (storage.ConflictFilter, error) {
	f := storage.ConflictFilter{
		DeviceID:   q.Get("device"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	if v := q.Get("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, badRequest("invalid resolved %q", v)
		}
		f.Resolved = &b
	}

	var err error
	if f.Range, err = parseRange(q); err != nil {
		return f, err
	}
	f.Page, err = parsePage(q)
	return f, err
}

func parseSessionFilter(q url.Values) (storage.SessionFilter, error) {
	f := storage.SessionFilter{DeviceID: q.Get("device")}
	if v := q.Get("status"); v != "" {
		s := models.SessionStatus(v)
		if !s.Valid() {
			return f, badRequest("unknown status %q", v)
		}
		f.Status = s
	}

	var err error
	if f.Range, err = parseRange(q); err != nil {
		return f, err
	}
	f.Page, err = parsePage(q)
	return f, err
}
