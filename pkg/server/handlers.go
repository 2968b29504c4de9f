package server

import (
	"net/http"
	"strconv"
	"time"

	"mercator-hq/relay/pkg/networkusage"
)

// maxListLimit caps the number of records one list request returns.
const maxListLimit = 1000

// purgeResponse reports how many records a purge removed.
type purgeResponse struct {
	Deleted int64     `json:"deleted"`
	Before  time.Time `json:"before"`
}

// listUsage handles GET /v1/network-usage.
func (s *Server) listUsage(w http.ResponseWriter, r *http.Request) {
	q, err := parseUsageQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.usage.List(r.Context(), q)
	if err != nil {
		s.logger.Error("failed to list network usage", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list network usage")
		return
	}
	if records == nil {
		records = []*networkusage.Entity{}
	}
	writeJSON(w, http.StatusOK, records)
}

// purgeUsage handles DELETE /v1/network-usage?before=RFC3339.
func (s *Server) purgeUsage(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("before")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "before is required")
		return
	}
	before, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "before must be an RFC3339 timestamp")
		return
	}
	deleted, err := s.usage.DeleteAllBefore(r.Context(), before)
	if err != nil {
		s.logger.Error("failed to purge network usage", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to purge network usage")
		return
	}
	s.logger.Info("purged network usage", "deleted", deleted, "before", before)
	writeJSON(w, http.StatusOK, purgeResponse{Deleted: deleted, Before: before})
}

// listFlags handles GET /v1/flags.
func (s *Server) listFlags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.flags.Snapshot())
}

// parseUsageQuery reads type, status, since, until, limit and offset.
func parseUsageQuery(r *http.Request) (*networkusage.Query, error) {
	values := r.URL.Query()
	q := &networkusage.Query{Limit: 100}

	if v := values.Get("type"); v != "" {
		t, err := networkusage.ParseConnectionType(v)
		if err != nil {
			return nil, err
		}
		q.Type = &t
	}
	if v := values.Get("status"); v != "" {
		st, err := networkusage.ParseStatus(v)
		if err != nil {
			return nil, err
		}
		q.Status = st
	}
	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"since", &q.Since}, {"until", &q.Until}} {
		v := values.Get(bound.name)
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, networkusage.NewValidationError(bound.name, "must be an RFC3339 timestamp")
		}
		*bound.dst = &ts
	}
	if v := values.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, networkusage.NewValidationError("limit", "must be a positive integer")
		}
		q.Limit = min(n, maxListLimit)
	}
	if v := values.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, networkusage.NewValidationError("offset", "must be a non-negative integer")
		}
		q.Offset = n
	}
	return q, nil
}
