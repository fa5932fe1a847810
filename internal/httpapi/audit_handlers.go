package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"salesauto.org/internal/audit"
	"salesauto.org/internal/rbac"
)

// handleAuditEvents serves filtered audit queries. Exactly one filter
// dimension is applied per request: actor, action, resource, or time range.
func (a *API) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	if err := a.requirePermission(r, rbac.ResourceReport, rbac.ActionRead); err != nil {
		handleAuthError(w, r, err)
		return
	}

	q := r.URL.Query()
	offset, err := parsePositiveInt(q.Get("offset"), 0, 0, 1_000_000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "offset "+err.Error())
		return
	}
	limit, err := parsePositiveInt(q.Get("limit"), 100, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit "+err.Error())
		return
	}
	page := audit.Page{Offset: offset, Limit: limit}

	var events []audit.Event
	switch {
	case q.Get("actor") != "":
		events, err = a.trail.ByActor(r.Context(), q.Get("actor"), page)
	case q.Get("action") != "":
		events, err = a.trail.ByAction(r.Context(), q.Get("action"), page)
	case q.Get("resource_type") != "" && q.Get("resource_id") != "":
		events, err = a.trail.ByResource(r.Context(), q.Get("resource_type"), q.Get("resource_id"), page)
	case q.Get("from") != "" || q.Get("to") != "":
		from, to, perr := parseTimeRange(q.Get("from"), q.Get("to"))
		if perr != nil {
			writeError(w, r, http.StatusBadRequest, perr.Error())
			return
		}
		events, err = a.trail.ByTimeRange(r.Context(), from, to, page)
	default:
		writeError(w, r, http.StatusBadRequest,
			"one of actor, action, resource_type+resource_id, or from/to is required")
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "audit query failed")
		return
	}

	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"offset": offset,
		"limit":  limit,
	})
}

func parseTimeRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	from := time.Time{}
	to := time.Now().UTC()
	if strings.TrimSpace(fromRaw) != "" {
		t, err := time.Parse(time.RFC3339, fromRaw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be RFC3339")
		}
		from = t
	}
	if strings.TrimSpace(toRaw) != "" {
		t, err := time.Parse(time.RFC3339, toRaw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be RFC3339")
		}
		to = t
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("to must be after from")
	}
	return from, to, nil
}
