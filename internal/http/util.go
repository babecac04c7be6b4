package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/model"
	apperrors "github.com/FlashBlank7/ModelsEvalSystem/internal/errors"
)

// parseIntQuery returns the integer value of a query param or a default.
// It is tolerant of missing/invalid values.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// parseJobFilters reads the kind, status and order filters of a job listing.
// Unknown kinds or statuses are a validation error rather than an empty page.
func parseJobFilters(r *http.Request) (model.JobListOptions, error) {
	q := r.URL.Query()
	opts := model.JobListOptions{
		Limit:  parseIntQuery(r, "limit", 0),
		Offset: parseIntQuery(r, "offset", 0),
	}

	if v := strings.TrimSpace(q.Get("kind")); v != "" {
		var kind model.JobKind
		if err := kind.UnmarshalText([]byte(v)); err != nil {
			return opts, apperrors.ValidationField("kind", err.Error())
		}
		opts.Kind = &kind
	}

	if v := strings.ToLower(strings.TrimSpace(q.Get("status"))); v != "" {
		status := model.JobStatus(v)
		if !status.Valid() {
			return opts, apperrors.ValidationField("status", "invalid job status: "+strconv.Quote(v))
		}
		opts.Status = &status
	}

	opts.OldestFirst = strings.EqualFold(q.Get("order"), "asc")
	return opts, nil
}
