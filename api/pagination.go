package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/customersvc/internal/uuid"
	"github.com/jmcleod/customersvc/storage"
)

// parsePaging reads "pageNumber" and "pageSize". Missing values select the
// first page and storage.DefaultPageSize; sizes above storage.MaxPageSize are
// capped. Values that are not positive integers are rejected.
func parsePaging(r *http.Request) (page, pageSize int, ok bool) {
	q := r.URL.Query()
	page, ok = positiveParam(q.Get("pageNumber"))
	if !ok {
		return 0, 0, false
	}
	pageSize, ok = positiveParam(q.Get("pageSize"))
	if !ok {
		return 0, 0, false
	}
	page, pageSize = storage.NormalizePaging(page, pageSize)
	return page, pageSize, true
}

// positiveParam parses v as a positive integer. The empty string yields 0.
func positiveParam(v string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// parseOnlyActive reads the "onlyActive" flag, defaulting to false.
func parseOnlyActive(r *http.Request) (bool, bool) {
	v := r.URL.Query().Get("onlyActive")
	if v == "" {
		return false, true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// pathID returns the {id} URL parameter. Anything that is not a UUID cannot
// name a record, so it is answered with 404 and notFound.
func pathID(w http.ResponseWriter, r *http.Request, notFound string) (string, bool) {
	id := chi.URLParam(r, "id")
	if !uuid.Valid(id) {
		writeError(w, http.StatusNotFound, notFound)
		return "", false
	}
	return id, true
}
