package httputil

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// PathParam returns a non-empty mux route variable
func PathParam(r *http.Request, key string) (string, error) {
	v := mux.Vars(r)[key]
	if v == "" {
		return "", fmt.Errorf("missing path parameter: %s", key)
	}
	return v, nil
}

// RequirePathParam returns a route variable, writing a 400 and reporting
// false when it is missing
func RequirePathParam(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v, err := PathParam(r, key)
	if err != nil {
		WriteBadRequest(w, r, err.Error())
		return "", false
	}
	return v, true
}

// QueryString returns a query parameter or def when it is absent
func QueryString(r *http.Request, key, def string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return def
}

// QueryInt parses an integer query parameter and clamps it to [min, max]
func QueryInt(r *http.Request, key string, def, min, max int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for query param %s: %s", key, s)
	}
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	return v, nil
}

// QueryTime parses an RFC 3339 query parameter. An absent parameter is nil.
func QueryTime(r *http.Request, key string) (*time.Time, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid time for query param %s: want RFC 3339", key)
	}
	return &t, nil
}
