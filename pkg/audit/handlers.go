package audit

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/ssohub/pkg/httputil"
	"github.com/platinummonkey/ssohub/pkg/logout"
)

// Handlers serves the audit log API
type Handlers struct {
	store Store
}

// NewHandlers creates audit handlers
func NewHandlers(store Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes mounts the audit routes on router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit/records", h.listRecords).Methods(http.MethodGet)
	router.HandleFunc("/audit/records/{id:[0-9]+}", h.getRecord).Methods(http.MethodGet)
	router.HandleFunc("/audit/export", h.exportRecords).Methods(http.MethodGet)
	router.HandleFunc("/audit/stats", h.getStats).Methods(http.MethodGet)
}

func (h *Handlers) listRecords(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, r, err.Error())
		return
	}
	records, err := h.store.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}

	_ = httputil.WriteOK(w, map[string]interface{}{
		"records": records,
		"count":   len(records),
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

func (h *Handlers) getRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, r, "invalid record ID")
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}
	if rec == nil {
		httputil.WriteNotFound(w, r, "record not found")
		return
	}
	_ = httputil.WriteOK(w, rec)
}

func (h *Handlers) exportRecords(w http.ResponseWriter, r *http.Request) {
	format := ExportFormat(httputil.QueryString(r, "format", string(ExportFormatJSON)))
	switch format {
	case ExportFormatJSON, ExportFormatCSV, ExportFormatNDJSON:
	default:
		httputil.WriteBadRequest(w, r, fmt.Sprintf("unsupported export format %q", format))
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, r, err.Error())
		return
	}
	data, err := h.store.Export(r.Context(), filter, format)
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}

	switch format {
	case ExportFormatCSV:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=slo-audit.csv")
	case ExportFormatNDJSON:
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Content-Disposition", "attachment; filename=slo-audit.ndjson")
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", "attachment; filename=slo-audit.json")
	}
	_, _ = w.Write(data)
}

func (h *Handlers) getStats(w http.ResponseWriter, r *http.Request) {
	start, err := httputil.QueryTime(r, "start_time")
	if err != nil {
		httputil.WriteBadRequest(w, r, err.Error())
		return
	}
	end, err := httputil.QueryTime(r, "end_time")
	if err != nil {
		httputil.WriteBadRequest(w, r, err.Error())
		return
	}

	stats, err := h.store.Stats(r.Context(), start, end)
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}
	_ = httputil.WriteOK(w, stats)
}

// parseFilter reads filters from the query string. A session parameter is
// hashed the way records store it.
func parseFilter(r *http.Request) (SearchFilter, error) {
	filter := SearchFilter{
		Principal: httputil.QueryString(r, "principal", ""),
		ServiceID: httputil.QueryString(r, "service", ""),
	}

	var err error
	if filter.StartTime, err = httputil.QueryTime(r, "start_time"); err != nil {
		return filter, err
	}
	if filter.EndTime, err = httputil.QueryTime(r, "end_time"); err != nil {
		return filter, err
	}
	if filter.Limit, err = httputil.QueryInt(r, "limit", 100, 1, 1000); err != nil {
		return filter, err
	}
	if filter.Offset, err = httputil.QueryInt(r, "offset", 0, 0, math.MaxInt32); err != nil {
		return filter, err
	}

	if s := httputil.QueryString(r, "session", ""); s != "" {
		filter.SessionHash = logout.SessionIDClaim(s)
	}
	if s := httputil.QueryString(r, "status", ""); s != "" {
		for _, part := range strings.Split(s, ",") {
			filter.Statuses = append(filter.Statuses, logout.Status(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	return filter, nil
}
