package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"daoledger/internal/core"
	"daoledger/internal/report"
)

var startTime = time.Now()

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(startTime).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.svc == nil {
		checks["storage"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else if last, err := s.svc.LastFetched(ctx); err != nil {
		checks["storage"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else if last.IsZero() {
		checks["storage"] = "ok (no data yet)"
	} else {
		checks["storage"] = map[string]any{
			"status":       "ok",
			"last_fetched": last.Format(time.RFC3339),
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleSubUnits lists the sub-units with stored data.
func (s *Server) handleSubUnits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	units, err := s.svc.StoredSubUnits(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list sub-units failed")
		return
	}
	if units == nil {
		units = []core.SubUnit{}
	}
	writeJSON(w, http.StatusOK, units)
}

// handleSubDAOs discovers the SubDAOs of the main DAO live from the indexer.
func (s *Server) handleSubDAOs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		address = s.mainDAOAddress
	}
	if address == "" {
		writeError(w, http.StatusBadRequest, "missing address")
		return
	}

	subs, err := s.svc.DiscoverSubUnits(r.Context(), address)
	if err != nil {
		writeError(w, http.StatusBadGateway, "indexer query failed")
		return
	}
	if subs == nil {
		subs = []core.SubUnit{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// handleRefresh enqueues a refresh of one sub-unit or all configured ones.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("sub_unit"))
	var targets []core.SubUnit
	if name == "" {
		targets = s.subUnits
	} else {
		for _, sub := range s.subUnits {
			if sub.Name == name || sub.Address == name {
				targets = []core.SubUnit{sub}
				break
			}
		}
		if len(targets) == 0 {
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown sub-unit %q", name))
			return
		}
	}

	jobs := make([]map[string]string, 0, len(targets))
	for _, sub := range targets {
		jobID, err := s.svc.EnqueueRefresh(r.Context(), sub)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "enqueue refresh failed")
			return
		}
		jobs = append(jobs, map[string]string{
			"sub_unit": sub.Label(),
			"job_id":   jobID,
		})
	}

	// New data is coming, stale listings must not be served.
	s.paymentsCache.Purge()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"jobs":   jobs,
	})
}

// handlePayments lists stored payment records, filtered by query params.
func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	records, err := s.loadPayments(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list payments failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(records),
		"payments": records,
	})
}

// handleReports builds an aggregated report over the stored payments.
// Grouping dimensions come from the group_by query parameter.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	groupBy, err := report.ParseGroupBy(r.URL.Query().Get("group_by"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.loadPayments(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list payments failed")
		return
	}

	writeJSON(w, http.StatusOK, report.Build(records, groupBy))
}

// handleSummary returns the headline numbers plus the size distribution.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	records, err := s.loadPayments(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list payments failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"summary":           report.Summarize(records),
		"size_distribution": report.SizeDistribution(records),
	})
}

// handleExportCSV streams the current report as a CSV download.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	records, err := s.loadPayments(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list payments failed")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="payments.csv"`)

	if raw := r.URL.Query().Get("group_by"); raw != "" {
		groupBy, err := report.ParseGroupBy(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := report.WriteCSV(w, report.Build(records, groupBy)); err != nil {
			writeError(w, http.StatusInternalServerError, "write csv failed")
		}
		return
	}

	if err := report.WritePaymentsCSV(w, records); err != nil {
		writeError(w, http.StatusInternalServerError, "write csv failed")
	}
}

// loadPayments serves filtered listings through the LRU cache.
func (s *Server) loadPayments(r *http.Request) ([]core.PaymentRecord, error) {
	f := parseFilter(r)
	key := filterCacheKey(f)

	if records, ok := s.paymentsCache.Get(key); ok {
		return records, nil
	}

	records, err := s.svc.Payments(r.Context(), f)
	if err != nil {
		return nil, err
	}
	s.paymentsCache.Set(key, records)
	return records, nil
}
