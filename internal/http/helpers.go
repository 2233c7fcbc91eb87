package http

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"daoledger/internal/core"
	"daoledger/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// extractClientIP returns the direct peer address. Forwarded headers are
// only honored from loopback and private ranges.
func extractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsed := net.ParseIP(directIP)
	if parsed == nil {
		return directIP
	}

	if parsed.IsLoopback() || parsed.IsPrivate() {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
	}

	return directIP
}

// parseFilter builds a storage filter from query parameters.
func parseFilter(r *http.Request) storage.Filter {
	q := r.URL.Query()
	return storage.Filter{
		SubUnitAddress: strings.TrimSpace(q.Get("sub_unit")),
		Category:       core.RecipientCategory(strings.TrimSpace(q.Get("category"))),
		Recipient:      strings.TrimSpace(q.Get("recipient")),
		Denom:          strings.TrimSpace(q.Get("denom")),
	}
}

// filterCacheKey is stable across identical queries so cached listings hit.
func filterCacheKey(f storage.Filter) string {
	return strings.Join([]string{f.SubUnitAddress, string(f.Category), f.Recipient, f.Denom}, "|")
}
