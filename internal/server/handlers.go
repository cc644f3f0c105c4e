package server

import (
	"fmt"
	"net/http"

	"github.com/joshp123/hivewatch/internal/livefeed"
)

// HealthHandler reports liveness with the current feed status. The process is
// healthy whatever the feed does, so the status code is always 200.
func HealthHandler(status func() livefeed.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "ok feed=%s\n", status())
	}
}
