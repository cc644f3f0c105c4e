package server

import (
	"encoding/json"
	"net/http"

	"github.com/joshp123/hivewatch/internal/dashboard"
	"github.com/joshp123/hivewatch/internal/livefeed"
	"github.com/joshp123/hivewatch/internal/telemetry"
)

// SnapshotSource is the read side of the dashboard.
type SnapshotSource interface {
	View() dashboard.View
}

type snapshotView struct {
	Device   *telemetry.Device   `json:"device"`
	Status   livefeed.Status     `json:"status"`
	Readings []telemetry.Reading `json:"readings"`
}

// SnapshotHandler serves the selected hive and its telemetry window as JSON.
func SnapshotHandler(source SnapshotSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		current := source.View()
		view := snapshotView{Device: current.Device, Status: current.Status, Readings: current.Readings}
		if view.Readings == nil {
			view.Readings = []telemetry.Reading{}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(view)
	})
}
