package api

import (
	"fmt"
	"net/http"
	"os"
	"runtime"

	"poolgate.io/pgw/internal/types"
)

// @Title: Get Health
// @Route: GET /api/health
// @Description: Returns gateway health status
// @Response: {"status": "ok"}
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// @Title: Get Version
// @Route: GET /api/version
// @Description: Returns gateway version and runtime details
// @Response: {"version": "...", "status": "ok", ...}
func (s *Service) HandleVersion(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":      types.Version,
		"build_time":   types.BuildTime,
		"status":       "ok",
		"hostname":     hostname,
		"go_ver":       runtime.Version(),
		"os_arch":      fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		"destinations": len(s.dispatcher.Destinations()),
	})
}
