package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/apisdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// ReadyzHandler godoc
//
//	@Summary		Readiness Check Endpoint
//	@Description	Readiness check endpoint; reports degraded with 503 when the store is unreachable
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	apisdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	apisdk.HealthResponse	"status, uptime, version, checks - service not ready"
//	@Router			/readyz [get].
func ReadyzHandler(startTime time.Time, version string, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &apisdk.HealthChecks{Store: "ok"}
		status, code := "ok", http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			slogx.FromContext(r.Context()).Warn("store ping failed", "error", err)
			checks.Store = "error"
			status, code = "degraded", http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, code, apisdk.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
