package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/certify-backend/internal/response"
)

// Probe checks one dependency.
type Probe func(ctx context.Context) error

// HealthHandler reports dependency health.
type HealthHandler struct {
	probes map[string]Probe
	log    zerolog.Logger
}

// NewHealthHandler creates a HealthHandler over the named probes.
func NewHealthHandler(probes map[string]Probe, log zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		probes: probes,
		log:    log.With().Str("component", "health_handler").Logger(),
	}
}

// Health godoc
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.probes))
	for name, probe := range h.probes {
		if err := probe(ctx); err != nil {
			h.log.Warn().Err(err).Str("dependency", name).Msg("Health probe failed")
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "up"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	response.Success(c, status, gin.H{"status": state, "checks": checks})
}
