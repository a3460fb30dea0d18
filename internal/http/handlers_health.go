package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const defaultHealthTimeout = 2 * time.Second

// UpstreamChecker reports whether the identity provider can be reached.
type UpstreamChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandlers serves the liveness endpoint.
type HealthHandlers struct {
	Upstream UpstreamChecker // optional
	Timeout  time.Duration
	Logger   *slog.Logger
}

// HealthResponse is the /healthz body. Upstream is omitted when no checker is set.
type HealthResponse struct {
	Status   string `json:"status"`
	Upstream string `json:"upstream,omitempty"`
}

// Health always answers 200 so the process is not restarted for a provider
// outage; the status turns "degraded" while the provider is unreachable.
// GET|HEAD /healthz.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if h.Upstream != nil {
		resp.Upstream = "reachable"
		if err := h.ping(r.Context()); err != nil {
			h.logger().WarnContext(r.Context(), "identity provider unreachable", slog.Any("error", err))
			resp.Status = "degraded"
			resp.Upstream = "unreachable"
		}
	}

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (h *HealthHandlers) ping(ctx context.Context) error {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return h.Upstream.Ping(ctx)
}

func (h *HealthHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
