package handlers

import (
	"net/http"
)

// PoolStatus reports browser session usage.
type PoolStatus interface {
	ActiveCount() int
	Capacity() int
}

// SessionUsage is the leased and maximum number of browser sessions.
type SessionUsage struct {
	Active   int `json:"active"`
	Capacity int `json:"capacity"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status   string        `json:"status"`
	Sessions *SessionUsage `json:"sessions,omitempty"`
}

// HealthHandler serves the health check. pool may be nil.
type HealthHandler struct {
	pool PoolStatus
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(pool PoolStatus) *HealthHandler {
	return &HealthHandler{pool: pool}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy"}
	if h.pool != nil {
		resp.Sessions = &SessionUsage{
			Active:   h.pool.ActiveCount(),
			Capacity: h.pool.Capacity(),
		}
	}
	respondJSON(w, http.StatusOK, resp)
}
