package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"waaku-golang/internal/models"
	"waaku-golang/pkg/logger"
)

const (
	serviceName    = "waaku-golang"
	serviceVersion = "1.0.0"
)

// Handler concentra os endpoints que não pertencem a nenhuma sessão.
type Handler struct {
	logger    *logger.Logger
	startTime time.Time
}

func NewHandler(log *logger.Logger) *Handler {
	return &Handler{
		logger:    log,
		startTime: time.Now(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, code string, details map[string]string) {
	writeJSON(w, status, models.NewErrorResponse(message, code, details))
}

// HealthCheck responde GET /health sem autenticação. Usado por probes.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"goroutines": fmt.Sprintf("%d", runtime.NumGoroutine()),
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		checks["memory"] = fmt.Sprintf("%.1f%%", vm.UsedPercent)
	}

	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:    "healthy",
		Service:   serviceName,
		Version:   serviceVersion,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now(),
		Checks:    checks,
	})
}

func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Rota não encontrada", "NOT_FOUND", map[string]string{
		"path": r.URL.Path,
	})
}

func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Método não permitido", "METHOD_NOT_ALLOWED", map[string]string{
		"method": r.Method,
	})
}
