package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/gorilla/mux"

	"waaku-golang/internal/models"
	"waaku-golang/internal/session"
	"waaku-golang/pkg/logger"
	"waaku-golang/pkg/qrimg"
	"waaku-golang/pkg/validator"
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// SessionHandler expõe o ciclo de vida das sessões em /api/sessions.
type SessionHandler struct {
	manager *session.Manager
	logger  *logger.Logger
}

func NewSessionHandler(manager *session.Manager, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		logger:  log,
	}
}

// Create registra uma sessão nova. Criar um id que já existe devolve a sessão
// existente sem efeitos colaterais.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := validator.ValidateJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_JSON", nil)
		return
	}

	if !sessionIDPattern.MatchString(req.ID) {
		writeError(w, http.StatusBadRequest, "ID de sessão inválido", "VALIDATION_ERROR", map[string]string{
			"id": "use apenas letras, números, hífen e underscore (1-64 caracteres)",
		})
		return
	}

	rec, err := h.manager.Create(req.ID)
	if err != nil {
		h.logger.Errorf("Falha ao criar sessão %s: %v", req.ID, err)
		writeError(w, http.StatusInternalServerError, "Falha ao inicializar sessão", "SESSION_INIT_FAILED", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      rec.ID,
	})
}

// List devolve o resumo de todas as sessões registradas.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Summaries())
}

// QR devolve o desafio de pareamento atual como data URL PNG, ou null quando
// a sessão não está aguardando pareamento.
func (h *SessionHandler) QR(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rec, ok := h.manager.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Sessão não encontrada", "SESSION_NOT_FOUND", nil)
		return
	}

	if rec.Status != session.StatusQRPending || rec.QRChallenge == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"qr": nil})
		return
	}

	dataURL, err := qrimg.DataURL(rec.QRChallenge)
	if err != nil {
		h.logger.Errorf("Falha ao renderizar QR da sessão %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Falha ao gerar QR code", "QR_GENERATION_FAILED", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"qr": dataURL})
}

// HealthAll agrega a saúde de todas as sessões. Degradado responde 503 para
// que balanceadores enxerguem o estado sem interpretar o corpo.
func (h *SessionHandler) HealthAll(w http.ResponseWriter, r *http.Request) {
	agg := h.manager.HealthAll()

	status := http.StatusOK
	label := "ok"
	if !agg.OverallHealthy {
		status = http.StatusServiceUnavailable
		label = "degraded"
	}

	writeJSON(w, status, map[string]interface{}{
		"status":        label,
		"summary":       agg.Summary,
		"sessions":      agg.Sessions,
		"overallHealth": agg.OverallHealthy,
		"timestamp":     agg.Timestamp,
	})
}

// HealthOne avalia uma única sessão.
func (h *SessionHandler) HealthOne(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rec, ok := h.manager.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"id":      id,
			"status":  "not_found",
			"healthy": false,
		})
		return
	}

	health := session.Evaluate(rec, time.Now())
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// Restart derruba e recria a sessão, preservando o id.
func (h *SessionHandler) Restart(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rec, err := h.manager.Restart(id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Sessão não encontrada", "SESSION_NOT_FOUND", nil)
			return
		}
		h.logger.Errorf("Falha ao reiniciar sessão %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Falha ao reiniciar sessão", "SESSION_RESTART_FAILED", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      rec.ID,
	})
}

// Delete remove a sessão e derruba o recurso subjacente.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if !h.manager.Remove(id) {
		writeError(w, http.StatusNotFound, "Sessão não encontrada", "SESSION_NOT_FOUND", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      id,
	})
}
