package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"waaku-golang/internal/models"
	"waaku-golang/internal/services"
	"waaku-golang/internal/session"
	"waaku-golang/pkg/logger"
	"waaku-golang/pkg/validator"
)

// MessageHandler expõe envio e validação de números em cima de uma sessão
// pronta.
type MessageHandler struct {
	manager    *session.Manager
	dispatcher *services.Dispatcher
	logger     *logger.Logger
}

func NewMessageHandler(manager *session.Manager, dispatcher *services.Dispatcher, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		manager:    manager,
		dispatcher: dispatcher,
		logger:     log,
	}
}

// readySession resolve a sessão e garante que ela pode conversar com o
// WhatsApp. Escreve a resposta de erro e devolve ok=false quando não pode.
func (h *MessageHandler) readySession(w http.ResponseWriter, id string) (session.Client, bool) {
	rec, ok := h.manager.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Sessão não encontrada", "SESSION_NOT_FOUND", nil)
		return nil, false
	}

	if !rec.Ready {
		writeError(w, http.StatusBadRequest, "Sessão não está pronta", "SESSION_NOT_READY", map[string]string{
			"status": string(rec.Status),
		})
		return nil, false
	}

	cli, ok := h.manager.Client(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Sessão não encontrada", "SESSION_NOT_FOUND", nil)
		return nil, false
	}
	return cli, true
}

// ValidateNumber verifica se um número está registrado no WhatsApp.
func (h *MessageHandler) ValidateNumber(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req models.ValidateNumberRequest
	if err := validator.ValidateJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_JSON", nil)
		return
	}

	digits := validator.OnlyDigits(req.To)
	if err := validator.ValidatePhoneNumber(digits); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR", map[string]string{
			"to": req.To,
		})
		return
	}

	cli, ok := h.readySession(w, id)
	if !ok {
		return
	}

	info, err := cli.ResolveNumber(r.Context(), digits)
	if err != nil {
		h.logger.Errorf("[%s] Falha ao validar número: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Falha ao validar número", "NUMBER_VALIDATION_FAILED", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"exists": info.Exists,
		"number": info.Number,
		"chatId": info.ChatID,
	})
}

// SendMessage envia texto pela sessão. O número é validado contra o WhatsApp
// antes do envio para devolver um erro melhor que o do transporte.
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req models.SendMessageRequest
	if err := validator.ValidateJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_JSON", nil)
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Mensagem é obrigatória", "VALIDATION_ERROR", map[string]string{
			"message": "não pode ser vazia",
		})
		return
	}

	digits := validator.OnlyDigits(req.To)
	if err := validator.ValidatePhoneNumber(digits); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR", map[string]string{
			"to": req.To,
		})
		return
	}

	cli, ok := h.readySession(w, id)
	if !ok {
		return
	}

	info, err := cli.ResolveNumber(r.Context(), digits)
	if err != nil {
		h.logger.Errorf("[%s] Falha ao resolver número antes do envio: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Falha ao validar número", "NUMBER_VALIDATION_FAILED", nil)
		return
	}
	if !info.Exists {
		writeError(w, http.StatusNotFound, "Número não está registrado no WhatsApp", "NUMBER_NOT_FOUND", map[string]string{
			"to": req.To,
		})
		return
	}

	messageID, err := cli.SendText(r.Context(), info.ChatID, req.Message)
	if err != nil {
		h.logger.Errorf("[%s] Falha ao enviar mensagem: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Falha ao enviar mensagem", "SEND_FAILED", sendFailureDetails(err))
		return
	}

	// O registro no Chatwoot é melhor-esforço e pode levar segundos; a
	// resposta ao chamador não espera por ele.
	go h.dispatcher.HandleOutgoing(id, info.ChatID, req.Message)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"messageId": messageID,
	})
}

// sendFailureDetails traduz falhas conhecidas do transporte em dicas úteis.
func sendFailureDetails(err error) map[string]string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not logged in"):
		return map[string]string{"hint": "a sessão perdeu a autenticação, reinicie-a"}
	case strings.Contains(msg, "websocket"):
		return map[string]string{"hint": "conexão com o WhatsApp instável, tente novamente"}
	default:
		return nil
	}
}
