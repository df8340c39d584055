package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waaku-golang/internal/config"
	"waaku-golang/internal/models"
	"waaku-golang/internal/services"
	"waaku-golang/internal/session"
	"waaku-golang/pkg/logger"
)

type stubClient struct {
	events   chan session.Event
	messages chan session.RawMessage
	exists   bool
	sendErr  error
}

func newStubClient() *stubClient {
	return &stubClient{
		events:   make(chan session.Event, 16),
		messages: make(chan session.RawMessage, 16),
		exists:   true,
	}
}

func (s *stubClient) Events() <-chan session.Event        { return s.events }
func (s *stubClient) Messages() <-chan session.RawMessage { return s.messages }
func (s *stubClient) Destroy(context.Context) error       { return nil }

func (s *stubClient) SendText(ctx context.Context, to, body string) (string, error) {
	if s.sendErr != nil {
		return "", s.sendErr
	}
	return "3EB0C431C26A1916E07E", nil
}

func (s *stubClient) ResolveNumber(ctx context.Context, number string) (session.NumberInfo, error) {
	if !s.exists {
		return session.NumberInfo{Exists: false}, nil
	}
	return session.NumberInfo{Exists: true, Number: number, ChatID: number + "@s.whatsapp.net"}, nil
}

func (s *stubClient) Contact(ctx context.Context, addr string) (session.ContactInfo, error) {
	return session.ContactInfo{Name: "Contato", Number: "5511999999999"}, nil
}

func (s *stubClient) Chat(ctx context.Context, addr string) (session.ChatInfo, error) {
	return session.ChatInfo{Name: "Contato"}, nil
}

type nopNotifier struct{}

func (nopNotifier) Emit(event string, payload any) {}

type env struct {
	router  *mux.Router
	manager *session.Manager
	clients map[string]*stubClient
}

func newEnv(t *testing.T) *env {
	return newEnvWithChatwoot(t, config.ChatwootConfig{})
}

func newEnvWithChatwoot(t *testing.T, cwCfg config.ChatwootConfig) *env {
	t.Helper()
	log := logger.New("[TEST] ", logger.ERROR)

	e := &env{clients: make(map[string]*stubClient)}
	e.manager = session.NewManager(func(id string) (session.Client, error) {
		c := newStubClient()
		e.clients[id] = c
		return c, nil
	}, nopNotifier{}, log)
	t.Cleanup(e.manager.Shutdown)

	webhook := services.NewWebhookService(config.WebhookConfig{}, log)
	chatwoot := services.NewChatwootService(cwCfg, log)
	dispatcher := services.NewDispatcher(webhook, chatwoot, nopNotifier{}, e.manager, log)
	e.manager.SetMessageSink(dispatcher)

	sessions := NewSessionHandler(e.manager, log)
	messages := NewMessageHandler(e.manager, dispatcher, log)

	e.router = mux.NewRouter()
	e.router.HandleFunc("/api/sessions", sessions.Create).Methods(http.MethodPost)
	e.router.HandleFunc("/api/sessions", sessions.List).Methods(http.MethodGet)
	e.router.HandleFunc("/api/sessions/health", sessions.HealthAll).Methods(http.MethodGet)
	e.router.HandleFunc("/api/sessions/{id}", sessions.Delete).Methods(http.MethodDelete)
	e.router.HandleFunc("/api/sessions/{id}/qr", sessions.QR).Methods(http.MethodGet)
	e.router.HandleFunc("/api/sessions/{id}/health", sessions.HealthOne).Methods(http.MethodGet)
	e.router.HandleFunc("/api/sessions/{id}/restart", sessions.Restart).Methods(http.MethodPost)
	e.router.HandleFunc("/api/messages/{id}/send", messages.SendMessage).Methods(http.MethodPost)
	e.router.HandleFunc("/api/messages/{id}/validate", messages.ValidateNumber).Methods(http.MethodPost)
	return e
}

func (e *env) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *env) waitStatus(t *testing.T, id string, want session.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		rec, ok := e.manager.Get(id)
		return ok && rec.Status == want
	}, 2*time.Second, 5*time.Millisecond)
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestCreateSession(t *testing.T) {
	e := newEnv(t)

	rr := e.do(http.MethodPost, "/api/sessions", `{"id":"vendas"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "vendas", body["id"])

	// Criar de novo é no-op e responde igual.
	rr = e.do(http.MethodPost, "/api/sessions", `{"id":"vendas"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, e.clients, 1)
}

func TestCreateSessionValidation(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"id vazio", `{"id":""}`, "VALIDATION_ERROR"},
		{"id com espaço", `{"id":"minha sessão"}`, "VALIDATION_ERROR"},
		{"campo desconhecido", `{"id":"ok","extra":1}`, "INVALID_JSON"},
		{"json quebrado", `{"id":`, "INVALID_JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.do(http.MethodPost, "/api/sessions", tt.body)
			require.Equal(t, http.StatusBadRequest, rr.Code)

			var resp models.ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestQRLifecycle(t *testing.T) {
	e := newEnv(t)

	rr := e.do(http.MethodGet, "/api/sessions/vendas/qr", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	e.do(http.MethodPost, "/api/sessions", `{"id":"vendas"}`)

	// Antes do desafio chegar, qr é null.
	rr = e.do(http.MethodGet, "/api/sessions/vendas/qr", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, decode(t, rr)["qr"])

	e.clients["vendas"].events <- session.Event{Kind: session.EventQRIssued, Challenge: "2@desafio"}
	e.waitStatus(t, "vendas", session.StatusQRPending)

	rr = e.do(http.MethodGet, "/api/sessions/vendas/qr", "")
	require.Equal(t, http.StatusOK, rr.Code)
	qr, ok := decode(t, rr)["qr"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(qr, "data:image/png;base64,"))

	// Depois de autenticar, o desafio some.
	e.clients["vendas"].events <- session.Event{Kind: session.EventAuthenticated}
	e.waitStatus(t, "vendas", session.StatusAuthenticated)

	rr = e.do(http.MethodGet, "/api/sessions/vendas/qr", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, decode(t, rr)["qr"])
}

func TestDeleteSession(t *testing.T) {
	e := newEnv(t)

	rr := e.do(http.MethodDelete, "/api/sessions/fantasma", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "SESSION_NOT_FOUND", resp.Code)

	e.do(http.MethodPost, "/api/sessions", `{"id":"vendas"}`)

	rr = e.do(http.MethodDelete, "/api/sessions/vendas", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode(t, rr)["success"])

	rr = e.do(http.MethodDelete, "/api/sessions/vendas", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRestartSession(t *testing.T) {
	e := newEnv(t)

	rr := e.do(http.MethodPost, "/api/sessions/fantasma/restart", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	e.do(http.MethodPost, "/api/sessions", `{"id":"vendas"}`)
	rr = e.do(http.MethodPost, "/api/sessions/vendas/restart", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode(t, rr)["success"])
}

func TestListSessions(t *testing.T) {
	e := newEnv(t)

	rr := e.do(http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))

	e.do(http.MethodPost, "/api/sessions", `{"id":"vendas"}`)

	rr = e.do(http.MethodGet, "/api/sessions", "")
	var list []models.SessionSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "vendas", list[0].ID)
	assert.Equal(t, "initializing", list[0].Status)
}

func TestHealthEndpoints(t *testing.T) {
	e := newEnv(t)

	// Sem sessões o agregado é saudável.
	rr := e.do(http.MethodGet, "/api/sessions/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["overallHealth"])

	rr = e.do(http.MethodGet, "/api/sessions/fantasma/health", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	body = decode(t, rr)
	assert.Equal(t, "not_found", body["status"])
	assert.Equal(t, false, body["healthy"])

	e.do(http.MethodPost, "/api/sessions", `{"id":"vendas"}`)
	e.clients["vendas"].events <- session.Event{Kind: session.EventReady}
	e.waitStatus(t, "vendas", session.StatusReady)

	rr = e.do(http.MethodGet, "/api/sessions/vendas/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body = decode(t, rr)
	assert.Equal(t, true, body["healthy"])
	assert.Equal(t, "ready", body["status"])

	// Sessão única não-saudável derruba o agregado (0/1 < 4/5).
	e.clients["vendas"].events <- session.Event{Kind: session.EventDisconnected, Reason: "drop"}
	e.waitStatus(t, "vendas", session.StatusDisconnected)

	rr = e.do(http.MethodGet, "/api/sessions/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "degraded", decode(t, rr)["status"])
}
