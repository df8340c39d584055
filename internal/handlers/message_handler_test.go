package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waaku-golang/internal/config"
	"waaku-golang/internal/models"
	"waaku-golang/internal/session"
)

func readySession(t *testing.T, e *env, id string) *stubClient {
	t.Helper()
	rr := e.do(http.MethodPost, "/api/sessions", `{"id":"`+id+`"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	cli := e.clients[id]
	cli.events <- session.Event{Kind: session.EventReady}
	e.waitStatus(t, id, session.StatusReady)
	return cli
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Code
}

func TestSendMessage(t *testing.T) {
	e := newEnv(t)
	readySession(t, e, "vendas")

	rr := e.do(http.MethodPost, "/api/messages/vendas/send", `{"to":"5511999999999","message":"olá"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decode(t, rr)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["messageId"])
}

func TestSendMessageNotReady(t *testing.T) {
	e := newEnv(t)
	e.do(http.MethodPost, "/api/sessions", `{"id":"vendas"}`)

	rr := e.do(http.MethodPost, "/api/messages/vendas/send", `{"to":"5511999999999","message":"olá"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "SESSION_NOT_READY", errorCode(t, rr.Body.Bytes()))
}

func TestSendMessageUnknownSession(t *testing.T) {
	e := newEnv(t)

	rr := e.do(http.MethodPost, "/api/messages/fantasma/send", `{"to":"5511999999999","message":"olá"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", errorCode(t, rr.Body.Bytes()))
}

func TestSendMessageValidation(t *testing.T) {
	e := newEnv(t)
	readySession(t, e, "vendas")

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"número curto", `{"to":"123","message":"olá"}`, "VALIDATION_ERROR"},
		{"número vazio", `{"to":"","message":"olá"}`, "VALIDATION_ERROR"},
		{"mensagem vazia", `{"to":"5511999999999","message":"  "}`, "VALIDATION_ERROR"},
		{"json quebrado", `{"to":`, "INVALID_JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.do(http.MethodPost, "/api/messages/vendas/send", tt.body)
			require.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, rr.Body.Bytes()))
		})
	}
}

func TestSendMessageNumberNotFound(t *testing.T) {
	e := newEnv(t)
	cli := readySession(t, e, "vendas")
	cli.exists = false

	rr := e.do(http.MethodPost, "/api/messages/vendas/send", `{"to":"5511999999999","message":"olá"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NUMBER_NOT_FOUND", errorCode(t, rr.Body.Bytes()))
}

func TestSendMessageTransportFailure(t *testing.T) {
	e := newEnv(t)
	cli := readySession(t, e, "vendas")
	cli.sendErr = errors.New("websocket disconnected before completing")

	rr := e.do(http.MethodPost, "/api/messages/vendas/send", `{"to":"5511999999999","message":"olá"}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "SEND_FAILED", resp.Code)
	assert.Contains(t, resp.Details["hint"], "instável")
}

func TestSendMessageDoesNotWaitForChatwoot(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	e := newEnvWithChatwoot(t, config.ChatwootConfig{
		URL:       srv.URL,
		Token:     "t0k3n",
		AccountID: "1",
		InboxID:   "1",
	})
	readySession(t, e, "vendas")

	// O Chatwoot está pendurado no canal; a resposta do envio não pode
	// esperar por ele.
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- e.do(http.MethodPost, "/api/messages/vendas/send", `{"to":"5511999999999","message":"olá"}`)
	}()

	select {
	case rr := <-done:
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, true, decode(t, rr)["success"])
	case <-time.After(2 * time.Second):
		t.Fatal("resposta do envio ficou presa atrás do Chatwoot")
	}
}

func TestValidateNumber(t *testing.T) {
	e := newEnv(t)
	cli := readySession(t, e, "vendas")

	rr := e.do(http.MethodPost, "/api/messages/vendas/validate", `{"to":"5511999999999"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, true, body["exists"])
	assert.Equal(t, "5511999999999@s.whatsapp.net", body["chatId"])

	cli.exists = false
	rr = e.do(http.MethodPost, "/api/messages/vendas/validate", `{"to":"5511999999999"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decode(t, rr)["exists"])

	// O número passa por normalização antes da validação de formato.
	rr = e.do(http.MethodPost, "/api/messages/vendas/validate", `{"to":"+55 (11) 99999-9999"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
}
