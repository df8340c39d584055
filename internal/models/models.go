package models

import "time"

type CreateSessionRequest struct {
	ID string `json:"id" validate:"required"`
}

type ValidateNumberRequest struct {
	To string `json:"to" validate:"required"`
}

type SendMessageRequest struct {
	To      string `json:"to" validate:"required"`
	Message string `json:"message" validate:"required"`
}

type APIResponse struct {
	Status    string      `json:"status"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type ErrorResponse struct {
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	Code      string            `json:"code"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// SessionSummary é a visão somente-leitura de uma sessão exposta em
// GET /api/sessions e nos eventos sessions:update.
type SessionSummary struct {
	ID           string    `json:"id"`
	Ready        bool      `json:"ready"`
	Status       string    `json:"status"`
	ClientState  string    `json:"clientState,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	Uptime       int64     `json:"uptime"`
}

type ContactSummary struct {
	Name        string `json:"name"`
	Number      string `json:"number"`
	IsMyContact bool   `json:"isMyContact"`
}

type ChatSummary struct {
	Name             string `json:"name"`
	IsGroup          bool   `json:"isGroup"`
	ParticipantCount *int   `json:"participantCount"`
}

type QuotedMessage struct {
	ID        string     `json:"id"`
	Body      string     `json:"body"`
	From      string     `json:"from"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// MessageEvent é o registro canônico de uma mensagem recebida, montado pelo
// dispatcher antes de qualquer encaminhamento (webhook, Chatwoot, fan-out).
type MessageEvent struct {
	SessionID     string         `json:"sessionId"`
	MessageID     string         `json:"messageId"`
	From          string         `json:"from"`
	To            string         `json:"to"`
	Body          string         `json:"body"`
	Timestamp     time.Time      `json:"timestamp"`
	IsReply       bool           `json:"isReply"`
	QuotedMessage *QuotedMessage `json:"quotedMessage,omitempty"`
	Contact       ContactSummary `json:"contact"`
	Chat          ChatSummary    `json:"chat"`
}

func NewSuccessResponse(message string, data interface{}) *APIResponse {
	return &APIResponse{
		Status:    "success",
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func NewErrorResponse(message, code string, details map[string]string) *ErrorResponse {
	return &ErrorResponse{
		Status:    "error",
		Message:   message,
		Code:      code,
		Details:   details,
		Timestamp: time.Now(),
	}
}
