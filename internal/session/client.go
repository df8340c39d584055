package session

import (
	"context"
	"time"
)

// Client é o recurso conectado subjacente de uma sessão (o transporte que de
// fato fala o protocolo de mensagens). O adapter concreto vive em
// internal/transport; o core só conhece esta interface.
type Client interface {
	// Events entrega os eventos de ciclo de vida na ordem em que o recurso
	// os emite. O canal é fechado quando o recurso morre.
	Events() <-chan Event
	// Messages entrega mensagens recebidas ainda cruas.
	Messages() <-chan RawMessage

	SendText(ctx context.Context, to, body string) (string, error)
	ResolveNumber(ctx context.Context, number string) (NumberInfo, error)
	Contact(ctx context.Context, addr string) (ContactInfo, error)
	Chat(ctx context.Context, addr string) (ChatInfo, error)

	// Destroy derruba o recurso. Chamadores aplicam timeout via ctx; erros
	// são engolidos pelo Manager para que um recurso travado nunca bloqueie
	// a remoção da sessão.
	Destroy(ctx context.Context) error
}

// ClientFactory cria o recurso subjacente de uma nova sessão.
type ClientFactory func(id string) (Client, error)

// RawMessage é uma mensagem recebida antes do enriquecimento feito pelo
// dispatcher.
type RawMessage struct {
	ID        string
	From      string
	To        string
	ChatID    string
	Body      string
	Timestamp time.Time
	Quoted    *QuotedRef
}

// QuotedRef referencia a mensagem citada quando a recebida é uma resposta.
// Timestamp fica nil quando o transporte não sabe quando a citada foi enviada.
type QuotedRef struct {
	ID        string
	Body      string
	From      string
	Timestamp *time.Time
}

type NumberInfo struct {
	Exists bool
	Number string
	ChatID string
}

type ContactInfo struct {
	Name        string
	Number      string
	IsMyContact bool
}

type ChatInfo struct {
	Name             string
	IsGroup          bool
	ParticipantCount int
}

// Notifier recebe os eventos de fan-out disparados pelo Manager. A entrega é
// melhor esforço: implementações nunca devem devolver o erro ao core.
type Notifier interface {
	Emit(event string, payload any)
}

// MessageSink consome mensagens cruas de uma sessão (o dispatcher).
type MessageSink interface {
	HandleIncoming(sessionID string, msg RawMessage, cli Client)
}
