package services

import (
	"context"
	"sync"
	"time"

	"waaku-golang/internal/models"
	"waaku-golang/internal/session"
	"waaku-golang/pkg/logger"
)

const enrichTimeout = 15 * time.Second

// Dispatcher processa mensagens recebidas: enriquece com metadados de contato
// e chat, classifica resposta vs. mensagem nova e encaminha para o fan-out,
// o webhook e o Chatwoot. Os três destinos são independentes entre si.
type Dispatcher struct {
	webhook  *WebhookService
	chatwoot *ChatwootService
	notify   session.Notifier
	manager  *session.Manager
	logger   *logger.Logger
}

func NewDispatcher(
	webhook *WebhookService,
	chatwoot *ChatwootService,
	notify session.Notifier,
	manager *session.Manager,
	log *logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		webhook:  webhook,
		chatwoot: chatwoot,
		notify:   notify,
		manager:  manager,
		logger:   log,
	}
}

// HandleIncoming implementa session.MessageSink. A resolução de metadados
// acontece antes de qualquer encaminhamento; se falhar, o evento é descartado
// com log, sem retry.
func (d *Dispatcher) HandleIncoming(sessionID string, raw session.RawMessage, cli session.Client) {
	d.logger.Infof("[%s] Mensagem recebida de %s", sessionID, raw.From)

	ctx, cancel := context.WithTimeout(context.Background(), enrichTimeout)
	defer cancel()

	contact, err := cli.Contact(ctx, raw.From)
	if err != nil {
		d.logger.Errorf("[%s] Falha ao resolver contato de %s, mensagem descartada: %v", sessionID, raw.From, err)
		return
	}
	chat, err := cli.Chat(ctx, raw.ChatID)
	if err != nil {
		d.logger.Errorf("[%s] Falha ao resolver chat %s, mensagem descartada: %v", sessionID, raw.ChatID, err)
		return
	}

	evt := models.MessageEvent{
		SessionID: sessionID,
		MessageID: raw.ID,
		From:      raw.From,
		To:        raw.To,
		Body:      raw.Body,
		Timestamp: raw.Timestamp,
		IsReply:   raw.Quoted != nil,
		Contact: models.ContactSummary{
			Name:        contact.Name,
			Number:      contact.Number,
			IsMyContact: contact.IsMyContact,
		},
		Chat: chatSummary(chat),
	}

	socketEvent := "message:received"
	webhookEvent := "message_received"
	if evt.IsReply {
		socketEvent = "message:reply"
		webhookEvent = "message_reply"
		evt.QuotedMessage = &models.QuotedMessage{
			ID:        raw.Quoted.ID,
			Body:      raw.Quoted.Body,
			From:      raw.Quoted.From,
			Timestamp: raw.Quoted.Timestamp,
		}
	}

	// Os três encaminhamentos correm isolados; a ordem relativa de conclusão
	// não é garantida e a falha de um não aborta os demais.
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if d.notify != nil {
			d.notify.Emit(socketEvent, evt)
		}
	}()
	go func() {
		defer wg.Done()
		if d.webhook != nil {
			_ = d.webhook.Send(webhookEvent, evt)
		}
	}()
	go func() {
		defer wg.Done()
		if d.chatwoot != nil {
			_ = d.chatwoot.HandleMessage(evt, "incoming")
		}
	}()
	wg.Wait()

	if d.manager != nil {
		d.manager.Touch(sessionID)
	}
}

// HandleOutgoing sincroniza uma mensagem enviada com sucesso pela API com o
// Chatwoot. No contexto do Chatwoot o destinatário vira o "from".
func (d *Dispatcher) HandleOutgoing(sessionID, to, body string) {
	if d.chatwoot == nil {
		return
	}
	evt := models.MessageEvent{
		SessionID: sessionID,
		From:      to,
		To:        to,
		Body:      body,
		Timestamp: time.Now(),
		Contact: models.ContactSummary{
			Name:   to,
			Number: to,
		},
	}
	_ = d.chatwoot.HandleMessage(evt, "outgoing")
}

func chatSummary(chat session.ChatInfo) models.ChatSummary {
	summary := models.ChatSummary{
		Name:    chat.Name,
		IsGroup: chat.IsGroup,
	}
	if chat.IsGroup {
		count := chat.ParticipantCount
		summary.ParticipantCount = &count
	}
	return summary
}
