package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"waaku-golang/internal/config"
	"waaku-golang/internal/models"
	"waaku-golang/pkg/logger"
	"waaku-golang/pkg/validator"
)

const chatwootTimeout = 10 * time.Second

// ChatwootService sincroniza mensagens com uma caixa de entrada de suporte
// estilo Chatwoot. Todas as chamadas são melhor esforço: nenhuma falha aqui
// pode abortar os outros encaminhamentos do dispatcher.
type ChatwootService struct {
	baseURL       string
	token         string
	accountID     string
	inboxID       string
	enabled       bool
	autoProvision bool
	httpClient    *http.Client
	logger        *logger.Logger
}

func NewChatwootService(cfg config.ChatwootConfig, log *logger.Logger) *ChatwootService {
	return &ChatwootService{
		baseURL:       strings.TrimRight(cfg.URL, "/"),
		token:         cfg.Token,
		accountID:     cfg.AccountID,
		inboxID:       cfg.InboxID,
		enabled:       cfg.Enabled(),
		autoProvision: cfg.AutoProvision,
		httpClient:    &http.Client{Timeout: chatwootTimeout},
		logger:        log,
	}
}

func (c *ChatwootService) Enabled() bool {
	return c.enabled
}

type chatwootContact struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type chatwootConversation struct {
	ID   int `json:"id"`
	Meta struct {
		Sender struct {
			ID int `json:"id"`
		} `json:"sender"`
	} `json:"meta"`
}

// cleanPhoneNumber remove sufixos de endereço (@s.whatsapp.net, @c.us, @g.us)
// e tudo que não for dígito.
func cleanPhoneNumber(addr string) string {
	if idx := strings.IndexByte(addr, '@'); idx != -1 {
		addr = addr[:idx]
	}
	return validator.OnlyDigits(addr)
}

func (c *ChatwootService) doJSON(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("falha ao serializar corpo: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("falha ao criar requisição: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api_access_token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("chatwoot respondeu status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("falha ao decodificar resposta: %w", err)
		}
	}
	return nil
}

func (c *ChatwootService) findContact(ctx context.Context, phone string) (*chatwootContact, error) {
	var result struct {
		Payload []chatwootContact `json:"payload"`
	}
	query := url.Values{"q": {phone}}
	path := fmt.Sprintf("/api/v1/accounts/%s/contacts/search", c.accountID)
	if err := c.doJSON(ctx, http.MethodGet, path, query, nil, &result); err != nil {
		return nil, err
	}
	if len(result.Payload) == 0 {
		return nil, nil
	}
	return &result.Payload[0], nil
}

func (c *ChatwootService) createContact(ctx context.Context, name, phone string) (*chatwootContact, error) {
	var result struct {
		Payload struct {
			Contact chatwootContact `json:"contact"`
		} `json:"payload"`
	}
	path := fmt.Sprintf("/api/v1/accounts/%s/contacts", c.accountID)
	body := map[string]any{
		"name":       name,
		"phone":      phone,
		"identifier": phone,
	}
	if err := c.doJSON(ctx, http.MethodPost, path, nil, body, &result); err != nil {
		return nil, err
	}
	c.logger.Infof("Contato criado no Chatwoot: %s", phone)
	return &result.Payload.Contact, nil
}

func (c *ChatwootService) getOrCreateContact(ctx context.Context, name, phone string) (*chatwootContact, error) {
	contact, err := c.findContact(ctx, phone)
	if err != nil {
		return nil, err
	}
	if contact != nil {
		return contact, nil
	}
	if !c.autoProvision {
		return nil, fmt.Errorf("contato %s não existe e auto-provisionamento está desligado", phone)
	}
	return c.createContact(ctx, name, phone)
}

func (c *ChatwootService) findConversation(ctx context.Context, contactID int) (*chatwootConversation, error) {
	var result struct {
		Data struct {
			Payload []chatwootConversation `json:"payload"`
		} `json:"data"`
	}
	query := url.Values{"inbox_id": {c.inboxID}, "status": {"open"}}
	path := fmt.Sprintf("/api/v1/accounts/%s/conversations", c.accountID)
	if err := c.doJSON(ctx, http.MethodGet, path, query, nil, &result); err != nil {
		return nil, err
	}
	for i := range result.Data.Payload {
		if result.Data.Payload[i].Meta.Sender.ID == contactID {
			return &result.Data.Payload[i], nil
		}
	}
	return nil, nil
}

func (c *ChatwootService) createConversation(ctx context.Context, contactID int) (*chatwootConversation, error) {
	inboxID, err := strconv.Atoi(c.inboxID)
	if err != nil {
		return nil, fmt.Errorf("CHATWOOT_INBOX_ID inválido: %w", err)
	}

	var conv chatwootConversation
	path := fmt.Sprintf("/api/v1/accounts/%s/conversations", c.accountID)
	body := map[string]any{
		"source_id":  fmt.Sprintf("whatsapp_%d_%d", contactID, time.Now().UnixMilli()),
		"inbox_id":   inboxID,
		"contact_id": contactID,
	}
	if err := c.doJSON(ctx, http.MethodPost, path, nil, body, &conv); err != nil {
		return nil, err
	}
	c.logger.Infof("Conversa criada no Chatwoot para o contato %d", contactID)
	return &conv, nil
}

func (c *ChatwootService) getOrCreateConversation(ctx context.Context, contactID int) (*chatwootConversation, error) {
	conv, err := c.findConversation(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}
	if !c.autoProvision {
		return nil, fmt.Errorf("conversa do contato %d não existe e auto-provisionamento está desligado", contactID)
	}
	return c.createConversation(ctx, contactID)
}

func (c *ChatwootService) sendMessage(ctx context.Context, conversationID int, content, messageType string) error {
	path := fmt.Sprintf("/api/v1/accounts/%s/conversations/%d/messages", c.accountID, conversationID)
	body := map[string]any{
		"content":      content,
		"message_type": messageType,
		"private":      false,
	}
	if err := c.doJSON(ctx, http.MethodPost, path, nil, body, nil); err != nil {
		return err
	}
	c.logger.Infof("Mensagem enviada para a conversa %d do Chatwoot", conversationID)
	return nil
}

// HandleMessage sincroniza um MessageEvent com o Chatwoot. direction é
// "incoming" ou "outgoing". Erros são logados e devolvidos apenas para
// observabilidade em testes.
func (c *ChatwootService) HandleMessage(evt models.MessageEvent, direction string) error {
	if !c.enabled {
		c.logger.Debugf("Chatwoot não configurado, ignorando mensagem")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), chatwootTimeout)
	defer cancel()

	phone := cleanPhoneNumber(evt.From)

	name := evt.Contact.Name
	if name == "" {
		name = phone
	}
	contact, err := c.getOrCreateContact(ctx, name, phone)
	if err != nil {
		c.logger.Errorf("[%s] Falha ao resolver contato no Chatwoot: %v", evt.SessionID, err)
		return err
	}

	conv, err := c.getOrCreateConversation(ctx, contact.ID)
	if err != nil {
		c.logger.Errorf("[%s] Falha ao resolver conversa no Chatwoot: %v", evt.SessionID, err)
		return err
	}

	content := evt.Body
	if evt.IsReply && evt.QuotedMessage != nil {
		content = fmt.Sprintf("[Resposta a: %q]\n\n%s", evt.QuotedMessage.Body, content)
	}

	if err := c.sendMessage(ctx, conv.ID, content, direction); err != nil {
		c.logger.Errorf("[%s] Falha ao enviar mensagem ao Chatwoot: %v", evt.SessionID, err)
		return err
	}
	return nil
}
