package transport

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"waaku-golang/internal/config"
	"waaku-golang/internal/session"
	"waaku-golang/pkg/logger"
	"waaku-golang/pkg/validator"
)

const eventBuffer = 32

// Factory cria clientes whatsmeow por sessão, compartilhando o container
// sqlite de credenciais de dispositivo.
type Factory struct {
	container *sqlstore.Container
	cfg       *config.Config
	logger    *logger.Logger
}

func NewFactory(cfg *config.Config, log *logger.Logger) (*Factory, error) {
	waLogger := logger.NewWhatsAppLogger("[WhatsApp] ", logger.LevelFromString(cfg.LogLevel))

	container, err := sqlstore.New(context.Background(), cfg.Database.Driver, cfg.Database.DSN, waLogger)
	if err != nil {
		return nil, fmt.Errorf("falha ao inicializar banco de credenciais: %w", err)
	}

	return &Factory{
		container: container,
		cfg:       cfg,
		logger:    log,
	}, nil
}

// NewClient implementa session.ClientFactory: cada sessão recebe um device
// novo; a sessão faz o pareamento via QR do zero.
func (f *Factory) NewClient(id string) (session.Client, error) {
	deviceStore := f.container.NewDevice()

	waLogger := logger.NewWhatsAppLogger(fmt.Sprintf("[WA:%s] ", id), logger.LevelFromString(f.cfg.LogLevel))
	cli := whatsmeow.NewClient(deviceStore, waLogger)

	c := &waClient{
		id:         id,
		cli:        cli,
		events:     make(chan session.Event, eventBuffer),
		messages:   make(chan session.RawMessage, eventBuffer),
		qrTerminal: f.cfg.WhatsApp.QRTerminal,
		country:    f.cfg.WhatsApp.DefaultCountry,
		logger:     f.logger,
	}

	cli.AddEventHandler(c.handleEvent)

	qrCtx, cancelQR := context.WithCancel(context.Background())
	c.cancelQR = cancelQR
	qrChan, err := cli.GetQRChannel(qrCtx)
	if err != nil {
		cancelQR()
		return nil, fmt.Errorf("falha ao obter canal de QR: %w", err)
	}

	if err := cli.Connect(); err != nil {
		cancelQR()
		return nil, fmt.Errorf("falha ao conectar: %w", err)
	}

	go c.monitorQR(qrChan)

	return c, nil
}

type waClient struct {
	id         string
	cli        *whatsmeow.Client
	events     chan session.Event
	messages   chan session.RawMessage
	cancelQR   context.CancelFunc
	qrTerminal bool
	country    string
	logger     *logger.Logger

	destroyed   atomic.Bool
	destroyOnce sync.Once
}

func (c *waClient) Events() <-chan session.Event {
	return c.events
}

func (c *waClient) Messages() <-chan session.RawMessage {
	return c.messages
}

func (c *waClient) pushEvent(evt session.Event) {
	if c.destroyed.Load() {
		return
	}
	select {
	case c.events <- evt:
	default:
		c.logger.Warnf("[%s] Buffer de eventos cheio, evento %s descartado", c.id, evt.Kind)
	}
}

func (c *waClient) pushMessage(raw session.RawMessage) {
	if c.destroyed.Load() {
		return
	}
	select {
	case c.messages <- raw:
	default:
		c.logger.Warnf("[%s] Buffer de mensagens cheio, mensagem %s descartada", c.id, raw.ID)
	}
}

func (c *waClient) monitorQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			if c.qrTerminal {
				qrterminal.GenerateHalfBlock(item.Code, qrterminal.L, os.Stdout)
			}
			c.pushEvent(session.Event{Kind: session.EventQRIssued, Challenge: item.Code})
		case "success":
			return
		case "timeout":
			c.pushEvent(session.Event{Kind: session.EventDisconnected, Reason: "qr timeout"})
			return
		default:
			if item.Error != nil {
				c.pushEvent(session.Event{Kind: session.EventAuthFailed, Reason: item.Error.Error()})
			}
			return
		}
	}
}

func (c *waClient) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.PairSuccess:
		c.pushEvent(session.Event{Kind: session.EventAuthenticated})

	case *events.Connected:
		c.pushEvent(session.Event{Kind: session.EventReady})

	case *events.ConnectFailure:
		c.pushEvent(session.Event{Kind: session.EventAuthFailed, Reason: fmt.Sprintf("connect failure: %v", v.Reason)})

	case *events.LoggedOut:
		c.pushEvent(session.Event{Kind: session.EventAuthFailed, Reason: fmt.Sprintf("logged out: %v", v.Reason)})

	case *events.Disconnected:
		c.pushEvent(session.Event{Kind: session.EventDisconnected, Reason: "connection closed"})

	case *events.StreamReplaced:
		c.pushEvent(session.Event{Kind: session.EventStateChanged, RawState: "stream_replaced"})
		c.pushEvent(session.Event{Kind: session.EventDisconnected, Reason: "stream replaced"})

	case *events.KeepAliveTimeout:
		c.pushEvent(session.Event{Kind: session.EventStateChanged, RawState: "keepalive_timeout"})

	case *events.KeepAliveRestored:
		c.pushEvent(session.Event{Kind: session.EventStateChanged, RawState: "connected"})

	case *events.Message:
		if raw, ok := c.toRawMessage(v); ok {
			c.pushMessage(raw)
		}
	}
}

func (c *waClient) toRawMessage(v *events.Message) (session.RawMessage, bool) {
	info := v.Info
	if info.IsFromMe {
		return session.RawMessage{}, false
	}

	body := v.Message.GetConversation()
	ext := v.Message.GetExtendedTextMessage()
	if body == "" && ext != nil {
		body = ext.GetText()
	}
	if body == "" {
		// Mídia e mensagens de sistema não passam pelo dispatcher.
		return session.RawMessage{}, false
	}

	raw := session.RawMessage{
		ID:        string(info.ID),
		From:      info.Sender.String(),
		To:        c.ownAddress(),
		ChatID:    info.Chat.String(),
		Body:      body,
		Timestamp: info.Timestamp,
	}

	if ci := ext.GetContextInfo(); ci != nil && ci.GetStanzaID() != "" {
		quotedBody := ci.GetQuotedMessage().GetConversation()
		if quotedBody == "" {
			quotedBody = ci.GetQuotedMessage().GetExtendedTextMessage().GetText()
		}
		raw.Quoted = &session.QuotedRef{
			ID:   ci.GetStanzaID(),
			Body: quotedBody,
			From: ci.GetParticipant(),
		}
	}

	return raw, true
}

func (c *waClient) ownAddress() string {
	if c.cli.Store != nil && c.cli.Store.ID != nil {
		return c.cli.Store.ID.String()
	}
	return ""
}

func (c *waClient) SendText(ctx context.Context, to, body string) (string, error) {
	jid, err := c.parseAddress(to)
	if err != nil {
		return "", err
	}

	resp, err := c.cli.SendMessage(ctx, jid, &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String(body),
		},
	})
	if err != nil {
		return "", fmt.Errorf("falha ao enviar mensagem: %w", err)
	}
	return string(resp.ID), nil
}

func (c *waClient) ResolveNumber(ctx context.Context, number string) (session.NumberInfo, error) {
	digits := validator.OnlyDigits(number)
	if digits == "" {
		return session.NumberInfo{}, fmt.Errorf("número de telefone inválido")
	}

	resp, err := c.cli.IsOnWhatsApp(ctx, []string{"+" + digits})
	if err != nil {
		return session.NumberInfo{}, fmt.Errorf("falha ao validar número: %w", err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return session.NumberInfo{Exists: false}, nil
	}
	return session.NumberInfo{
		Exists: true,
		Number: resp[0].JID.User,
		ChatID: resp[0].JID.String(),
	}, nil
}

func (c *waClient) Contact(ctx context.Context, addr string) (session.ContactInfo, error) {
	jid, err := types.ParseJID(addr)
	if err != nil {
		return session.ContactInfo{}, fmt.Errorf("endereço de contato inválido: %w", err)
	}

	contact, err := c.cli.Store.Contacts.GetContact(ctx, jid)
	if err != nil {
		return session.ContactInfo{}, fmt.Errorf("falha ao resolver contato: %w", err)
	}

	name := contact.FullName
	if name == "" {
		name = contact.PushName
	}
	if name == "" {
		name = jid.User
	}
	return session.ContactInfo{
		Name:        name,
		Number:      jid.User,
		IsMyContact: contact.Found,
	}, nil
}

func (c *waClient) Chat(ctx context.Context, addr string) (session.ChatInfo, error) {
	jid, err := types.ParseJID(addr)
	if err != nil {
		return session.ChatInfo{}, fmt.Errorf("endereço de chat inválido: %w", err)
	}

	if jid.Server == types.GroupServer {
		info, err := c.cli.GetGroupInfo(ctx, jid)
		if err != nil {
			return session.ChatInfo{}, fmt.Errorf("falha ao resolver grupo: %w", err)
		}
		return session.ChatInfo{
			Name:             info.Name,
			IsGroup:          true,
			ParticipantCount: len(info.Participants),
		}, nil
	}

	contact, err := c.Contact(ctx, addr)
	if err != nil {
		return session.ChatInfo{}, err
	}
	return session.ChatInfo{Name: contact.Name}, nil
}

// Destroy derruba o cliente. O Disconnect do whatsmeow é síncrono; o select
// com ctx garante que um teardown travado não segure o chamador além do
// timeout imposto pelo Manager.
func (c *waClient) Destroy(ctx context.Context) error {
	var err error
	c.destroyOnce.Do(func() {
		c.destroyed.Store(true)
		if c.cancelQR != nil {
			c.cancelQR()
		}

		done := make(chan struct{})
		go func() {
			c.cli.Disconnect()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("timeout ao destruir cliente: %w", ctx.Err())
		}
	})
	return err
}

func (c *waClient) parseAddress(to string) (types.JID, error) {
	n := strings.TrimSpace(to)

	if strings.ContainsRune(n, '@') {
		jid, err := types.ParseJID(n)
		if err != nil {
			return types.JID{}, fmt.Errorf("endereço inválido: %w", err)
		}
		return jid, nil
	}

	digits := validator.OnlyDigits(n)
	if digits == "" {
		return types.JID{}, fmt.Errorf("número de telefone inválido")
	}
	if !strings.HasPrefix(digits, c.country) {
		digits = c.country + digits
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}
