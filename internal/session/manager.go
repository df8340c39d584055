package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"waaku-golang/internal/models"
	"waaku-golang/pkg/logger"
	"waaku-golang/pkg/qrimg"
)

const (
	// disconnectExpiry é o tempo que uma sessão permanece no registro depois
	// de entrar em disconnected antes da remoção automática. Política fixa:
	// não há re-autenticação automática, a recuperação é um restart manual.
	disconnectExpiry = 30 * time.Second

	// destroyTimeout limita o teardown do recurso subjacente para que um
	// cliente travado não bloqueie remove/restart.
	destroyTimeout = 10 * time.Second
)

var ErrSessionNotFound = fmt.Errorf("SESSION_NOT_FOUND")

type entry struct {
	rec    Record
	client Client
	cancel context.CancelFunc
	expiry *time.Timer
	// gen distingue encarnações da mesma sessão: um timer ou loop de eventos
	// de uma encarnação antiga nunca pode mexer em um registro recriado.
	gen uint64
}

// Manager é o dono exclusivo do registro de sessões. Toda mutação passa pelo
// mutex; leitores recebem cópias.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry
	genSeq  uint64

	factory ClientFactory
	notify  Notifier
	sink    MessageSink
	logger  *logger.Logger

	expiry         time.Duration
	destroyTimeout time.Duration
}

func NewManager(factory ClientFactory, notify Notifier, log *logger.Logger) *Manager {
	return &Manager{
		entries:        make(map[string]*entry),
		factory:        factory,
		notify:         notify,
		logger:         log,
		expiry:         disconnectExpiry,
		destroyTimeout: destroyTimeout,
	}
}

// SetMessageSink define o consumidor de mensagens recebidas. Deve ser chamado
// antes de Create; o dispatcher precisa do Manager, então a ligação é feita em
// duas etapas no boot.
func (m *Manager) SetMessageSink(sink MessageSink) {
	m.sink = sink
}

// Create registra uma nova sessão e anexa um recurso subjacente novo. Chamadas
// repetidas com o mesmo id são no-op e devolvem o registro vivo.
func (m *Manager) Create(id string) (Record, error) {
	m.mu.Lock()
	if e, ok := m.entries[id]; ok {
		rec := e.rec
		m.mu.Unlock()
		return rec, nil
	}

	now := time.Now()
	m.genSeq++
	e := &entry{
		rec: Record{
			ID:             id,
			Status:         StatusInitializing,
			CreatedAt:      now,
			LastActivityAt: now,
		},
		gen: m.genSeq,
	}
	m.entries[id] = e
	rec := e.rec
	m.mu.Unlock()

	cli, err := m.factory(id)
	if err != nil {
		m.mu.Lock()
		if cur, ok := m.entries[id]; ok && cur.gen == e.gen {
			delete(m.entries, id)
		}
		m.mu.Unlock()
		return Record{}, fmt.Errorf("falha ao criar cliente da sessão %s: %w", id, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	cur, ok := m.entries[id]
	if !ok || cur.gen != e.gen {
		// A sessão foi removida enquanto o cliente inicializava.
		m.mu.Unlock()
		cancel()
		m.destroy(id, cli)
		return Record{}, ErrSessionNotFound
	}
	cur.client = cli
	cur.cancel = cancel
	m.mu.Unlock()

	go m.runEvents(ctx, id, e.gen, cli)
	go m.runMessages(ctx, id, cli)

	m.logger.Infof("[%s] Sessão criada", id)
	m.notifySessions()
	return rec, nil
}

// Get devolve uma cópia do registro.
func (m *Manager) Get(id string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return Record{}, false
	}
	return e.rec, true
}

// Client devolve o recurso subjacente vivo de uma sessão.
func (m *Manager) Client(id string) (Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok || e.client == nil {
		return nil, false
	}
	return e.client, true
}

// List devolve cópias de todos os registros, sem ordem definida.
func (m *Manager) List() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.rec)
	}
	return out
}

// Summaries devolve a visão usada por GET /api/sessions e sessions:update.
func (m *Manager) Summaries() []models.SessionSummary {
	now := time.Now()
	recs := m.List()
	out := make([]models.SessionSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, models.SessionSummary{
			ID:           rec.ID,
			Ready:        rec.Ready,
			Status:       string(rec.Status),
			ClientState:  rec.ClientState,
			Error:        rec.Error,
			CreatedAt:    rec.CreatedAt,
			LastActivity: rec.LastActivityAt,
			Uptime:       int64(now.Sub(rec.CreatedAt) / time.Second),
		})
	}
	return out
}

// HealthAll agrega a saúde de todas as sessões.
func (m *Manager) HealthAll() AggregateHealth {
	return EvaluateAll(m.List(), time.Now())
}

// Touch marca atividade em uma sessão (usado pelo dispatcher ao processar
// mensagens recebidas).
func (m *Manager) Touch(id string) {
	m.mu.Lock()
	if e, ok := m.entries[id]; ok {
		e.rec.LastActivityAt = time.Now()
	}
	m.mu.Unlock()
}

// Remove derruba o recurso subjacente (melhor esforço) e apaga o registro.
// Devolve false quando a sessão não existe; chamar duas vezes é inofensivo.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.entries, id)
	m.detachLocked(e)
	m.mu.Unlock()

	m.destroy(id, e.client)
	m.logger.Infof("[%s] Sessão removida", id)
	m.notifySessions()
	return true
}

// Restart derruba o recurso atual e registra a sessão de novo. É o único
// caminho de recuperação para auth_failed. O novo registro não preserva
// createdAt.
func (m *Manager) Restart(id string) (Record, error) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return Record{}, ErrSessionNotFound
	}
	delete(m.entries, id)
	m.detachLocked(e)
	m.mu.Unlock()

	m.destroy(id, e.client)
	m.logger.Infof("[%s] Reiniciando sessão", id)
	return m.Create(id)
}

// Shutdown derruba todos os recursos. Usado no desligamento do processo.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*entry)
	for _, e := range entries {
		m.detachLocked(e)
	}
	m.mu.Unlock()

	for id, e := range entries {
		m.destroy(id, e.client)
	}
	m.logger.Info("Todas as sessões foram desconectadas")
}

// detachLocked cancela o timer de expiração e o loop de eventos de uma
// entrada que está saindo do registro. Chamador segura m.mu.
func (m *Manager) detachLocked(e *entry) {
	if e.expiry != nil {
		e.expiry.Stop()
		e.expiry = nil
	}
	if e.cancel != nil {
		e.cancel()
	}
}

func (m *Manager) destroy(id string, cli Client) {
	if cli == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.destroyTimeout)
	defer cancel()
	if err := cli.Destroy(ctx); err != nil {
		m.logger.Warnf("[%s] Falha ao destruir cliente (ignorada): %v", id, err)
	}
}

// runEvents consome os eventos de ciclo de vida de uma encarnação da sessão.
// Eventos de uma mesma sessão são processados na ordem de emissão.
func (m *Manager) runEvents(ctx context.Context, id string, gen uint64, cli Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-cli.Events():
			if !ok {
				return
			}
			m.handleEvent(id, gen, evt)
		}
	}
}

func (m *Manager) runMessages(ctx context.Context, id string, cli Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-cli.Messages():
			if !ok {
				return
			}
			if m.sink != nil {
				// O enriquecimento pode suspender em chamadas ao transporte;
				// não segura o loop de mensagens da sessão.
				go m.sink.HandleIncoming(id, raw, cli)
			}
		}
	}
}

func (m *Manager) handleEvent(id string, gen uint64, evt Event) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok || e.gen != gen {
		m.mu.Unlock()
		return
	}

	if !apply(&e.rec, evt, time.Now()) {
		m.mu.Unlock()
		m.logger.Warnf("[%s] Evento %s ignorado (regrediria status %s)", id, evt.Kind, e.rec.Status)
		return
	}

	if e.rec.Status == StatusDisconnected {
		if e.expiry == nil {
			e.expiry = time.AfterFunc(m.expiry, func() { m.expire(id, gen) })
		}
	} else if e.expiry != nil {
		e.expiry.Stop()
		e.expiry = nil
	}

	rec := e.rec
	m.mu.Unlock()

	m.logger.Infof("[%s] %s -> %s", id, evt.Kind, rec.Status)
	m.emitTransition(rec, evt)
	m.notifySessions()
}

// expire remove uma sessão que passou o tempo todo em disconnected. O guard
// de geração garante que um timer antigo nunca apague um registro recriado.
func (m *Manager) expire(id string, gen uint64) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok || e.gen != gen || e.rec.Status != StatusDisconnected {
		m.mu.Unlock()
		return
	}
	delete(m.entries, id)
	m.detachLocked(e)
	m.mu.Unlock()

	m.logger.Infof("[%s] Sessão expirada após %s em disconnected", id, m.expiry)
	m.destroy(id, e.client)
	m.notifySessions()
}

func (m *Manager) notifySessions() {
	if m.notify == nil {
		return
	}
	m.notify.Emit("sessions:update", m.Summaries())
}

func (m *Manager) emitTransition(rec Record, evt Event) {
	if m.notify == nil {
		return
	}

	switch evt.Kind {
	case EventQRIssued:
		qr, err := qrimg.DataURL(rec.QRChallenge)
		if err != nil {
			m.logger.Errorf("[%s] Falha ao renderizar QR para fan-out: %v", rec.ID, err)
			return
		}
		m.notify.Emit("session:qr", map[string]any{"id": rec.ID, "qr": qr})
	case EventReady:
		m.notify.Emit("session:ready", map[string]any{"id": rec.ID})
	case EventAuthenticated:
		m.notify.Emit("session:authenticated", map[string]any{"id": rec.ID})
	case EventAuthFailed:
		m.notify.Emit("session:error", map[string]any{"id": rec.ID, "error": rec.Error})
	case EventDisconnected:
		m.notify.Emit("session:disconnected", map[string]any{"id": rec.ID, "reason": rec.Error})
	case EventStateChanged:
		m.notify.Emit("session:state", map[string]any{"id": rec.ID, "state": rec.ClientState})
	}
}
