package session

import "time"

type Status string

const (
	StatusInitializing  Status = "initializing"
	StatusQRPending     Status = "qr_pending"
	StatusAuthenticated Status = "authenticated"
	StatusReady         Status = "ready"
	StatusAuthFailed    Status = "auth_failed"
	StatusDisconnected  Status = "disconnected"
)

// Record é o registro de uma sessão. O Manager é o único escritor; todos os
// leitores recebem cópias por valor.
type Record struct {
	ID             string
	Status         Status
	Ready          bool
	ClientState    string
	QRChallenge    string
	Error          string
	CreatedAt      time.Time
	LastActivityAt time.Time
}

type EventKind string

const (
	EventQRIssued      EventKind = "qr_issued"
	EventReady         EventKind = "ready"
	EventAuthenticated EventKind = "authenticated"
	EventAuthFailed    EventKind = "auth_failed"
	EventDisconnected  EventKind = "disconnected"
	EventStateChanged  EventKind = "state_changed"
)

// Event é a variante etiquetada emitida pelo recurso conectado subjacente.
// Challenge acompanha qr_issued, Reason acompanha auth_failed/disconnected e
// RawState acompanha state_changed.
type Event struct {
	Kind      EventKind
	Challenge string
	Reason    string
	RawState  string
}

// forwardRank ordena os estados de progresso de autenticação. Estados que não
// fazem parte do caminho direto não têm rank.
func forwardRank(s Status) (int, bool) {
	switch s {
	case StatusInitializing:
		return 0, true
	case StatusQRPending:
		return 1, true
	case StatusAuthenticated:
		return 2, true
	case StatusReady:
		return 3, true
	}
	return 0, false
}

// apply executa uma transição sobre o registro e devolve true quando o evento
// foi aceito. Eventos de progresso que regrediriam o status (um qr_issued
// atrasado depois de ready, por exemplo) são ignorados; a partir de
// disconnected qualquer evento de progresso é aceito, a partir de auth_failed
// somente um restart explícito recupera a sessão.
func apply(rec *Record, evt Event, now time.Time) bool {
	accepted := false

	switch evt.Kind {
	case EventQRIssued:
		// Um novo desafio durante qr_pending é um refresh, não uma regressão.
		if rec.Status == StatusQRPending || acceptForward(rec.Status, StatusQRPending) {
			rec.Status = StatusQRPending
			rec.Ready = false
			rec.QRChallenge = evt.Challenge
			accepted = true
		}

	case EventAuthenticated:
		if acceptForward(rec.Status, StatusAuthenticated) {
			rec.Status = StatusAuthenticated
			rec.Ready = false
			accepted = true
		}

	case EventReady:
		if acceptForward(rec.Status, StatusReady) {
			rec.Status = StatusReady
			rec.Ready = true
			accepted = true
		}

	case EventAuthFailed:
		rec.Status = StatusAuthFailed
		rec.Ready = false
		rec.Error = evt.Reason
		accepted = true

	case EventDisconnected:
		rec.Status = StatusDisconnected
		rec.Ready = false
		rec.Error = evt.Reason
		accepted = true

	case EventStateChanged:
		rec.ClientState = evt.RawState
		accepted = true
	}

	if !accepted {
		return false
	}

	// Invariante: QRChallenge só existe enquanto o status for qr_pending.
	if rec.Status != StatusQRPending {
		rec.QRChallenge = ""
	}
	rec.LastActivityAt = now
	return true
}

func acceptForward(current, target Status) bool {
	if current == StatusDisconnected {
		return true
	}
	if current == StatusAuthFailed {
		return false
	}
	cur, ok := forwardRank(current)
	if !ok {
		return false
	}
	tgt, _ := forwardRank(target)
	return cur < tgt
}
