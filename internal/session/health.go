package session

import "time"

// Política fixa de saúde, não é configuração.
const (
	// staleAfter é o tempo sem atividade a partir do qual a sessão é
	// considerada stale (301s é stale, 300s exatos ainda não).
	staleAfter = 300 * time.Second
	// healthyRatioNum/healthyRatioDen é a fração mínima de sessões saudáveis
	// para que o agregado seja saudável (4/5 == 0.8 passa, 3/5 não).
	healthyRatioNum = 4
	healthyRatioDen = 5
)

type Health struct {
	ID                       string    `json:"id"`
	Status                   Status    `json:"status"`
	ClientState              string    `json:"clientState,omitempty"`
	Ready                    bool      `json:"ready"`
	Healthy                  bool      `json:"healthy"`
	Stale                    bool      `json:"stale"`
	Uptime                   int64     `json:"uptime"`
	SecondsSinceLastActivity int64     `json:"timeSinceLastActivity"`
	Error                    string    `json:"error,omitempty"`
	CreatedAt                time.Time `json:"createdAt"`
	LastActivity             time.Time `json:"lastActivity"`
}

type HealthSummary struct {
	Total     int `json:"total"`
	Healthy   int `json:"healthy"`
	Ready     int `json:"ready"`
	Stale     int `json:"stale"`
	Unhealthy int `json:"unhealthy"`
}

type AggregateHealth struct {
	Summary        HealthSummary `json:"summary"`
	Sessions       []Health      `json:"sessions"`
	Timestamp      time.Time     `json:"timestamp"`
	OverallHealthy bool          `json:"overallHealth"`
}

// Evaluate é uma função pura: transforma um registro mais o instante atual em
// um veredito de saúde, sem tocar no recurso subjacente.
func Evaluate(rec Record, now time.Time) Health {
	sinceActivity := now.Sub(rec.LastActivityAt)
	stale := sinceActivity > staleAfter

	healthy := !stale
	switch rec.Status {
	case StatusReady, StatusAuthenticated, StatusQRPending:
	default:
		healthy = false
	}

	return Health{
		ID:                       rec.ID,
		Status:                   rec.Status,
		ClientState:              rec.ClientState,
		Ready:                    rec.Ready,
		Healthy:                  healthy,
		Stale:                    stale,
		Uptime:                   int64(now.Sub(rec.CreatedAt) / time.Second),
		SecondsSinceLastActivity: int64(sinceActivity / time.Second),
		Error:                    rec.Error,
		CreatedAt:                rec.CreatedAt,
		LastActivity:             rec.LastActivityAt,
	}
}

// EvaluateAll agrega a saúde de todos os registros. Sem sessões o agregado é
// saudável por definição.
func EvaluateAll(recs []Record, now time.Time) AggregateHealth {
	agg := AggregateHealth{
		Sessions:  make([]Health, 0, len(recs)),
		Timestamp: now,
	}

	for _, rec := range recs {
		h := Evaluate(rec, now)
		agg.Sessions = append(agg.Sessions, h)
		agg.Summary.Total++
		if h.Healthy {
			agg.Summary.Healthy++
		}
		if h.Ready {
			agg.Summary.Ready++
		}
		if h.Stale {
			agg.Summary.Stale++
		}
	}
	agg.Summary.Unhealthy = agg.Summary.Total - agg.Summary.Healthy

	agg.OverallHealthy = agg.Summary.Total == 0 ||
		agg.Summary.Healthy*healthyRatioDen >= agg.Summary.Total*healthyRatioNum

	return agg
}
