package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"waaku-golang/internal/config"
	"waaku-golang/pkg/logger"
)

const webhookTimeout = 10 * time.Second

// WebhookPayload é o corpo enviado ao sink externo: uma tentativa única por
// evento, sem retry.
type WebhookPayload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type WebhookService struct {
	url        string
	secret     string
	enabled    bool
	httpClient *http.Client
	logger     *logger.Logger
}

func NewWebhookService(cfg config.WebhookConfig, log *logger.Logger) *WebhookService {
	return &WebhookService{
		url:        cfg.URL,
		secret:     cfg.Secret,
		enabled:    cfg.Enabled(),
		httpClient: &http.Client{Timeout: webhookTimeout},
		logger:     log,
	}
}

func (w *WebhookService) Enabled() bool {
	return w.enabled
}

// Send faz um único POST melhor esforço. Falhas são logadas e devolvidas para
// os testes, mas nenhum chamador propaga o erro adiante.
func (w *WebhookService) Send(event string, data any) error {
	if !w.enabled {
		w.logger.Debugf("Webhook não configurado, ignorando evento %s", event)
		return nil
	}

	payload := WebhookPayload{
		Event:     event,
		Timestamp: time.Now(),
		Data:      data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		w.logger.Errorf("Falha ao serializar payload do webhook %s: %v", event, err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.Errorf("Falha ao criar requisição do webhook %s: %v", event, err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Waaku-Webhook/1.0")
	if w.secret != "" {
		req.Header.Set("X-Webhook-Secret", w.secret)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.logger.Errorf("Falha ao enviar webhook %s: %v", event, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		w.logger.Errorf("Webhook %s respondeu status %d", event, resp.StatusCode)
		return fmt.Errorf("webhook respondeu status %d", resp.StatusCode)
	}

	w.logger.Infof("Webhook %s enviado, status %d", event, resp.StatusCode)
	return nil
}
