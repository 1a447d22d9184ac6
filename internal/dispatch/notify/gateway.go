package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Gateway delivers push notifications over NATS and SMS through an HTTP
// webhook. Both channels are best-effort: callers log errors and move on, and
// a gateway constructed without a transport silently drops that channel.
type Gateway struct {
	conn        *nats.Conn
	pushSubject string
	smsURL      string
	httpClient  *http.Client
	logger      *zap.Logger
}

// New builds a Gateway. conn may be nil (push disabled) and smsURL may be
// empty (SMS disabled).
func New(conn *nats.Conn, pushSubject, smsURL string, logger *zap.Logger) *Gateway {
	if pushSubject == "" {
		pushSubject = "notify.push"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		conn:        conn,
		pushSubject: pushSubject,
		smsURL:      smsURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}
}

type pushMessage struct {
	RecipientID string            `json:"recipient_id"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
}

// SendPush publishes the notification to the recipient's push subject.
func (g *Gateway) SendPush(_ context.Context, recipientID uuid.UUID, title, body string, data map[string]string) error {
	if g == nil || g.conn == nil {
		return nil
	}
	payload, err := json.Marshal(pushMessage{
		RecipientID: recipientID.String(),
		Title:       title,
		Body:        body,
		Data:        data,
	})
	if err != nil {
		return fmt.Errorf("marshal push: %w", err)
	}
	subject := g.pushSubject + "." + recipientID.String()
	if err := g.conn.Publish(subject, payload); err != nil {
		pushTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("publish push: %w", err)
	}
	pushTotal.WithLabelValues("ok").Inc()
	return nil
}

type smsRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// SendSMS posts the text to the configured SMS webhook.
func (g *Gateway) SendSMS(ctx context.Context, phone, text string) error {
	if g == nil || g.smsURL == "" {
		return nil
	}
	payload, err := json.Marshal(smsRequest{To: phone, Text: text})
	if err != nil {
		return fmt.Errorf("marshal sms: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.smsURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.httpClient.Do(req)
	if err != nil {
		smsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		smsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("sms gateway status %d", resp.StatusCode)
	}
	smsTotal.WithLabelValues("ok").Inc()
	return nil
}
