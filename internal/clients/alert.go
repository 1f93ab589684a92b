package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap/zapcore"
)

type AlertMessage struct {
	Content string `json:"content"`
}

// AlertClient posts operator alerts to a chat webhook.
type AlertClient struct {
	webhookURL string
	httpClient *http.Client
}

func NewAlertClient(webhookURL string) *AlertClient {
	return &AlertClient{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *AlertClient) Send(ctx context.Context, content string) error {
	jsonData, err := json.Marshal(AlertMessage{Content: content})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	return nil
}

const (
	alertQueueSize   = 256
	alertSendTimeout = 10 * time.Second
)

type alert struct {
	content string
	flushed chan struct{} // set on flush markers only
}

// alertSender posts alerts in order from a single goroutine. Alerts logged while the
// queue is full are dropped.
type alertSender struct {
	client  *AlertClient
	queue   chan alert
	dropped atomic.Uint64
}

func newAlertSender(client *AlertClient) *alertSender {
	s := &alertSender{
		client: client,
		queue:  make(chan alert, alertQueueSize),
	}
	go s.run()
	return s
}

func (s *alertSender) run() {
	for a := range s.queue {
		if a.flushed != nil {
			close(a.flushed)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), alertSendTimeout)
		// Failures cannot be logged without alerting again.
		_ = s.client.Send(ctx, a.content)
		cancel()
	}
}

func (s *alertSender) enqueue(content string) {
	select {
	case s.queue <- alert{content: content}:
	default:
		s.dropped.Add(1)
	}
}

// flush waits until every alert queued before it has been sent.
func (s *alertSender) flush(timeout time.Duration) error {
	marker := alert{flushed: make(chan struct{})}
	deadline := time.After(timeout)
	select {
	case s.queue <- marker:
	case <-deadline:
		return errors.New("alert queue full")
	}
	select {
	case <-marker.flushed:
		return nil
	case <-deadline:
		return errors.New("timed out flushing alerts")
	}
}

// alertCore forwards log entries at or above its level to an AlertClient without blocking
// the caller.
type alertCore struct {
	zapcore.LevelEnabler
	enc    zapcore.Encoder
	sender *alertSender
}

// NewAlertCore returns a zap core to tee next to the regular one so that, for example,
// every error logged by the relay stages also reaches the operator webhook.
func NewAlertCore(client *AlertClient, level zapcore.LevelEnabler) zapcore.Core {
	encCfg := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		NameKey:        "logger",
		TimeKey:        "ts",
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	return &alertCore{
		LevelEnabler: level,
		enc:          zapcore.NewConsoleEncoder(encCfg),
		sender:       newAlertSender(client),
	}
}

func (c *alertCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &alertCore{
		LevelEnabler: c.LevelEnabler,
		enc:          c.enc.Clone(),
		sender:       c.sender,
	}
	for _, f := range fields {
		f.AddTo(clone.enc)
	}
	return clone
}

func (c *alertCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *alertCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	c.sender.enqueue(buf.String())
	buf.Free()
	return nil
}

// Sync blocks until queued alerts are sent, so they are not lost on shutdown.
func (c *alertCore) Sync() error {
	return c.sender.flush(alertSendTimeout)
}
