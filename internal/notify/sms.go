package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/cert-reminder-api/pkg/config"
)

// GatewaySMSSender posts messages to a JSON SMS gateway.
type GatewaySMSSender struct {
	cfg    config.SMSConfig
	client *http.Client
	logger *zap.Logger
}

// NewGatewaySMSSender constructs the SMS adapter.
func NewGatewaySMSSender(cfg config.SMSConfig, logger *zap.Logger) *GatewaySMSSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GatewaySMSSender{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type gatewayRequest struct {
	To     string `json:"to"`
	From   string `json:"from,omitempty"`
	Body   string `json:"body"`
	APIKey string `json:"-"`
}

type gatewayResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// Send normalizes the destination and posts the message. All provider
// failures, including missing configuration, come back as failure results.
func (s *GatewaySMSSender) Send(ctx context.Context, to, body string) Result {
	if s.cfg.GatewayURL == "" {
		return Failure("sms gateway not configured")
	}

	normalized, err := NormalizePhone(to)
	if err != nil {
		return Failure(fmt.Sprintf("invalid destination %q: %v", to, err))
	}

	payload, err := json.Marshal(gatewayRequest{To: normalized, From: s.cfg.SenderID, Body: body})
	if err != nil {
		return Failure(fmt.Sprintf("encode request: %v", err))
	}

	// One bounded retry on transport errors. Gateway rejections are final.
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		result, transportErr := s.post(ctx, payload)
		if transportErr == nil {
			return result
		}
		lastErr = transportErr
		if ctx.Err() != nil {
			break
		}
	}
	s.logger.Warn("sms gateway unreachable", zap.String("to", normalized), zap.Error(lastErr))
	return Failure(fmt.Sprintf("sms gateway unreachable: %v", lastErr))
}

func (s *GatewaySMSSender) post(ctx context.Context, payload []byte) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GatewayURL, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	var gw gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&gw); err != nil {
		gw = gatewayResponse{}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := gw.Error
		if reason == "" {
			reason = fmt.Sprintf("gateway returned %d", resp.StatusCode)
		}
		return Failure(reason), nil
	}

	return Result{Success: true, MessageID: gw.MessageID}, nil
}

// NormalizePhone strips whitespace and common punctuation and validates the
// remainder: 10 to 15 digits, optionally prefixed with +.
func NormalizePhone(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '(', ')', '-', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	if cleaned == "" {
		return "", fmt.Errorf("empty number")
	}

	digits := cleaned
	if strings.HasPrefix(cleaned, "+") {
		digits = cleaned[1:]
	}
	if len(digits) < 10 || len(digits) > 15 {
		return "", fmt.Errorf("expected 10-15 digits, got %d", len(digits))
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("non-digit character %q", r)
		}
	}

	return cleaned, nil
}
