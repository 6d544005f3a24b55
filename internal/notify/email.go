package notify

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/cert-reminder-api/pkg/config"
)

// SMTPSender sends multipart text+HTML mail over SMTP.
type SMTPSender struct {
	cfg     config.SMTPConfig
	timeout time.Duration
	logger  *zap.Logger

	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender constructs the email adapter.
func NewSMTPSender(cfg config.SMTPConfig, timeout time.Duration, logger *zap.Logger) *SMTPSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SMTPSender{cfg: cfg, timeout: timeout, logger: logger, send: smtp.SendMail}
}

// Send delivers the message. Missing configuration and provider rejections
// both come back as failure results, never as errors.
func (s *SMTPSender) Send(ctx context.Context, to, subject, textBody, htmlBody string) Result {
	if s.cfg.Host == "" {
		return Failure("smtp host not configured")
	}
	if to == "" {
		return Failure("empty destination address")
	}

	messageID := uuid.NewString()
	msg := s.buildMessage(messageID, to, subject, textBody, htmlBody)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.send(addr, auth, s.cfg.From, []string{to}, msg)
	}()

	select {
	case <-ctx.Done():
		s.logger.Warn("smtp send timed out", zap.String("to", to))
		return Failure(fmt.Sprintf("smtp send timed out after %s", s.timeout))
	case err := <-done:
		if err != nil {
			s.logger.Warn("smtp send failed", zap.String("to", to), zap.Error(err))
			return Failure(fmt.Sprintf("smtp send failed: %v", err))
		}
	}

	return Result{Success: true, MessageID: messageID}
}

func (s *SMTPSender) buildMessage(messageID, to, subject, textBody, htmlBody string) []byte {
	boundary := "b-" + messageID
	from := s.cfg.From
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.cfg.FromName), s.cfg.From)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", messageID, s.cfg.Host)
	b.WriteString("MIME-Version: 1.0\r\n")

	if htmlBody == "" {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(textBody)
		return []byte(b.String())
	}

	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, textBody)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, htmlBody)
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}
