package mail

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/querylinker/internal/config"
	"github.com/hyperjump/querylinker/internal/models"
	"go.uber.org/zap"
)

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTransportFactory replaces the function that builds the transport.
func WithTransportFactory(f TransportFactory) DispatcherOption {
	return func(d *Dispatcher) { d.factory = f }
}

// Dispatcher sends email through a lazily built transport. Delivery failures
// are reported in the returned EmailResult, never as errors.
type Dispatcher struct {
	cfg     config.MailConfig
	factory TransportFactory
	logger  *zap.Logger

	mu        sync.Mutex
	transport Transport
}

// NewDispatcher creates a dispatcher. No connection is made until the first send.
func NewDispatcher(cfg config.MailConfig, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{cfg: cfg, factory: NewTransport, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SendEmail delivers one message. When text is empty it is derived from html.
func (d *Dispatcher) SendEmail(ctx context.Context, recipient, subject, html, text string) models.EmailResult {
	start := time.Now()
	result := models.EmailResult{Provider: d.cfg.Transport}

	recipient = strings.TrimSpace(recipient)
	if _, err := mail.ParseAddress(recipient); err != nil {
		result.Error = fmt.Sprintf("invalid recipient %q", recipient)
		return result
	}
	if text == "" && html != "" {
		text = HTMLToText(html)
	}

	transport, err := d.getTransport()
	if err != nil {
		d.logger.Error("mail transport unavailable", zap.String("transport", d.cfg.Transport), zap.Error(err))
		result.Error = "mail transport unavailable: " + err.Error()
		result.DeliveryTimeMs = time.Since(start).Milliseconds()
		return result
	}
	result.Provider = transport.Name()

	delivery, err := transport.Send(ctx, &models.EmailMessage{
		Recipient: recipient,
		Subject:   subject,
		HTMLBody:  html,
		TextBody:  text,
	})
	result.DeliveryTimeMs = time.Since(start).Milliseconds()
	if err != nil {
		d.logger.Warn("email delivery failed",
			zap.String("transport", transport.Name()),
			zap.String("recipient", recipient),
			zap.Error(err),
		)
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.MessageID = delivery.MessageID
	result.PreviewURL = delivery.PreviewURL
	d.logger.Info("email sent",
		zap.String("transport", transport.Name()),
		zap.String("recipient", recipient),
		zap.String("message_id", delivery.MessageID),
		zap.Int64("delivery_time_ms", result.DeliveryTimeMs),
	)
	return result
}

// SendPasswordReset renders and sends the password-reset email.
func (d *Dispatcher) SendPasswordReset(ctx context.Context, name, resetLink, recipient string) models.EmailResult {
	html, text := GeneratePasswordResetEmail(name, resetLink, recipient)
	return d.SendEmail(ctx, recipient, PasswordResetSubject, html, text)
}

// getTransport builds the transport once. A failed build is not cached.
func (d *Dispatcher) getTransport() (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transport != nil {
		return d.transport, nil
	}
	t, err := d.factory(d.cfg)
	if err != nil {
		return nil, err
	}
	d.transport = t
	return t, nil
}

// Close releases the transport if one was built.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transport == nil {
		return nil
	}
	err := d.transport.Close()
	d.transport = nil
	return err
}
