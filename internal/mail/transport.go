// Package mail delivers transactional email (password resets, test messages)
// over SMTP, either to a real provider or to a disposable local mailbox.
package mail

import (
	"context"
	"fmt"

	"github.com/hyperjump/querylinker/internal/config"
	"github.com/hyperjump/querylinker/internal/models"
)

// Delivery describes an accepted message.
type Delivery struct {
	MessageID  string
	PreviewURL string
}

// Transport hands a message to a mail server.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg *models.EmailMessage) (*Delivery, error)
	Close() error
}

// TransportFactory builds the transport named in cfg.
type TransportFactory func(cfg config.MailConfig) (Transport, error)

// NewTransport is the default TransportFactory.
func NewTransport(cfg config.MailConfig) (Transport, error) {
	switch cfg.Transport {
	case config.MailTransportSMTP:
		return NewSMTPTransport(cfg.SMTP, cfg.From)
	case config.MailTransportTest, "":
		return NewTestMailbox(cfg.Test, cfg.From)
	default:
		return nil, fmt.Errorf("unknown mail transport: %s", cfg.Transport)
	}
}
