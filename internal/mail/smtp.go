package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/querylinker/internal/config"
	"github.com/hyperjump/querylinker/internal/models"
)

const dialTimeout = 30 * time.Second

// SMTPTransport sends mail through an SMTP server. Authentication is used only
// when a username is configured.
type SMTPTransport struct {
	name       string
	host       string
	port       int
	username   string
	password   string
	startTLS   bool // upgrade when the server advertises STARTTLS
	useTLS     bool // fail unless the upgrade happens
	useSSL     bool
	tlsConfig  *tls.Config
	from       string
	previewURL string
}

// NewSMTPTransport creates a transport for a real provider.
func NewSMTPTransport(cfg config.SMTPConfig, from string) (*SMTPTransport, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if from == "" {
		return nil, fmt.Errorf("mail from address is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	return &SMTPTransport{
		name:     config.MailTransportSMTP,
		host:     cfg.Host,
		port:     port,
		username: cfg.Username,
		password: cfg.Password,
		startTLS: true,
		useTLS:   cfg.UseTLS,
		useSSL:   cfg.UseSSL,
		from:     from,
	}, nil
}

// NewTestMailbox creates a transport for a local catch-all mailbox such as
// Mailpit or MailHog. It never authenticates or encrypts.
func NewTestMailbox(cfg config.TestMailboxConfig, from string) (*SMTPTransport, error) {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 1025
	}
	if from == "" {
		from = "no-reply@localhost"
	}
	return &SMTPTransport{
		name:       config.MailTransportTest,
		host:       host,
		port:       port,
		from:       from,
		previewURL: cfg.PreviewURL,
	}, nil
}

func (t *SMTPTransport) Name() string { return t.name }

func (t *SMTPTransport) clientTLSConfig() *tls.Config {
	if t.tlsConfig != nil {
		return t.tlsConfig
	}
	return &tls.Config{ServerName: t.host}
}

func (t *SMTPTransport) Close() error { return nil }

// Send delivers msg and returns the Message-ID it was sent with.
func (t *SMTPTransport) Send(ctx context.Context, msg *models.EmailMessage) (*Delivery, error) {
	messageID := newMessageID(t.from)
	content := buildMessage(t.from, messageID, msg, time.Now())

	addr := net.JoinHostPort(t.host, strconv.Itoa(t.port))
	var auth smtp.Auth
	if t.username != "" {
		auth = smtp.PlainAuth("", t.username, t.password, t.host)
	}

	var err error
	if t.useSSL {
		err = t.sendWithTLS(ctx, addr, auth, msg.Recipient, content)
	} else {
		err = t.sendWithContext(ctx, addr, auth, msg.Recipient, content)
	}
	if err != nil {
		return nil, err
	}
	return &Delivery{MessageID: messageID, PreviewURL: t.previewURL}, nil
}

func (t *SMTPTransport) sendWithContext(ctx context.Context, addr string, auth smtp.Auth, to, content string) error {
	d := &net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	client, err := smtp.NewClient(conn, t.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if t.startTLS || t.useTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(t.clientTLSConfig()); err != nil {
				return fmt.Errorf("failed to start TLS: %w", err)
			}
		} else if t.useTLS {
			return fmt.Errorf("SMTP server does not support STARTTLS")
		}
	}
	return t.deliver(ctx, client, auth, to, content)
}

func (t *SMTPTransport) sendWithTLS(ctx context.Context, addr string, auth smtp.Auth, to, content string) error {
	d := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: dialTimeout},
		Config:    t.clientTLSConfig(),
	}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create TLS connection: %w", err)
	}
	client, err := smtp.NewClient(conn, t.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()
	return t.deliver(ctx, client, auth, to, content)
}

func (t *SMTPTransport) deliver(ctx context.Context, client *smtp.Client, auth smtp.Auth, to, content string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send cancelled: %w", err)
	}
	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}
	if err := client.Mail(extractEmailAddress(t.from)); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(extractEmailAddress(to)); err != nil {
		return fmt.Errorf("failed to set recipient %s: %w", to, err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}
	return client.Quit()
}

// buildMessage renders RFC 5322 headers and a text, HTML or
// multipart/alternative body.
func buildMessage(from, messageID string, msg *models.EmailMessage, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	b.WriteString("MIME-Version: 1.0\r\n")

	switch {
	case msg.HTMLBody != "" && msg.TextBody != "":
		boundary := "alt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.TextBody)
		fmt.Fprintf(&b, "\r\n--%s\r\n", boundary)
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.HTMLBody)
		fmt.Fprintf(&b, "\r\n--%s--\r\n", boundary)
	case msg.HTMLBody != "":
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.HTMLBody)
	default:
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.TextBody)
	}
	return b.String()
}

func newMessageID(from string) string {
	domain := "querylinker.local"
	addr := extractEmailAddress(from)
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		domain = addr[i+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

var angleAddr = regexp.MustCompile(`<([^>]+)>`)

// extractEmailAddress turns "Jane Doe <jane@example.com>" into "jane@example.com".
func extractEmailAddress(address string) string {
	if m := angleAddr.FindStringSubmatch(address); len(m) > 1 {
		return m[1]
	}
	return strings.TrimSpace(address)
}
