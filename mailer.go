package accounts

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// SMTPConfig configures SMTPMailer
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// UseTLS dials an implicit TLS connection, otherwise STARTTLS is
	// used when the server offers it.
	UseTLS bool
}

// SMTPMailer sends HTML email through an SMTP relay
type SMTPMailer struct {
	cfg    SMTPConfig
	logger Logger
}

// NewSMTPMailer returns a new SMTPMailer
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, goerrors.New("smtp host is required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPMailer{cfg: cfg, logger: defLogger{}}, nil
}

func (m *SMTPMailer) WithLogger(logger Logger) *SMTPMailer {
	m.logger = resolveLogger(logger)
	return m
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return goerrors.New("recipient is required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	body := []byte(buildMessage(msg))

	if !m.cfg.UseTLS {
		if err := smtp.SendMail(addr, auth, msg.From, []string{msg.To}, body); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "smtp send failed")
		}
		m.logger.Debug("email sent", "to", msg.To, "subject", msg.Subject)
		return nil
	}

	dialer := &tls.Dialer{Config: &tls.Config{ServerName: m.cfg.Host}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "smtp dial failed")
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "smtp handshake failed")
	}
	defer client.Quit()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "smtp auth failed")
		}
	}
	if err := client.Mail(msg.From); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "smtp MAIL FROM rejected")
	}
	if err := client.Rcpt(msg.To); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "smtp RCPT TO rejected")
	}

	writer, err := client.Data()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "smtp DATA rejected")
	}
	if _, err := writer.Write(body); err != nil {
		_ = writer.Close()
		return goerrors.Wrap(err, goerrors.CategoryInternal, "smtp write failed")
	}
	if err := writer.Close(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "smtp write failed")
	}

	m.logger.Debug("email sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

func buildMessage(msg Message) string {
	headers := []string{
		fmt.Sprintf("From: %s", msg.From),
		fmt.Sprintf("To: %s", msg.To),
		fmt.Sprintf("Subject: %s", mime.QEncoding.Encode("utf-8", msg.Subject)),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=\"UTF-8\"",
	}

	return strings.Join(headers, "\r\n") + "\r\n\r\n" + msg.HTML
}

// LogMailer writes outbound email to a Logger instead of sending it
type LogMailer struct {
	logger Logger
}

// NewLogMailer returns a new LogMailer
func NewLogMailer(logger Logger) *LogMailer {
	return &LogMailer{logger: resolveLogger(logger)}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("email",
		"from", msg.From,
		"to", msg.To,
		"subject", msg.Subject,
		"html", msg.HTML,
	)
	return nil
}
