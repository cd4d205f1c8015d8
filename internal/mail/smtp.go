// Пакет mail — отправка писем с учётными данными через SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/bigkaa/student-registry/internal/config"
)

// ErrNotConfigured — SMTP не настроен (SR_SMTP_HOST пуст).
var ErrNotConfigured = errors.New("отправка писем не настроена")

const sendTimeout = 30 * time.Second

// smtpImplicitTLSPort — порт с TLS сразу после соединения (SMTPS).
const smtpImplicitTLSPort = 465

// SMTPSender отправляет HTML-письма через SMTP-сервер.
type SMTPSender struct {
	host      string
	port      int
	enableSSL bool
	username  string
	password  string
	fromName  string
	fromEmail string
	logger    *slog.Logger
}

// NewSMTPSender создаёт отправителя по конфигурации.
// ErrNotConfigured, если SMTP-хост не задан.
func NewSMTPSender(cfg *config.Config, logger *slog.Logger) (*SMTPSender, error) {
	if cfg.SMTPHost == "" {
		return nil, ErrNotConfigured
	}
	return &SMTPSender{
		host:      cfg.SMTPHost,
		port:      cfg.SMTPPort,
		enableSSL: cfg.SMTPEnableSSL,
		username:  cfg.SMTPUsername,
		password:  cfg.SMTPPassword,
		fromName:  cfg.SMTPFromName,
		fromEmail: cfg.SMTPFromEmail,
		logger:    logger.With(slog.String("component", "mail")),
	}, nil
}

// Send отправляет одно письмо с HTML-телом.
func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg, err := s.buildMessage(to, subject, htmlBody)
	if err != nil {
		return err
	}

	client, err := gomail.NewClient(s.host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("SMTP-клиент: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("отправка письма на %s: %w", to, err)
	}

	s.logger.Debug("Письмо отправлено", slog.String("to", to))
	return nil
}

// clientOptions: порт 465 — неявный TLS, иначе STARTTLS (обязательный при
// enableSSL). Аутентификация только при заданном имени пользователя.
func (s *SMTPSender) clientOptions() []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTimeout(sendTimeout),
	}

	switch {
	case s.enableSSL && s.port == smtpImplicitTLSPort:
		opts = append(opts, gomail.WithSSL())
	case s.enableSSL:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}

	if s.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.username),
			gomail.WithPassword(s.password),
		)
	}
	return opts
}

func (s *SMTPSender) buildMessage(to, subject, htmlBody string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return nil, fmt.Errorf("адрес отправителя %q: %w", s.fromEmail, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("адрес получателя %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlBody)
	return msg, nil
}
