package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/models"
)

type SMTPSender struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	Renderer *Renderer

	// TLSConfig is used for port 465 and STARTTLS. Defaults to ServerName = Host.
	TLSConfig *tls.Config
}

var _ Transport = (*SMTPSender)(nil)

// Send renders the template and sends the email. The whole SMTP session,
// greeting included, is bound to ctx.
func (s *SMTPSender) Send(ctx context.Context, recipient string, data models.TemplateData) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before sending email: %w", err)
	}

	body, err := s.Renderer.Render(data)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", s.Renderer.Subject)
	m.SetBody("text/html", body)

	if err := s.dialAndSend(ctx, m); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("smtp send error: %w (%v)", ctxErr, err)
		}
		return fmt.Errorf("smtp send error: %w", err)
	}

	return nil
}

func (s *SMTPSender) dialAndSend(ctx context.Context, m *gomail.Message) error {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", net.JoinHostPort(s.Host, strconv.Itoa(s.Port)))
	if err != nil {
		return err
	}
	defer raw.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := raw.SetDeadline(deadline); err != nil {
			return err
		}
	}
	// cancellation without a deadline unblocks pending reads and writes
	stop := context.AfterFunc(ctx, func() {
		_ = raw.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	var conn net.Conn = raw
	if s.Port == 465 {
		conn = tls.Client(raw, s.tlsConfig())
	}

	c, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		return err
	}
	defer c.Close()

	if s.Port != 465 {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(s.tlsConfig()); err != nil {
				return err
			}
		}
	}

	if s.User != "" {
		if ok, auths := c.Extension("AUTH"); ok {
			var auth smtp.Auth
			if strings.Contains(auths, "CRAM-MD5") {
				auth = smtp.CRAMMD5Auth(s.User, s.Password)
			} else {
				auth = smtp.PlainAuth("", s.User, s.Password, s.Host)
			}
			if err := c.Auth(auth); err != nil {
				return err
			}
		}
	}

	send := gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
		if err := c.Mail(from); err != nil {
			return err
		}
		for _, addr := range to {
			if err := c.Rcpt(addr); err != nil {
				return err
			}
		}

		w, err := c.Data()
		if err != nil {
			return err
		}
		if _, err := msg.WriteTo(w); err != nil {
			w.Close()
			return err
		}
		return w.Close()
	})

	if err := gomail.Send(send, m); err != nil {
		return err
	}

	return c.Quit()
}

func (s *SMTPSender) tlsConfig() *tls.Config {
	if s.TLSConfig == nil {
		return &tls.Config{ServerName: s.Host}
	}
	return s.TLSConfig
}
