// Package outbound defines the notification-send capability the gateway
// consumes, plus its SMTP implementation.
package outbound

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/pkg/errors"
)

// Endpoint holds the connection details for one submission server.
type Endpoint struct {
	Host     string
	Port     uint16
	Username string
	Password string
}

// Sender delivers notification messages on behalf of a gateway.
type Sender interface {
	Send(from, to, subject, body string) error
	Close() error
}

// Dialer establishes a sender against an endpoint. Tests substitute fakes.
type Dialer func(Endpoint) (Sender, error)

// DialSMTP connects to an SMTP submission server over TLS and authenticates.
// On any failure no connection is left open.
func DialSMTP(ep Endpoint) (Sender, error) {
	c, err := smtp.DialStartTLS(fmt.Sprintf("%s:%d", ep.Host, ep.Port), nil)
	if err != nil {
		return nil, errors.Wrap(err, "dialing SMTP server")
	}
	if err := c.Auth(sasl.NewPlainClient("", ep.Username, ep.Password)); err != nil {
		_ = c.Close()
		return nil, errors.Wrap(err, "SMTP authentication")
	}
	return &smtpSender{client: c}, nil
}

type smtpSender struct {
	mu     sync.Mutex
	client *smtp.Client
}

func (s *smtpSender) Send(from, to, subject, body string) error {
	msg, err := composeText(from, to, subject, body)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.Mail(from, nil); err != nil {
		return errors.Wrap(err, "MAIL FROM")
	}
	if err := s.client.Rcpt(to, nil); err != nil {
		return errors.Wrap(err, "RCPT TO")
	}
	w, err := s.client.Data()
	if err != nil {
		return errors.Wrap(err, "DATA")
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return errors.Wrap(err, "writing message")
	}
	return errors.Wrap(w.Close(), "finishing message")
}

func (s *smtpSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Quit()
}

// composeText builds a plain-text RFC 5322 message.
func composeText(from, to, subject, body string) ([]byte, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(subject)

	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, errors.Wrap(err, "composing message")
	}
	if _, err := io.WriteString(w, body); err != nil {
		_ = w.Close()
		return nil, errors.Wrap(err, "writing message text")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "finishing message text")
	}

	return buf.Bytes(), nil
}
