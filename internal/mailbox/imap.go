package mailbox

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/pkg/errors"
)

const inboxFolder = "INBOX"

// DialIMAP connects to an IMAP server over TLS and authenticates. It is the
// production Dialer; on any failure no connection is left open.
func DialIMAP(ep Endpoint) (Session, error) {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", ep.Host, ep.Port), nil)
	if err != nil {
		return nil, errors.Wrap(err, "dialing IMAP server")
	}
	if err := c.Login(ep.Username, ep.Password); err != nil {
		_ = c.Logout()
		return nil, errors.Wrap(err, "IMAP login")
	}
	return &imapSession{client: c}, nil
}

type imapSession struct {
	client *client.Client
}

func (s *imapSession) Open() (Folder, error) {
	mbox, err := s.client.Select(inboxFolder, false)
	if err != nil {
		return nil, errors.Wrap(err, "selecting folder")
	}
	return &imapFolder{client: s.client, count: mbox.Messages}, nil
}

func (s *imapSession) Close() error {
	return s.client.Logout()
}

type imapFolder struct {
	client *client.Client
	count  uint32
}

func (f *imapFolder) Count() uint32 {
	return f.count
}

func (f *imapFolder) Message(seq uint32) (*Message, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seq)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}

	ch := make(chan *imap.Message, 1)
	if err := f.client.Fetch(seqSet, items, ch); err != nil {
		return nil, errors.Wrap(err, "fetching message")
	}

	raw := <-ch
	if raw == nil || raw.Envelope == nil {
		return nil, errors.Errorf("message %d not returned by server", seq)
	}

	msg := &Message{
		Seq:        seq,
		Date:       raw.Envelope.Date,
		Subject:    raw.Envelope.Subject,
		Recipients: collectAddresses(raw.Envelope.To, raw.Envelope.Cc),
	}
	if len(raw.Envelope.From) > 0 {
		from := raw.Envelope.From[0]
		msg.From = Address{Name: from.PersonalName, Address: from.Address()}
	}

	if body := raw.GetBody(section); body != nil {
		text, attachments, err := parseBody(body)
		if err != nil {
			return nil, err
		}
		msg.Text = text
		msg.Attachments = attachments
	}

	return msg, nil
}

func (f *imapFolder) Delete(seq uint32) error {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seq)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.DeletedFlag}
	return errors.Wrap(f.client.Store(seqSet, item, flags, nil), "flagging message deleted")
}

// Close issues CLOSE, which expunges every message flagged deleted.
func (f *imapFolder) Close() error {
	return errors.Wrap(f.client.Close(), "closing folder")
}

func collectAddresses(lists ...[]*imap.Address) []string {
	var out []string
	for _, list := range lists {
		for _, a := range list {
			if addr := a.Address(); addr != "" && addr != "@" {
				out = append(out, addr)
			}
		}
	}
	return out
}

// parseBody extracts the plain-text body and the attachment parts of a raw
// RFC 5322 message.
func parseBody(r io.Reader) (string, []Attachment, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		// Unparseable MIME is treated as a bare text body.
		raw, rerr := io.ReadAll(r)
		if rerr != nil {
			return "", nil, errors.Wrap(err, "reading message body")
		}
		return string(raw), nil, nil
	}
	defer mr.Close()

	var text strings.Builder
	var attachments []Attachment

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, errors.Wrap(err, "reading message part")
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			if !strings.HasPrefix(contentType, "text/plain") {
				continue
			}
			body, err := io.ReadAll(part.Body)
			if err != nil {
				return "", nil, errors.Wrap(err, "reading text part")
			}
			text.Write(body)
		case *mail.AttachmentHeader:
			contentType, _, _ := h.ContentType()
			filename, _ := h.Filename()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				return "", nil, errors.Wrap(err, "reading attachment part")
			}
			attachments = append(attachments, Attachment{
				Filename:  filename,
				MediaType: contentType,
				Data:      body,
			})
		}
	}

	return text.String(), attachments, nil
}
