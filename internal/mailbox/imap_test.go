package mailbox

import (
	"strings"
	"testing"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multipartMessage = "From: driver@example.com\r\n" +
	"To: depot@example.com\r\n" +
	"Subject: post\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=frontier\r\n" +
	"\r\n" +
	"--frontier\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"Here is the new schedule sheet.\r\n" +
	"--frontier\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"sheet.pdf\"\r\n" +
	"\r\n" +
	"%PDF-1.4 fake\r\n" +
	"--frontier--\r\n"

func TestParseBodyMultipart(t *testing.T) {
	text, attachments, err := parseBody(strings.NewReader(multipartMessage))
	require.NoError(t, err)

	assert.Contains(t, text, "Here is the new schedule sheet.")
	require.Len(t, attachments, 1)
	assert.Equal(t, "sheet.pdf", attachments[0].Filename)
	assert.Equal(t, "application/pdf", attachments[0].MediaType)
	assert.Contains(t, string(attachments[0].Data), "%PDF-1.4")
}

func TestParseBodyPlainText(t *testing.T) {
	raw := "From: driver@example.com\r\n" +
		"To: depot@example.com\r\n" +
		"Subject: hello\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"Just a note.\r\n"

	text, attachments, err := parseBody(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Contains(t, text, "Just a note.")
	assert.Empty(t, attachments)
}

func TestCollectAddresses(t *testing.T) {
	to := []*imap.Address{
		{MailboxName: "depot", HostName: "example.com"},
	}
	cc := []*imap.Address{
		{MailboxName: "ops", HostName: "example.com"},
		{},
	}

	got := collectAddresses(to, cc)
	assert.Equal(t, []string{"depot@example.com", "ops@example.com"}, got)
}
