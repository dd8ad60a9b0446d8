// Package mailbox defines the opaque mailbox-session capability the polling
// gateway consumes, plus its IMAP implementation.
package mailbox

import "time"

// Endpoint holds the connection details for one mailbox server.
type Endpoint struct {
	Host     string
	Port     uint16
	Username string
	Password string
}

// Address is one parsed mailbox address.
type Address struct {
	Name    string
	Address string
}

// Attachment is one MIME part eligible for staging.
type Attachment struct {
	Filename  string
	MediaType string
	Data      []byte
}

// Message is the parsed view of one message in a folder. Seq identifies it
// for deletion within the same open folder.
type Message struct {
	Seq         uint32
	Date        time.Time
	From        Address
	Recipients  []string
	Subject     string
	Text        string
	Attachments []Attachment
}

// Folder is one mailbox folder opened read-write. Messages are addressed by
// sequence number, 1..Count(), oldest first.
type Folder interface {
	Count() uint32
	Message(seq uint32) (*Message, error)
	// Delete flags the message for removal; the removal is committed when
	// the folder is closed.
	Delete(seq uint32) error
	Close() error
}

// Session is an authenticated connection to one remote mailbox.
type Session interface {
	Open() (Folder, error)
	Close() error
}

// Dialer establishes a session against an endpoint. Tests substitute fakes.
type Dialer func(Endpoint) (Session, error)
