// Package mail delivers certificate emails.
package mail

import (
	"context"

	"github.com/rs/zerolog"
)

// Address is a named mailbox.
type Address struct {
	Name  string
	Email string
}

// Attachment is a file sent with a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is one outbound email.
type Message struct {
	To          Address
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

// Dispatcher sends messages and reports whether delivery was accepted.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// LogDispatcher only logs messages. It stands in when no provider is configured.
type LogDispatcher struct {
	log zerolog.Logger
}

// NewLogDispatcher creates a LogDispatcher.
func NewLogDispatcher(log zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{log: log.With().Str("component", "mail").Logger()}
}

func (d *LogDispatcher) Send(_ context.Context, msg Message) error {
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Filename)
	}
	d.log.Info().
		Str("to", msg.To.Email).
		Str("subject", msg.Subject).
		Strs("attachments", names).
		Msg("Email not sent: no mail provider configured")
	return nil
}
