package mail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

// SendGridDispatcher delivers mail through the SendGrid v3 API.
type SendGridDispatcher struct {
	key  string
	host string
	from *sgmail.Email
	log  zerolog.Logger
}

// NewSendGridDispatcher creates a dispatcher sending as fromName <fromEmail>.
func NewSendGridDispatcher(key, fromName, fromEmail string, log zerolog.Logger) *SendGridDispatcher {
	return &SendGridDispatcher{
		key:  key,
		host: sendGridHost,
		from: sgmail.NewEmail(fromName, fromEmail),
		log:  log.With().Str("component", "mail").Logger(),
	}
}

func (d *SendGridDispatcher) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(msg.To.Name, msg.To.Email))

	m := sgmail.NewV3Mail()
	m.SetFrom(d.from)
	m.AddPersonalizations(p)

	if msg.Text != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}

	for _, a := range msg.Attachments {
		m.AddAttachment(&sgmail.Attachment{
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			Type:        a.ContentType,
			Filename:    a.Filename,
			Disposition: "attachment",
		})
	}
	return m
}

func (d *SendGridDispatcher) Send(ctx context.Context, msg Message) error {
	req := sendgrid.GetRequest(d.key, sendGridEndpoint, d.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(d.prepare(msg))

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid rejected message: status %d: %s", res.StatusCode, res.Body)
	}

	d.log.Info().
		Str("to", msg.To.Email).
		Int("status", res.StatusCode).
		Msg("Email accepted by SendGrid")
	return nil
}
