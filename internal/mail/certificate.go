package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// CertificateEmail holds the fields shown in a certificate notification.
type CertificateEmail struct {
	To               Address
	TestTitle        string
	Score            int
	ProficiencyLevel string
	VerificationCode string
	VerifyURL        string
	OrganizationName string
	IssueDate        time.Time
	PDF              []byte
}

var certificateHTML = template.Must(template.New("certificate").Parse(`<p>Hello {{.To.Name}},</p>
<p>Congratulations on passing <strong>{{.TestTitle}}</strong> with a score of {{.Score}}% ({{.ProficiencyLevel}}).</p>
<p>Your certificate, issued {{.IssueDate.Format "January 2, 2006"}}, is attached. Anyone can confirm it at
<a href="{{.VerifyURL}}">{{.VerifyURL}}</a> using the code <code>{{.VerificationCode}}</code>.</p>
<p>{{.OrganizationName}}</p>
`))

// NewCertificateMessage builds the notification with the PDF attached.
func NewCertificateMessage(e CertificateEmail) (Message, error) {
	var html bytes.Buffer
	if err := certificateHTML.Execute(&html, e); err != nil {
		return Message{}, fmt.Errorf("render certificate email: %w", err)
	}

	text := fmt.Sprintf(
		"Hello %s,\n\nCongratulations on passing %s with a score of %d%% (%s).\n"+
			"Verify your certificate at %s using the code %s.\n\n%s\n",
		e.To.Name, e.TestTitle, e.Score, e.ProficiencyLevel, e.VerifyURL, e.VerificationCode, e.OrganizationName,
	)

	return Message{
		To:      e.To,
		Subject: fmt.Sprintf("Your %s certificate", e.TestTitle),
		Text:    text,
		HTML:    html.String(),
		Attachments: []Attachment{{
			Filename:    fmt.Sprintf("certificate-%s.pdf", e.VerificationCode),
			ContentType: "application/pdf",
			Content:     e.PDF,
		}},
	}, nil
}
