package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMessage(t *testing.T) Message {
	t.Helper()
	msg, err := NewCertificateMessage(CertificateEmail{
		To:               Address{Name: "Ana <Admin>", Email: "ana@example.com"},
		TestTitle:        "Go Fundamentals",
		Score:            92,
		ProficiencyLevel: "Expert",
		VerificationCode: "7K3M-Q9TX-2HCV-8BZP",
		VerifyURL:        "https://certs.example.com/verify/7K3M-Q9TX-2HCV-8BZP",
		OrganizationName: "Certify Academy",
		IssueDate:        time.Now(),
		PDF:              []byte("%PDF-1.4 fake"),
	})
	require.NoError(t, err)
	return msg
}

func TestNewCertificateMessageEscapesHTML(t *testing.T) {
	msg := sampleMessage(t)

	assert.Equal(t, "Your Go Fundamentals certificate", msg.Subject)
	assert.Contains(t, msg.HTML, "Ana &lt;Admin&gt;")
	assert.Contains(t, msg.Text, "7K3M-Q9TX-2HCV-8BZP")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
}

func TestSendGridDispatcherPostsMail(t *testing.T) {
	var (
		auth string
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := NewSendGridDispatcher("SG.key", "Certify", "noreply@example.com", zerolog.Nop())
	d.host = srv.URL

	require.NoError(t, d.Send(context.Background(), sampleMessage(t)))

	assert.Equal(t, "Bearer SG.key", auth)
	attachments := body["attachments"].([]any)
	require.Len(t, attachments, 1)
	content := attachments[0].(map[string]any)["content"].(string)
	decoded, err := base64.StdEncoding.DecodeString(content)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake", string(decoded))
}

func TestSendGridDispatcherReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	d := NewSendGridDispatcher("bad", "Certify", "noreply@example.com", zerolog.Nop())
	d.host = srv.URL

	err := d.Send(context.Background(), sampleMessage(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestLogDispatcherNeverFails(t *testing.T) {
	assert.NoError(t, NewLogDispatcher(zerolog.Nop()).Send(context.Background(), sampleMessage(t)))
}
