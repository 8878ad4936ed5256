package email_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subledger/pkg/email"
)

func TestSendEmailParams_Validate(t *testing.T) {
	t.Parallel()

	valid := email.SendEmailParams{SendTo: "ops@example.com", Subject: "Disk", BodyHTML: "<p>90%</p>"}
	tests := []struct {
		name    string
		mutate  func(*email.SendEmailParams)
		wantErr bool
	}{
		{"valid", func(*email.SendEmailParams) {}, false},
		{"text body only", func(p *email.SendEmailParams) { p.BodyHTML, p.BodyText = "", "90%" }, false},
		{"empty recipient", func(p *email.SendEmailParams) { p.SendTo = "" }, true},
		{"malformed recipient", func(p *email.SendEmailParams) { p.SendTo = "ops@" }, true},
		{"blank subject", func(p *email.SendEmailParams) { p.Subject = "  " }, true},
		{"no body", func(p *email.SendEmailParams) { p.BodyHTML = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, email.ErrInvalidParams)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestTextMessage(t *testing.T) {
	t.Parallel()
	p := email.TextMessage("ops@example.com", "Alert", "disk <90%> & rising", "alert")
	assert.Equal(t, "<pre>disk &lt;90%&gt; &amp; rising</pre>", p.BodyHTML)
	assert.Equal(t, "disk <90%> & rising", p.BodyText)
	assert.NoError(t, p.Validate())
}

func TestDevSender_SendEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("writes html and metadata", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		sender := email.NewDevSender(dir)

		require.NoError(t, sender.SendEmail(ctx, email.TextMessage("ops@example.com", "High disk usage", "disk at 93%", "resource-alert")))

		files, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, files, 2)

		var htmlFile, jsonFile string
		for _, f := range files {
			switch {
			case strings.HasSuffix(f.Name(), ".html"):
				htmlFile = filepath.Join(dir, f.Name())
			case strings.HasSuffix(f.Name(), ".json"):
				jsonFile = filepath.Join(dir, f.Name())
			}
		}
		require.NotEmpty(t, htmlFile)
		require.NotEmpty(t, jsonFile)
		assert.Contains(t, filepath.Base(htmlFile), "resource-alert")

		htmlContent, err := os.ReadFile(htmlFile)
		require.NoError(t, err)
		assert.Equal(t, "<pre>disk at 93%</pre>", string(htmlContent))

		raw, err := os.ReadFile(jsonFile)
		require.NoError(t, err)
		var metadata map[string]any
		require.NoError(t, json.Unmarshal(raw, &metadata))
		assert.Equal(t, "ops@example.com", metadata["send_to"])
		assert.Equal(t, "High disk usage", metadata["subject"])
		assert.Equal(t, "disk at 93%", metadata["body_text"])
	})

	t.Run("subject names the file without tag", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		require.NoError(t, email.NewDevSender(dir).SendEmail(ctx, email.SendEmailParams{
			SendTo: "ops@example.com", Subject: "Backup Failed!", BodyHTML: "<p>x</p>",
		}))
		files, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.NotEmpty(t, files)
		assert.Contains(t, files[0].Name(), "backup_failed")
	})

	t.Run("invalid params write nothing", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		err := email.NewDevSender(dir).SendEmail(ctx, email.SendEmailParams{SendTo: "nobody"})
		assert.ErrorIs(t, err, email.ErrInvalidParams)
		files, _ := os.ReadDir(dir)
		assert.Empty(t, files)
	})
}

func TestNew(t *testing.T) {
	t.Parallel()

	sender, err := email.New(email.Config{DevDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &email.DevSender{}, sender)

	sender, err = email.New(email.Config{
		PostmarkServerToken:  "server",
		PostmarkAccountToken: "account",
		SenderEmail:          "noreply@example.com",
	})
	require.NoError(t, err)
	assert.NotNil(t, sender)

	_, err = email.New(email.Config{PostmarkServerToken: "server", PostmarkAccountToken: "account"})
	assert.ErrorIs(t, err, email.ErrInvalidConfig)
}
