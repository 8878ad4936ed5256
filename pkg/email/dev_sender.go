package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// DevSender writes messages to a directory instead of delivering them.
// Every message produces <stamp>_<tag>.html with the HTML body and a
// .json file next to it holding the envelope and the text body.
type DevSender struct {
	dir string
	now func() time.Time

	mu  sync.Mutex
	seq int
}

// NewDevSender returns a sender writing into dir, created on first use.
func NewDevSender(dir string) EmailSender {
	return &DevSender{dir: dir, now: time.Now}
}

type devEnvelope struct {
	Timestamp string `json:"timestamp"`
	SendTo    string `json:"send_to"`
	Subject   string `json:"subject"`
	Tag       string `json:"tag,omitempty"`
	BodyText  string `json:"body_text,omitempty"`
}

func (d *DevSender) SendEmail(_ context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}

	now := d.now()
	d.mu.Lock()
	d.seq++
	seq := d.seq
	d.mu.Unlock()

	label := params.Tag
	if label == "" {
		label = params.Subject
	}
	base := filepath.Join(d.dir, fmt.Sprintf("%s_%03d_%s", now.UTC().Format("20060102_150405"), seq, fileLabel(label)))

	meta, err := json.MarshalIndent(devEnvelope{
		Timestamp: now.Format(time.RFC3339),
		SendTo:    params.SendTo,
		Subject:   params.Subject,
		Tag:       params.Tag,
		BodyText:  params.BodyText,
	}, "", "  ")
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}

	if err := os.WriteFile(base+".html", []byte(params.BodyHTML), 0o644); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	if err := os.WriteFile(base+".json", meta, 0o644); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	return nil
}

var unsafeFileChars = regexp.MustCompile(`[^a-z0-9_.-]+`)

// fileLabel lower-cases s, turns spaces into underscores and drops any
// other character that is unsafe in a file name.
func fileLabel(s string) string {
	s = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
	s = unsafeFileChars.ReplaceAllString(s, "")
	if len(s) > 80 {
		s = s[:80]
	}
	if s == "" {
		return "email"
	}
	return s
}
