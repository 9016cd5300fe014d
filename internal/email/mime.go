package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"
)

// BuildRaw assembles m as a multipart/mixed RFC 5322 message: a plain-text
// body part followed by a base64 attachment part.
func BuildRaw(m Message, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	headers := []struct{ key, value string }{
		{"From", sanitizeHeaderValue(m.From)},
		{"To", sanitizeHeaderValue(strings.Join(m.To, ", "))},
		{"Subject", mime.QEncoding.Encode("utf-8", sanitizeHeaderValue(m.Subject))},
		{"Date", now.UTC().Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"Content-Type", mime.FormatMediaType("multipart/mixed", map[string]string{"boundary": mw.Boundary()})},
	}

	var head bytes.Buffer
	for _, h := range headers {
		fmt.Fprintf(&head, "%s: %s\r\n", h.key, h.value)
	}
	head.WriteString("\r\n")

	// Body.
	bodyHeader := textproto.MIMEHeader{}
	bodyHeader.Set("Content-Type", "text/plain; charset=utf-8")
	bodyHeader.Set("Content-Transfer-Encoding", "quoted-printable")
	part, err := mw.CreatePart(bodyHeader)
	if err != nil {
		return nil, fmt.Errorf("email: create body part: %w", err)
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(m.Body)); err != nil {
		return nil, fmt.Errorf("email: write body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("email: close body: %w", err)
	}

	// Attachment.
	filename := sanitizeHeaderValue(m.Attachment.Filename)
	attHeader := textproto.MIMEHeader{}
	attHeader.Set("Content-Type", mime.FormatMediaType(m.Attachment.ContentType(), map[string]string{"name": filename}))
	attHeader.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	attHeader.Set("Content-Transfer-Encoding", "base64")
	part, err = mw.CreatePart(attHeader)
	if err != nil {
		return nil, fmt.Errorf("email: create attachment part: %w", err)
	}
	if err := writeBase64Lines(part, m.Attachment.Data); err != nil {
		return nil, fmt.Errorf("email: write attachment: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("email: close multipart: %w", err)
	}

	return append(head.Bytes(), buf.Bytes()...), nil
}

// writeBase64Lines writes data base64-encoded in 76-character lines.
func writeBase64Lines(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 0 {
		n := min(76, len(encoded))
		if _, err := w.Write([]byte(encoded[:n] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}

func sanitizeHeaderValue(value string) string {
	clean := strings.ReplaceAll(value, "\r", " ")
	clean = strings.ReplaceAll(clean, "\n", " ")
	return strings.TrimSpace(clean)
}
