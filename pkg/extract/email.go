// Copyright 2026 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// EmailExtractor parses RFC 822 messages. Each message becomes a
// single-message thread keyed by its normalized subject, so replies ingested
// separately share a thread id; the References header records thread depth.
type EmailExtractor struct{}

// NewEmailExtractor returns the .eml extractor.
func NewEmailExtractor() *EmailExtractor { return &EmailExtractor{} }

func (e *EmailExtractor) Name() string { return "email" }

func (e *EmailExtractor) Priority() int { return 80 }

func (e *EmailExtractor) Supports(format Format, _ string) bool { return format == FormatEmail }

func (e *EmailExtractor) Extract(_ context.Context, data []byte, filename string) ([]Item, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse email: %w", err)
	}

	subject := decodeHeader(msg.Header.Get("Subject"))
	from := decodeHeader(msg.Header.Get("From"))
	if from == "" {
		from = "unknown sender"
	}
	date, _ := msg.Header.Date()

	body, err := messageBody(msg.Header, msg.Body, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to decode email body: %w", err)
	}
	body = cleanText(body)
	if body == "" {
		return nil, fmt.Errorf("email %q has no text body", filename)
	}

	thread := &Thread{
		ID:       normalizeSubject(subject),
		Messages: []Message{{Sender: from, Timestamp: date, Body: body}},
		Depth:    len(strings.Fields(msg.Header.Get("References"))),
	}

	heading := "From: " + from
	if !date.IsZero() {
		heading += " on " + date.Format("2006-01-02 15:04")
	}
	blocks := append([]Block{{Kind: BlockHeading, Level: 2, Text: heading}}, ParseBlocks(body)...)

	return []Item{{
		Text:      renderBlocks(blocks),
		Blocks:    blocks,
		Thread:    thread,
		TypeHint:  "email_thread",
		Title:     subject,
		CreatedAt: date,
	}}, nil
}

var (
	wordDecoder     = new(mime.WordDecoder)
	subjectPrefixRE = regexp.MustCompile(`(?i)^(re|fwd?|aw|wg)(\[\d+\])?\s*:\s*`)
)

func decodeHeader(s string) string {
	decoded, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

// normalizeSubject strips reply/forward prefixes repeatedly, lowercases and
// collapses whitespace, yielding a stable thread key across a reply chain.
func normalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		next := subjectPrefixRE.ReplaceAllString(s, "")
		if next == s {
			break
		}
		s = strings.TrimSpace(next)
	}
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	if s == "" {
		return "no-subject"
	}
	return s
}

type partHeader interface {
	Get(key string) string
}

// messageBody walks the MIME structure preferring text/plain, falling back
// to text/html converted to Markdown. Attachments are skipped.
func messageBody(header partHeader, r io.Reader, depth int) (string, error) {
	mediaType := "text/plain"
	var params map[string]string
	if ct := header.Get("Content-Type"); ct != "" {
		if mt, p, err := mime.ParseMediaType(ct); err == nil {
			mediaType, params = mt, p
		}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if depth >= 3 {
			return "", fmt.Errorf("multipart nesting too deep")
		}
		boundary := params["boundary"]
		if boundary == "" {
			return "", fmt.Errorf("multipart message without boundary")
		}

		var htmlBody string
		mr := multipart.NewReader(r, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", err
			}
			if part.FileName() != "" {
				continue
			}
			partType := ""
			if ct := part.Header.Get("Content-Type"); ct != "" {
				partType, _, _ = mime.ParseMediaType(ct)
			}
			switch {
			case partType == "" || partType == "text/plain":
				return decodePart(part.Header, part)
			case partType == "text/html" && htmlBody == "":
				if s, err := decodePart(part.Header, part); err == nil {
					htmlBody = s
				}
			case strings.HasPrefix(partType, "multipart/"):
				if s, err := messageBody(part.Header, part, depth+1); err == nil && s != "" {
					return s, nil
				}
			}
		}
		if htmlBody != "" {
			return htmltomarkdown.ConvertString(htmlBody)
		}
		return "", fmt.Errorf("no text part found")
	}

	text, err := decodePart(header, r)
	if err != nil {
		return "", err
	}
	if mediaType == "text/html" {
		return htmltomarkdown.ConvertString(text)
	}
	return text, nil
}

// decodePart applies the Content-Transfer-Encoding. Truncated encodings
// return the bytes decoded so far.
func decodePart(header partHeader, r io.Reader) (string, error) {
	switch strings.ToLower(strings.TrimSpace(header.Get("Content-Transfer-Encoding"))) {
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	}
	b, err := io.ReadAll(r)
	if err != nil && len(b) == 0 {
		return "", err
	}
	return string(b), nil
}

var _ Extractor = (*EmailExtractor)(nil)
