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
	"fmt"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	readability "github.com/go-shiori/go-readability"
)

// HTMLExtractor strips page boilerplate with readability, converts the
// article body to Markdown and parses it into blocks. Pages readability
// cannot handle are converted whole.
type HTMLExtractor struct{}

// NewHTMLExtractor returns the HTML extractor.
func NewHTMLExtractor() *HTMLExtractor { return &HTMLExtractor{} }

func (e *HTMLExtractor) Name() string { return "html" }

func (e *HTMLExtractor) Priority() int { return 80 }

func (e *HTMLExtractor) Supports(format Format, _ string) bool { return format == FormatHTML }

func (e *HTMLExtractor) Extract(_ context.Context, data []byte, filename string) ([]Item, error) {
	// readability resolves relative links against the page URL; local
	// files get a placeholder.
	pageURL := &url.URL{Scheme: "file", Path: "/" + filename}

	htmlBody := string(data)
	title := ""
	var created time.Time

	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err == nil && strings.TrimSpace(article.Content) != "" {
		htmlBody = article.Content
		title = strings.TrimSpace(article.Title)
		if article.PublishedTime != nil {
			created = *article.PublishedTime
		}
	}

	md, err := htmltomarkdown.ConvertString(htmlBody)
	if err != nil {
		return nil, fmt.Errorf("failed to convert html: %w", err)
	}
	text := cleanText(md)
	if text == "" {
		return nil, fmt.Errorf("html %q has no article text", filename)
	}

	return []Item{{
		Text:      text,
		Blocks:    ParseBlocks(text),
		TypeHint:  "web_article",
		Title:     title,
		CreatedAt: created,
	}}, nil
}

var _ Extractor = (*HTMLExtractor)(nil)
