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
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Format is a detected input format.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatDocx     Format = "docx"
	FormatXlsx     Format = "xlsx"
	FormatPptx     Format = "pptx"
	FormatImage    Format = "image"
	FormatHTML     Format = "html"
	FormatEmail    Format = "email"
	FormatChat     Format = "chat"
	FormatMarkdown Format = "markdown"
	FormatCode     Format = "code"
	FormatText     Format = "text"
	FormatUnknown  Format = "unknown"
)

var extensionFormats = map[string]Format{
	".pdf":      FormatPDF,
	".docx":     FormatDocx,
	".xlsx":     FormatXlsx,
	".pptx":     FormatPptx,
	".ppt":      FormatPptx,
	".png":      FormatImage,
	".jpg":      FormatImage,
	".jpeg":     FormatImage,
	".gif":      FormatImage,
	".webp":     FormatImage,
	".bmp":      FormatImage,
	".tif":      FormatImage,
	".tiff":     FormatImage,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".eml":      FormatEmail,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".txt":      FormatText,
	".text":     FormatText,
	".log":      FormatText,
}

var codeExtensions = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".ts":    "typescript",
	".jsx":   "jsx",
	".tsx":   "tsx",
	".java":  "java",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rb":    "ruby",
	".rs":    "rust",
	".php":   "php",
	".swift": "swift",
	".kt":    "kotlin",
	".scala": "scala",
	".sh":    "bash",
	".bash":  "bash",
	".zsh":   "bash",
	".sql":   "sql",
	".r":     "r",
	".lua":   "lua",
	".pl":    "perl",
	".ex":    "elixir",
	".exs":   "elixir",
	".hs":    "haskell",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".xml":   "xml",
	".css":   "css",
	".proto": "protobuf",
	".tf":    "hcl",
}

// Detect identifies the input format. Magic bytes win, then content sniffs
// for HTML, email and chat exports; the filename extension breaks ties. Data
// that is neither recognizable nor mostly text comes back unknown.
func Detect(data []byte, filename string) Format {
	if f := detectMagic(data); f != FormatUnknown {
		return f
	}

	if looksHTML(data) {
		return FormatHTML
	}
	if looksEmail(data) {
		return FormatEmail
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if f, ok := extensionFormats[ext]; ok {
		// Chat exports arrive as plain .txt; the line pattern decides.
		if f == FormatText && looksChat(data) {
			return FormatChat
		}
		return f
	}
	if _, ok := codeExtensions[ext]; ok {
		return FormatCode
	}

	if looksChat(data) {
		return FormatChat
	}
	if mostlyText(data) {
		return FormatText
	}
	return FormatUnknown
}

// CodeLanguage returns the fence language for a source file extension, empty
// when the extension is not a known code type.
func CodeLanguage(filename string) string {
	return codeExtensions[strings.ToLower(filepath.Ext(filename))]
}

var imageMagics = [][]byte{
	{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'},
	{0xFF, 0xD8, 0xFF},    // JPEG
	[]byte("GIF87a"),      // GIF
	[]byte("GIF89a"),      // GIF
	[]byte("BM"),          // BMP
	{'I', 'I', '*', 0x00}, // TIFF little-endian
	{'M', 'M', 0x00, '*'}, // TIFF big-endian
}

func detectMagic(data []byte) Format {
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return FormatPDF
	}
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return detectZip(data)
	}
	if len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")) {
		return FormatImage
	}
	for _, magic := range imageMagics {
		if bytes.HasPrefix(data, magic) {
			return FormatImage
		}
	}
	return FormatUnknown
}

// detectZip distinguishes OOXML containers by the entry names visible in the
// zip local file headers. Other archives stay unknown.
func detectZip(data []byte) Format {
	head := data
	if len(head) > 4096 {
		head = head[:4096]
	}
	switch {
	case bytes.Contains(head, []byte("word/")):
		return FormatDocx
	case bytes.Contains(head, []byte("xl/")):
		return FormatXlsx
	case bytes.Contains(head, []byte("ppt/")):
		return FormatPptx
	}
	return FormatUnknown
}

// looksHTML checks for a doctype or html tag near the start, skipping
// leading whitespace and comments.
func looksHTML(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	s := strings.ToLower(string(head))
	s = strings.TrimLeft(s, " \t\r\n\uFEFF")
	for strings.HasPrefix(s, "<!--") {
		end := strings.Index(s, "-->")
		if end < 0 {
			return false
		}
		s = strings.TrimLeft(s[end+3:], " \t\r\n")
	}
	return strings.HasPrefix(s, "<!doctype html") || strings.HasPrefix(s, "<html")
}

var emailHeaders = []string{
	"from:", "to:", "subject:", "date:", "message-id:",
	"received:", "return-path:", "delivered-to:", "mime-version:", "cc:",
}

// looksEmail requires at least two distinct RFC 822 headers inside the
// header block (the lines before the first blank line).
func looksEmail(data []byte) bool {
	head := data
	if len(head) > 4096 {
		head = head[:4096]
	}
	seen := make(map[string]bool)
	for _, line := range strings.Split(string(head), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			break
		}
		lower := strings.ToLower(line)
		for _, h := range emailHeaders {
			if strings.HasPrefix(lower, h) {
				seen[h] = true
				break
			}
		}
	}
	return len(seen) >= 2
}

var chatLinePatterns = []*regexp.Regexp{
	// [2024-01-15 09:30] alice: message
	regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2}[ T]\d{1,2}:\d{2}(?::\d{2})?\]\s+[^:]{1,80}:\s`),
	// 15/01/2024, 09:30 - alice: message (WhatsApp)
	regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{2,4},?\s+\d{1,2}:\d{2}(?:\s?[APap][Mm])?\s+-\s+[^:]{1,80}:\s`),
}

// looksChat requires at least two of the first twenty non-empty lines to
// match a chat message pattern.
func looksChat(data []byte) bool {
	head := data
	if len(head) > 8192 {
		head = head[:8192]
	}
	matches, inspected := 0, 0
	for _, line := range strings.Split(string(head), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		inspected++
		if inspected > 20 {
			break
		}
		for _, re := range chatLinePatterns {
			if re.MatchString(line) {
				matches++
				break
			}
		}
		if matches >= 2 {
			return true
		}
	}
	return false
}

// mostlyText reports whether the head of the data is valid UTF-8 with a low
// control-byte density.
func mostlyText(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if len(head) == 0 {
		return false
	}
	if !utf8.Valid(head) {
		cleaned := strings.ToValidUTF8(string(head), "")
		if len(cleaned) < len(head)/2 {
			return false
		}
	}
	control := 0
	for _, b := range head {
		if b < 0x20 && b != '\n' && b != '\r' && b != '\t' {
			control++
		}
	}
	return control*10 < len(head)
}
