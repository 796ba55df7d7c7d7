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
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// [2024-01-15 09:30] alice: message
	chatBracketRE = regexp.MustCompile(`^\[(\d{4}-\d{2}-\d{2})[ T](\d{1,2}:\d{2})(?::(\d{2}))?\]\s+([^:]{1,80}):\s?(.*)$`)
	// 15/01/2024, 09:30 - alice: message (WhatsApp export)
	chatWhatsAppRE = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2,4}),?\s+(\d{1,2}:\d{2})(?:\s?([APap][Mm]))?\s+-\s+([^:]{1,80}):\s?(.*)$`)
)

// ChatExtractor parses plain-text chat exports and groups messages by day:
// one item per day, each carrying its own thread. Lines that match no
// message pattern continue the previous message.
type ChatExtractor struct{}

// NewChatExtractor returns the chat export extractor.
func NewChatExtractor() *ChatExtractor { return &ChatExtractor{} }

func (e *ChatExtractor) Name() string { return "chat" }

func (e *ChatExtractor) Priority() int { return 70 }

func (e *ChatExtractor) Supports(format Format, _ string) bool { return format == FormatChat }

func (e *ChatExtractor) Extract(_ context.Context, data []byte, filename string) ([]Item, error) {
	text := cleanText(string(data))
	if text == "" {
		return nil, fmt.Errorf("content of %q is not valid text", filename)
	}

	byDay, order := parseChatMessages(text)
	if len(order) == 0 {
		return nil, fmt.Errorf("no chat messages recognized in %q", filename)
	}

	items := make([]Item, 0, len(order))
	for _, day := range order {
		msgs := byDay[day]
		blocks := make([]Block, 0, len(msgs)+1)
		blocks = append(blocks, Block{Kind: BlockHeading, Level: 2, Text: "Chat " + day})
		for _, m := range msgs {
			line := fmt.Sprintf("[%s] %s: %s", m.Timestamp.Format("15:04"), m.Sender, m.Body)
			blocks = append(blocks, Block{Kind: BlockParagraph, Text: line})
		}
		items = append(items, Item{
			Text:      renderBlocks(blocks),
			Blocks:    blocks,
			Thread:    &Thread{ID: day, Messages: msgs},
			TypeHint:  "chat_daily",
			CreatedAt: msgs[0].Timestamp,
		})
	}
	return items, nil
}

// parseChatMessages returns messages grouped by day plus the days in first
// appearance order.
func parseChatMessages(text string) (map[string][]Message, []string) {
	byDay := make(map[string][]Message)
	var order []string
	currentDay := ""

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		msg, day, ok := parseChatLine(line)
		if !ok {
			if currentDay != "" && strings.TrimSpace(line) != "" {
				msgs := byDay[currentDay]
				msgs[len(msgs)-1].Body += "\n" + strings.TrimSpace(line)
			}
			continue
		}
		if _, seen := byDay[day]; !seen {
			order = append(order, day)
		}
		byDay[day] = append(byDay[day], msg)
		currentDay = day
	}
	return byDay, order
}

func parseChatLine(line string) (Message, string, bool) {
	if m := chatBracketRE.FindStringSubmatch(line); m != nil {
		stamp := m[1] + " " + m[2]
		layout := "2006-01-02 15:04"
		if m[3] != "" {
			stamp += ":" + m[3]
			layout = "2006-01-02 15:04:05"
		}
		ts, err := time.Parse(layout, stamp)
		if err != nil {
			return Message{}, "", false
		}
		return Message{
			Sender:    strings.TrimSpace(m[4]),
			Timestamp: ts,
			Body:      strings.TrimSpace(m[5]),
		}, m[1], true
	}

	if m := chatWhatsAppRE.FindStringSubmatch(line); m != nil {
		year, month, day, ok := whatsAppDate(m[1], m[2], m[3])
		if !ok {
			return Message{}, "", false
		}
		clock, err := parseClock(m[4], m[5])
		if err != nil {
			return Message{}, "", false
		}
		ts := time.Date(year, time.Month(month), day, clock.Hour(), clock.Minute(), 0, 0, time.UTC)
		return Message{
			Sender:    strings.TrimSpace(m[6]),
			Timestamp: ts,
			Body:      strings.TrimSpace(m[7]),
		}, ts.Format("2006-01-02"), true
	}

	return Message{}, "", false
}

// whatsAppDate resolves day/month order: whichever position exceeds 12 must
// be the day; ambiguous dates read day-first, the WhatsApp export norm.
func whatsAppDate(a, b, y string) (year, month, day int, ok bool) {
	first, _ := strconv.Atoi(a)
	second, _ := strconv.Atoi(b)
	year, _ = strconv.Atoi(y)
	if year < 100 {
		year += 2000
	}
	day, month = first, second
	if first <= 12 && second > 12 {
		day, month = second, first
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, 0, 0, false
	}
	return year, month, day, true
}

func parseClock(clock, ampm string) (time.Time, error) {
	if ampm != "" {
		return time.Parse("3:04 PM", clock+" "+strings.ToUpper(ampm))
	}
	return time.Parse("15:04", clock)
}

var _ Extractor = (*ChatExtractor)(nil)
