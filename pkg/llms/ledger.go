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

package llms

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Entry is one ledger record: a single successful provider call.
type Entry struct {
	Timestamp    time.Time `json:"ts"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Operation    string    `json:"operation"`
	InputTokens  int       `json:"in_tokens"`
	OutputTokens int       `json:"out_tokens"`
	CostUSD      float64   `json:"cost_usd"`
}

// DaySummary aggregates a day's entries.
type DaySummary struct {
	Day          string
	Calls        int
	InputTokens  int64
	OutputTokens int64
	TotalUSD     float64
	ByProvider   map[string]float64
	ByOperation  map[string]float64
}

// Ledger tracks spend in process and appends every entry to a daily
// JSONL snapshot (ledger-YYYY-MM-DD.jsonl). Existing snapshots are
// replayed at startup so daily budgets survive restarts. Days follow UTC.
//
// All methods are safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	dir     string // empty disables persistence
	days    map[string]*DaySummary
	file    *os.File
	fileDay string

	now func() time.Time
}

// NewLedger opens a ledger rooted at dir and replays any snapshot files
// found there. An empty dir keeps the ledger memory-only.
func NewLedger(dir string) (*Ledger, error) {
	l := &Ledger{
		dir:  dir,
		days: make(map[string]*DaySummary),
		now:  time.Now,
	}
	if dir == "" {
		return l, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	if err := l.replay(); err != nil {
		return nil, err
	}
	return l, nil
}

// Record appends an entry and updates the day totals. A zero timestamp
// is filled with the current time.
func (l *Ledger) Record(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	day := dayKey(e.Timestamp)
	l.addLocked(day, e)

	if l.dir == "" {
		return nil
	}
	if err := l.rotateLocked(day); err != nil {
		return err
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// TodayTotal returns the spend recorded for the current UTC day.
func (l *Ledger) TodayTotal() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if day, ok := l.days[dayKey(l.now())]; ok {
		return day.TotalUSD
	}
	return 0
}

// Remaining returns how much of the daily budget is left. A negative
// budget means no cap; Remaining then reports -1. A zero budget is a
// real cap with nothing left to spend.
func (l *Ledger) Remaining(budgetUSD float64) float64 {
	if budgetUSD < 0 {
		return -1
	}
	remaining := budgetUSD - l.TodayTotal()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Summary returns the aggregate for one UTC day.
func (l *Ledger) Summary(day time.Time) DaySummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := dayKey(day)
	if s, ok := l.days[key]; ok {
		return cloneSummary(s)
	}
	return DaySummary{Day: key, ByProvider: map[string]float64{}, ByOperation: map[string]float64{}}
}

// Days returns the day keys with recorded spend, sorted ascending.
func (l *Ledger) Days() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	keys := make([]string, 0, len(l.days))
	for k := range l.days {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TotalUSD returns all-time spend across replayed and recorded days.
func (l *Ledger) TotalUSD() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total float64
	for _, day := range l.days {
		total += day.TotalUSD
	}
	return total
}

// Close flushes and closes the current snapshot file.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.fileDay = ""
	return err
}

// replay loads totals from every snapshot in the ledger directory.
// Corrupt lines are skipped with a warning; a torn final write must not
// wedge startup.
func (l *Ledger) replay() error {
	pattern := filepath.Join(l.dir, "ledger-*.jsonl")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("failed to list ledger snapshots: %w", err)
	}
	for _, path := range files {
		if err := l.replayFile(path); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) replayFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open ledger snapshot %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			slog.Warn("skipping corrupt ledger line", "file", filepath.Base(path), "line", lineNo, "error", err)
			continue
		}
		l.addLocked(dayKey(e.Timestamp), e)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read ledger snapshot %s: %w", path, err)
	}
	return nil
}

// rotateLocked points l.file at the snapshot for day. Callers hold l.mu.
func (l *Ledger) rotateLocked(day string) error {
	if l.file != nil && l.fileDay == day {
		return nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	path := filepath.Join(l.dir, "ledger-"+day+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open ledger snapshot: %w", err)
	}
	l.file = f
	l.fileDay = day
	return nil
}

func (l *Ledger) addLocked(day string, e Entry) {
	s, ok := l.days[day]
	if !ok {
		s = &DaySummary{Day: day, ByProvider: map[string]float64{}, ByOperation: map[string]float64{}}
		l.days[day] = s
	}
	s.Calls++
	s.InputTokens += int64(e.InputTokens)
	s.OutputTokens += int64(e.OutputTokens)
	s.TotalUSD += e.CostUSD
	s.ByProvider[e.Provider] += e.CostUSD
	s.ByOperation[e.Operation] += e.CostUSD
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func cloneSummary(s *DaySummary) DaySummary {
	out := DaySummary{
		Day:          s.Day,
		Calls:        s.Calls,
		InputTokens:  s.InputTokens,
		OutputTokens: s.OutputTokens,
		TotalUSD:     s.TotalUSD,
		ByProvider:   make(map[string]float64, len(s.ByProvider)),
		ByOperation:  make(map[string]float64, len(s.ByOperation)),
	}
	for k, v := range s.ByProvider {
		out.ByProvider[k] = v
	}
	for k, v := range s.ByOperation {
		out.ByOperation[k] = v
	}
	return out
}
