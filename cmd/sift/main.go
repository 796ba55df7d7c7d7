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

// Command sift ingests documents into a searchable knowledge base and
// answers questions from it.
//
// Usage:
//
//	sift ingest notes/*.md meetings/*.pdf
//	sift search "rollout plan" --topic work
//	sift answer "what did we decide about the Q3 rollout?"
//	sift stats
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/sift"
	"github.com/kadirpekel/sift/pkg/config"
	"github.com/kadirpekel/sift/pkg/retrieval"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Ingest   IngestCmd   `cmd:"" help:"Ingest files into the knowledge base."`
	Search   SearchCmd   `cmd:"" help:"Search indexed documents."`
	Answer   AnswerCmd   `cmd:"" help:"Answer a question with citations."`
	Stats    StatsCmd    `cmd:"" help:"Show catalog and spend statistics."`
	Delete   DeleteCmd   `cmd:"" help:"Delete a document from every store."`
	Reenrich ReenrichCmd `cmd:"" help:"Rerun enrichment for a stored document."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Generate JSON Schema for the configuration."`

	Config      string `short:"c" help:"Path to config file (defaults to built-in zero config)." type:"path"`
	LogLevel    string `help:"Log level (debug, info, warn, error)."`
	LogFile     string `help:"Log file path (empty = stderr)."`
	LogFormat   string `help:"Log format (simple or verbose)."`
	MetricsAddr string `name:"metrics-addr" help:"Expose Prometheus metrics on this address (e.g. :9090)." placeholder:"ADDR"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := sift.GetVersion()
	if bi, ok := debug.ReadBuildInfo(); ok {
		if bi.Main.Version != "(devel)" && bi.Main.Version != "" {
			info.Version = bi.Main.Version
		}
	}
	fmt.Println(info.String())
	return nil
}

// IngestCmd ingests files into the knowledge base.
type IngestCmd struct {
	Paths []string `arg:"" help:"Files to ingest." type:"existingfile"`

	ForceReindex    bool `name:"force-reindex" help:"Replace exact-duplicate documents instead of rejecting them."`
	SkipExport      bool `name:"skip-export" help:"Do not write Markdown artifacts for this run."`
	OverrideNearDup bool `name:"override-near-dup" help:"Admit inputs even when a near-duplicate is already indexed."`
	JSON            bool `help:"Emit results as JSON."`
}

// fileReport is the JSON shape of one ingested file.
type fileReport struct {
	Path      string               `json:"path"`
	Results   []*sift.IngestResult `json:"results,omitempty"`
	Error     string               `json:"error,omitempty"`
	ErrorKind string               `json:"error_kind,omitempty"`
}

func (c *IngestCmd) Run(cli *CLI) error {
	ctx, stop := signalContext()
	defer stop()

	svc, cleanup, err := buildService(ctx, cli)
	if err != nil {
		return err
	}
	defer cleanup()

	results := svc.IngestFiles(ctx, c.Paths, sift.IngestOptions{
		ForceReindex:    c.ForceReindex,
		SkipExport:      c.SkipExport,
		OverrideNearDup: c.OverrideNearDup,
	})

	if c.JSON {
		reports := make([]fileReport, 0, len(results))
		for _, fr := range results {
			r := fileReport{Path: fr.Path, Results: fr.Results}
			if fr.Err != nil {
				r.Error = fr.Err.Error()
				r.ErrorKind = sift.ErrorKind(fr.Err)
			}
			reports = append(reports, r)
		}
		return printJSON(reports)
	}

	var failed int
	for _, fr := range results {
		for _, res := range fr.Results {
			printIngestResult(res)
		}
		if fr.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %s [%s]\n", fr.Path, fr.Err, sift.ErrorKind(fr.Err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d inputs failed", failed, len(results))
	}
	return nil
}

func printIngestResult(res *sift.IngestResult) {
	status := res.Status
	if res.GateReason != "" {
		status += " (" + res.GateReason + ")"
	}
	fmt.Printf("%s  %-10s %q\n", res.DocID, status, res.Title)
	fmt.Printf("  type=%s chunks=%d signalness=%.2f cost=$%.4f\n",
		res.DocType, res.ChunkCount, res.Signalness, res.CostUSD)
	if res.Replaced != "" {
		fmt.Printf("  replaced %s\n", res.Replaced)
	}
	if res.Degraded {
		fmt.Printf("  enrichment degraded\n")
	}
	if res.ExportPath != "" {
		fmt.Printf("  exported to %s\n", res.ExportPath)
	}
}

// SearchCmd searches indexed documents.
type SearchCmd struct {
	Query string `arg:"" help:"Search query."`

	TopK       int    `name:"top-k" short:"k" help:"Number of results (0 = configured default)."`
	DocType    string `name:"doc-type" help:"Keep only one document type."`
	Topic      string `help:"Keep documents carrying the topic or a descendant."`
	Project    string `help:"Keep documents tagged with the project id."`
	From       string `help:"Earliest creation date (YYYY-MM-DD)." placeholder:"DATE"`
	To         string `help:"Latest creation date (YYYY-MM-DD)." placeholder:"DATE"`
	PathPrefix string `name:"path-prefix" help:"Keep documents exported under the prefix."`
	HyDE       *bool  `name:"hyde" negatable:"" help:"Toggle hypothetical-document expansion."`
	Rerank     string `help:"Reranker: lexical, llm, or none."`
	JSON       bool   `help:"Emit results as JSON."`
}

func (c *SearchCmd) Run(cli *CLI) error {
	ctx, stop := signalContext()
	defer stop()

	opts, err := c.options()
	if err != nil {
		return err
	}

	svc, cleanup, err := buildService(ctx, cli)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.Search(ctx, c.Query, opts)
	if err != nil {
		return err
	}

	if c.JSON {
		return printJSON(res)
	}
	if len(res.Candidates) == 0 {
		fmt.Println("no results")
		return nil
	}
	for i, cand := range res.Candidates {
		score := cand.Score
		if res.Reranked {
			score = cand.RerankScore
		}
		section := strings.Join(cand.SectionPath, " > ")
		if section == "" {
			section = "document root"
		}
		fmt.Printf("%2d. %.3f  %s  %s\n", i+1, score, cand.DocID, section)
		fmt.Printf("    %s\n", snippet(cand.Text, 160))
	}
	return nil
}

func (c *SearchCmd) options() (sift.SearchOptions, error) {
	opts := sift.SearchOptions{
		TopK:   c.TopK,
		HyDE:   c.HyDE,
		Rerank: c.Rerank,
		Filters: sift.SearchFilters{
			DocType:    c.DocType,
			Topic:      c.Topic,
			Project:    c.Project,
			PathPrefix: c.PathPrefix,
		},
	}
	var err error
	if c.From != "" {
		if opts.Filters.DateFrom, err = time.Parse("2006-01-02", c.From); err != nil {
			return opts, fmt.Errorf("invalid --from date: %w", err)
		}
	}
	if c.To != "" {
		if opts.Filters.DateTo, err = time.Parse("2006-01-02", c.To); err != nil {
			return opts, fmt.Errorf("invalid --to date: %w", err)
		}
	}
	return opts, nil
}

// AnswerCmd answers a question with citations.
type AnswerCmd struct {
	Question string `arg:"" help:"Question to answer."`

	TopK   int    `name:"top-k" short:"k" help:"Number of candidates to retrieve (0 = configured default)."`
	Model  string `help:"Pin synthesis to one provider from the router chain."`
	NoGate bool   `name:"no-gate" help:"Synthesize even when the confidence gate would refuse."`
	JSON   bool   `help:"Emit the answer as JSON."`
}

func (c *AnswerCmd) Run(cli *CLI) error {
	ctx, stop := signalContext()
	defer stop()

	svc, cleanup, err := buildService(ctx, cli)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := sift.SearchOptions{TopK: c.TopK, SynthesisModel: c.Model}
	if c.NoGate {
		opts.Gate = config.BoolPtr(false)
	}

	ans, err := svc.Answer(ctx, c.Question, opts)

	var evidence *retrieval.InsufficientEvidenceError
	if errors.As(err, &evidence) {
		if c.JSON {
			return printJSON(map[string]any{
				"refused":    true,
				"coverage":   evidence.Coverage,
				"top_score":  evidence.Top,
				"candidates": len(evidence.Candidates),
			})
		}
		fmt.Println(retrieval.RefusalText)
		fmt.Printf("(%d candidates above threshold, top score %.2f; --no-gate to synthesize anyway)\n",
			evidence.Coverage, evidence.Top)
		return nil
	}
	if err != nil {
		return err
	}

	if c.JSON {
		return printJSON(ans)
	}
	fmt.Println(ans.Text)
	if len(ans.Citations) > 0 {
		fmt.Println()
		for _, cit := range ans.Citations {
			fmt.Printf("  [%d] doc %s, chunk %s\n", cit.Block, cit.DocID, cit.ChunkID)
		}
	}
	if ans.CostUSD > 0 {
		fmt.Printf("\n(%s/%s, $%.4f)\n", ans.Provider, ans.Model, ans.CostUSD)
	}
	return nil
}

// StatsCmd shows catalog and spend statistics.
type StatsCmd struct {
	JSON bool `help:"Emit statistics as JSON."`
}

func (c *StatsCmd) Run(cli *CLI) error {
	ctx, stop := signalContext()
	defer stop()

	svc, cleanup, err := buildService(ctx, cli)
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := svc.Stats(ctx)
	if err != nil {
		return err
	}

	if c.JSON {
		return printJSON(stats)
	}

	cat := stats.Catalog
	fmt.Printf("Documents:   %d\n", cat.Documents)
	fmt.Printf("Chunks:      %d\n", cat.Chunks)
	for _, status := range []string{"indexed", "archived", "aborted", "deleted"} {
		if n := cat.ByStatus[status]; n > 0 {
			fmt.Printf("  %-10s %d\n", status, n)
		}
	}
	if len(cat.ByType) > 0 {
		fmt.Println("By type:")
		for docType, n := range cat.ByType {
			fmt.Printf("  %-14s %d\n", docType, n)
		}
	}
	if !cat.LastIngest.IsZero() {
		fmt.Printf("Last ingest: %s\n", cat.LastIngest.Format(time.RFC3339))
	}
	fmt.Printf("Total spend: $%.4f\n", cat.TotalCostUSD)
	fmt.Printf("Spent today: $%.4f\n", stats.SpentTodayUSD)
	if stats.RemainingBudgetUSD >= 0 {
		fmt.Printf("Remaining:   $%.4f\n", stats.RemainingBudgetUSD)
	} else {
		fmt.Printf("Remaining:   uncapped\n")
	}
	return nil
}

// DeleteCmd deletes a document from every store.
type DeleteCmd struct {
	DocID        string `arg:"" name:"doc-id" help:"Document id to delete."`
	DeleteExport bool   `name:"delete-export" help:"Also remove the exported Markdown artifact."`
}

func (c *DeleteCmd) Run(cli *CLI) error {
	ctx, stop := signalContext()
	defer stop()

	svc, cleanup, err := buildService(ctx, cli)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := svc.Delete(ctx, c.DocID, sift.DeleteOptions{DeleteExport: c.DeleteExport}); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", c.DocID)
	return nil
}

// ReenrichCmd reruns enrichment for a stored document.
type ReenrichCmd struct {
	DocID string `arg:"" name:"doc-id" help:"Document id to reenrich."`
	JSON  bool   `help:"Emit the result as JSON."`
}

func (c *ReenrichCmd) Run(cli *CLI) error {
	ctx, stop := signalContext()
	defer stop()

	svc, cleanup, err := buildService(ctx, cli)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.Reenrich(ctx, c.DocID)
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(res)
	}
	printIngestResult(res)
	return nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// buildService loads configuration and assembles the service. The
// returned cleanup closes the service and any metrics listener.
func buildService(ctx context.Context, cli *CLI) (*sift.Service, func(), error) {
	cfg, loader, err := loadConfig(ctx, cli.Config)
	if err != nil {
		return nil, nil, err
	}

	svc, err := sift.New(ctx, cfg)
	if err != nil {
		if loader != nil {
			loader.Close()
		}
		return nil, nil, err
	}

	var metricsSrv *http.Server
	if cli.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", svc.MetricsHandler())
		metricsSrv = &http.Server{Addr: cli.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics listener failed", "addr", cli.MetricsAddr, "error", err)
			}
		}()
		slog.Info("metrics exposed", "addr", cli.MetricsAddr)
	}

	cleanup := func() {
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		if err := svc.Close(); err != nil {
			slog.Warn("shutdown left errors", "error", err)
		}
		if loader != nil {
			loader.Close()
		}
	}
	return svc, cleanup, nil
}

// loadConfig loads the config file, or falls back to the built-in
// zero-config defaults when no file was given.
func loadConfig(ctx context.Context, path string) (*config.Config, *config.Loader, error) {
	if path == "" {
		slog.Info("no config file, using zero-config defaults")
		return config.DefaultConfig(), nil, nil
	}
	cfg, loader, err := config.LoadConfigFile(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	slog.Info("loaded configuration", "path", path)
	return cfg, loader, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// snippet flattens whitespace and truncates text for one-line display.
func snippet(text string, max int) string {
	flat := strings.Join(strings.Fields(text), " ")
	if len(flat) <= max {
		return flat
	}
	cut := strings.LastIndex(flat[:max], " ")
	if cut <= 0 {
		cut = max
	}
	return flat[:cut] + "..."
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("sift"),
		kong.Description("Sift - personal knowledge ingestion and retrieval"),
		kong.UsageOnError(),
	)

	cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
