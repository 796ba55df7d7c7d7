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

// Package sift turns messy personal corpora into a searchable,
// citable knowledge base.
//
// Sift ingests PDFs, emails, chat logs, Markdown, office documents and
// code; deduplicates them; enriches each document with LLM-generated
// metadata under a daily cost budget; decides per document whether it
// earns a place in the index; and serves hybrid (dense + lexical)
// retrieval with cited, confidence-gated answers. Indexed documents are
// also exported as portable Markdown notes with YAML front matter, so
// the knowledge base outlives the tool.
//
// # Quick Start
//
// Install the CLI:
//
//	go install github.com/kadirpekel/sift/cmd/sift@latest
//
// Create a minimal configuration:
//
//	embedder:
//	  type: "ollama"
//	  model: "nomic-embed-text"
//
//	llms:
//	  local:
//	    type: "ollama"
//	    model: "llama3.3"
//
//	router:
//	  chain: ["local"]
//	  daily_budget_usd: 5.0
//
// Ingest and query:
//
//	sift ingest notes/*.md meetings/*.pdf
//	sift search "rollout plan"
//	sift answer "what did we decide about the Q3 rollout?"
//
// # Using as a Go Library
//
//	cfg, _, err := config.LoadConfigFile(ctx, "sift.yaml")
//	if err != nil {
//	    return err
//	}
//	svc, err := sift.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer svc.Close()
//
//	results, err := svc.Ingest(ctx, data, sift.IngestOptions{Filename: "notes.md"})
//
// Or import specific packages:
//
//	import (
//	    "github.com/kadirpekel/sift/pkg/ingest"
//	    "github.com/kadirpekel/sift/pkg/retrieval"
//	    "github.com/kadirpekel/sift/pkg/config"
//	)
//
// # Key Features
//
//   - **Multi-format extraction**: PDF, DOCX/XLSX/PPTX, HTML, email,
//     chat exports, Markdown, code, OCR for images
//   - **Two-tier dedup**: exact content hash plus simhash near-duplicate
//     detection with configurable Hamming threshold
//   - **Budgeted enrichment**: provider chain with a persistent cost
//     ledger; degrades gracefully instead of failing when budget runs out
//   - **Signalness gating**: quality, novelty, and actionability scores
//     decide indexed versus archived per document
//   - **Hybrid retrieval**: dense vectors plus in-memory BM25, MMR
//     diversification, optional HyDE and reranking
//   - **Gated answers**: synthesis refuses instead of guessing when
//     evidence is thin; every claim carries a citation
//   - **Markdown vault**: indexed documents exported as portable notes
//     with YAML front matter
//
// # Architecture
//
// Ingestion runs as a pipeline, with the catalog row as the commit
// point:
//
//	extract → dedup → enrich → score → chunk → embed → index → catalog → export
//
// Retrieval fans out to the vector store and the sparse index
// concurrently, fuses scores, and optionally reranks and synthesizes:
//
//	query → [dense | sparse] → fuse → MMR → rerank → gate → answer
//
// The catalog (SQLite, PostgreSQL, or MySQL) is the durable system of
// record; the dedup and sparse indexes are rebuilt from it at startup.
//
// # License
//
// Apache-2.0 - See LICENSE for details.
package sift
