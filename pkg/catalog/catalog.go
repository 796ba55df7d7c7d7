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

// Package catalog is the SQL registry of documents and chunks. It is
// the durable system of record behind the in-memory indexes: the dedup
// index and the sparse index are rebuilt from it at startup, and stats,
// delete, re-enrichment, and audit of gated-out documents read it.
//
// Supports SQLite (default), PostgreSQL, and MySQL through the shared
// config.DBPool.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kadirpekel/sift/pkg/chunk"
	"github.com/kadirpekel/sift/pkg/enrich"
)

// Document statuses.
const (
	// StatusIndexed marks documents with chunks in the vector store.
	StatusIndexed = "indexed"

	// StatusArchived marks gated-out documents kept for audit and
	// novelty comparison only.
	StatusArchived = "archived"

	// StatusAborted marks ingests that failed after partial work.
	StatusAborted = "aborted"

	// StatusDeleted marks removed documents. The row is kept so the
	// id stays burned, but the content hash is re-admitted.
	StatusDeleted = "deleted"
)

// NotFoundError reports a lookup for an unknown document.
type NotFoundError struct {
	DocID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("document %s not found", e.DocID)
}

// Document is the durable record of one ingest.
type Document struct {
	ID          string
	ContentHash string

	// Fingerprint is the SimHash in fixed-width hex.
	Fingerprint string

	// ArchiveHash addresses the original bytes in the blob archive,
	// empty when archiving was off for this ingest.
	ArchiveHash string

	Source string
	MIME   string

	DocType string
	Title   string
	Summary string

	// CreatedAt is the document's own date. Zero when unknown.
	CreatedAt  time.Time
	IngestedAt time.Time

	Quality       float64
	Novelty       float64
	Actionability float64
	Signalness    float64

	DoIndex bool
	Status  string

	Enrichment        *enrich.Enrichment
	SuggestedTags     []string
	EnrichmentVersion int
	Degraded          bool

	ChunkCount int
	ExportPath string
	CostUSD    float64
}

const createDocumentsTableSQL = `
CREATE TABLE IF NOT EXISTS documents (
    id VARCHAR(64) PRIMARY KEY,
    content_hash VARCHAR(64) NOT NULL,
    fingerprint VARCHAR(16) NOT NULL,
    archive_hash VARCHAR(64) NOT NULL,
    source TEXT NOT NULL,
    mime VARCHAR(255) NOT NULL,
    doc_type VARCHAR(32) NOT NULL,
    title TEXT NOT NULL,
    summary TEXT NOT NULL,
    created_at TIMESTAMP NULL,
    ingested_at TIMESTAMP NOT NULL,
    quality DOUBLE PRECISION NOT NULL,
    novelty DOUBLE PRECISION NOT NULL,
    actionability DOUBLE PRECISION NOT NULL,
    signalness DOUBLE PRECISION NOT NULL,
    do_index BOOLEAN NOT NULL,
    status VARCHAR(16) NOT NULL,
    enrichment TEXT NOT NULL,
    suggested_tags TEXT NOT NULL,
    enrichment_version INTEGER NOT NULL,
    degraded BOOLEAN NOT NULL,
    chunk_count INTEGER NOT NULL,
    export_path TEXT NOT NULL,
    cost_usd DOUBLE PRECISION NOT NULL
)`

// The content hash index is deliberately non-unique: deleted documents
// keep their row, and their content may be ingested again. Uniqueness
// among live documents is enforced by the dedup index.
const createDocumentsHashIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_documents_content_hash ON documents(content_hash)`

const createDocumentsStatusIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status)`

const createChunksTableSQL = `
CREATE TABLE IF NOT EXISTS chunks (
    id VARCHAR(80) PRIMARY KEY,
    doc_id VARCHAR(64) NOT NULL,
    ordinal INTEGER NOT NULL,
    kind VARCHAR(20) NOT NULL,
    section_path TEXT NOT NULL,
    section_title TEXT NOT NULL,
    text TEXT NOT NULL,
    token_estimate INTEGER NOT NULL,
    page INTEGER NOT NULL
)`

const createChunksDocIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id)`

const documentColumns = `id, content_hash, fingerprint, archive_hash, source, mime,
doc_type, title, summary, created_at, ingested_at,
quality, novelty, actionability, signalness,
do_index, status, enrichment, suggested_tags, enrichment_version, degraded,
chunk_count, export_path, cost_usd`

// Catalog wraps one shared database connection.
type Catalog struct {
	db      *sql.DB
	dialect string
}

// New initializes the schema on db and returns the catalog. Supported
// dialects: "postgres", "mysql", "sqlite".
func New(db *sql.DB, dialect string) (*Catalog, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if dialect == "sqlite3" {
		dialect = "sqlite"
	}
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	c := &Catalog{db: db, dialect: dialect}
	if err := c.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}
	return c, nil
}

func (c *Catalog) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statements := []string{
		createDocumentsTableSQL,
		createDocumentsHashIndexSQL,
		createDocumentsStatusIndexSQL,
		createChunksTableSQL,
		createChunksDocIndexSQL,
	}
	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres. SQLite and MySQL
// take ? natively.
func (c *Catalog) rebind(query string) string {
	if c.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SaveDocument inserts a new document row.
func (c *Catalog) SaveDocument(ctx context.Context, doc *Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("document with id is required")
	}

	enrichmentJSON, tagsJSON, err := marshalEnrichment(doc)
	if err != nil {
		return err
	}

	query := `
INSERT INTO documents (` + documentColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = c.db.ExecContext(ctx, c.rebind(query),
		doc.ID, doc.ContentHash, doc.Fingerprint, doc.ArchiveHash, doc.Source, doc.MIME,
		doc.DocType, doc.Title, doc.Summary, nullTime(doc.CreatedAt), doc.IngestedAt.UTC(),
		doc.Quality, doc.Novelty, doc.Actionability, doc.Signalness,
		doc.DoIndex, doc.Status, enrichmentJSON, tagsJSON, doc.EnrichmentVersion, doc.Degraded,
		doc.ChunkCount, doc.ExportPath, doc.CostUSD,
	)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// UpdateDocument replaces the mutable fields of an existing row. Used
// by re-enrichment; identity and ingest provenance columns stay fixed.
func (c *Catalog) UpdateDocument(ctx context.Context, doc *Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("document with id is required")
	}

	enrichmentJSON, tagsJSON, err := marshalEnrichment(doc)
	if err != nil {
		return err
	}

	query := `
UPDATE documents SET
    doc_type = ?, title = ?, summary = ?,
    quality = ?, novelty = ?, actionability = ?, signalness = ?,
    do_index = ?, status = ?,
    enrichment = ?, suggested_tags = ?, enrichment_version = ?, degraded = ?,
    chunk_count = ?, export_path = ?, cost_usd = ?
WHERE id = ?`

	res, err := c.db.ExecContext(ctx, c.rebind(query),
		doc.DocType, doc.Title, doc.Summary,
		doc.Quality, doc.Novelty, doc.Actionability, doc.Signalness,
		doc.DoIndex, doc.Status,
		enrichmentJSON, tagsJSON, doc.EnrichmentVersion, doc.Degraded,
		doc.ChunkCount, doc.ExportPath, doc.CostUSD,
		doc.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return checkAffected(res, doc.ID)
}

// UpdateStatus moves a document to a new lifecycle status.
func (c *Catalog) UpdateStatus(ctx context.Context, docID, status string) error {
	query := `UPDATE documents SET status = ? WHERE id = ?`
	res, err := c.db.ExecContext(ctx, c.rebind(query), status, docID)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return checkAffected(res, docID)
}

// GetDocument fetches one document by id.
func (c *Catalog) GetDocument(ctx context.Context, docID string) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ?`
	row := c.db.QueryRowContext(ctx, c.rebind(query), docID)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{DocID: docID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	return doc, nil
}

// GetDocuments fetches a batch of documents by id. Unknown ids are
// simply absent from the result.
func (c *Catalog) GetDocuments(ctx context.Context, ids []string) (map[string]*Document, error) {
	out := make(map[string]*Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id IN (` + placeholders + `)`

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := c.db.QueryContext(ctx, c.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		out[doc.ID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return out, nil
}

// ReplaceChunks swaps a document's chunk rows for the given set in one
// transaction.
func (c *Catalog) ReplaceChunks(ctx context.Context, docID string, chunks []chunk.Chunk) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, c.rebind(`DELETE FROM chunks WHERE doc_id = ?`), docID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	insert := c.rebind(`
INSERT INTO chunks (id, doc_id, ordinal, kind, section_path, section_title, text, token_estimate, page)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	for i := range chunks {
		ch := &chunks[i]
		pathJSON, err := json.Marshal(ch.SectionPath)
		if err != nil {
			return fmt.Errorf("failed to marshal section path: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insert,
			ch.ID, docID, ch.Ordinal, ch.Kind, string(pathJSON), ch.SectionTitle(),
			ch.Text, ch.TokenEstimate, ch.Page,
		); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", ch.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// Chunks returns a document's chunk rows ordered by ordinal.
func (c *Catalog) Chunks(ctx context.Context, docID string) ([]chunk.Chunk, error) {
	query := `
SELECT id, doc_id, ordinal, kind, section_path, text, token_estimate, page
FROM chunks WHERE doc_id = ? ORDER BY ordinal`

	rows, err := c.db.QueryContext(ctx, c.rebind(query), docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var out []chunk.Chunk
	for rows.Next() {
		var ch chunk.Chunk
		var pathJSON string
		if err := rows.Scan(&ch.ID, &ch.DocID, &ch.Ordinal, &ch.Kind, &pathJSON,
			&ch.Text, &ch.TokenEstimate, &ch.Page); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(pathJSON), &ch.SectionPath); err != nil {
			return nil, fmt.Errorf("failed to parse section path: %w", err)
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	return out, nil
}

// DeleteChunks removes a document's chunk rows.
func (c *Catalog) DeleteChunks(ctx context.Context, docID string) error {
	if _, err := c.db.ExecContext(ctx, c.rebind(`DELETE FROM chunks WHERE doc_id = ?`), docID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// ForEachLiveDocument streams the identity triple of every indexed or
// archived document, for rebuilding the dedup index at startup. fn must
// not issue catalog queries: SQLite runs on a single connection.
func (c *Catalog) ForEachLiveDocument(ctx context.Context, fn func(id, contentHash, fingerprint string) error) error {
	query := `
SELECT id, content_hash, fingerprint FROM documents
WHERE status IN (?, ?) ORDER BY ingested_at`

	rows, err := c.db.QueryContext(ctx, c.rebind(query), StatusIndexed, StatusArchived)
	if err != nil {
		return fmt.Errorf("failed to query live documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, hash, fingerprint string
		if err := rows.Scan(&id, &hash, &fingerprint); err != nil {
			return fmt.Errorf("failed to scan document identity: %w", err)
		}
		if err := fn(id, hash, fingerprint); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ForEachIndexedChunk streams every retrievable chunk (indexed
// documents, ignored chunks excluded) grouped by document, for
// rebuilding the sparse index at startup. Same single-connection
// constraint as ForEachLiveDocument.
func (c *Catalog) ForEachIndexedChunk(ctx context.Context, fn func(docID, chunkID, text string) error) error {
	query := `
SELECT c.doc_id, c.id, c.text
FROM chunks c
JOIN documents d ON d.id = c.doc_id
WHERE d.status = ? AND c.kind != ?
ORDER BY c.doc_id, c.ordinal`

	rows, err := c.db.QueryContext(ctx, c.rebind(query), StatusIndexed, chunk.KindIgnored)
	if err != nil {
		return fmt.Errorf("failed to query indexed chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var docID, chunkID, text string
		if err := rows.Scan(&docID, &chunkID, &text); err != nil {
			return fmt.Errorf("failed to scan chunk row: %w", err)
		}
		if err := fn(docID, chunkID, text); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Stats summarizes the catalog.
type Stats struct {
	// Documents counts indexed plus archived rows.
	Documents int `json:"documents"`

	// Chunks counts stored chunk rows.
	Chunks int `json:"chunks"`

	ByStatus map[string]int `json:"by_status,omitempty"`
	ByType   map[string]int `json:"by_type,omitempty"`

	// LastIngest is zero when the catalog is empty.
	LastIngest time.Time `json:"last_ingest,omitempty"`

	// TotalCostUSD sums cost over all rows, aborted ingests included.
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// GetStats aggregates document and chunk counts, last ingest time, and
// total spend.
func (c *Catalog) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByStatus: make(map[string]int),
		ByType:   make(map[string]int),
	}

	rows, err := c.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats.ByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read status counts: %w", err)
	}
	stats.Documents = stats.ByStatus[StatusIndexed] + stats.ByStatus[StatusArchived]

	typeQuery := c.rebind(`
SELECT doc_type, COUNT(*) FROM documents WHERE status IN (?, ?) GROUP BY doc_type`)
	typeRows, err := c.db.QueryContext(ctx, typeQuery, StatusIndexed, StatusArchived)
	if err != nil {
		return nil, fmt.Errorf("failed to count by type: %w", err)
	}
	defer typeRows.Close()
	for typeRows.Next() {
		var docType string
		var n int
		if err := typeRows.Scan(&docType, &n); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		stats.ByType[docType] = n
	}
	if err := typeRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read type counts: %w", err)
	}

	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&stats.Chunks); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	if err := c.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(cost_usd), 0) FROM documents`).Scan(&stats.TotalCostUSD); err != nil {
		return nil, fmt.Errorf("failed to sum cost: %w", err)
	}

	// Read the column directly instead of MAX(): aggregate expressions
	// lose the column's declared type under the sqlite driver, which
	// breaks time scanning.
	var last time.Time
	err = c.db.QueryRowContext(ctx,
		`SELECT ingested_at FROM documents ORDER BY ingested_at DESC LIMIT 1`).Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to read last ingest time: %w", err)
	}
	stats.LastIngest = last

	return stats, nil
}

// Close is a no-op: the underlying connection belongs to the shared
// pool and is closed there.
func (c *Catalog) Close() error { return nil }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var createdAt sql.NullTime
	var enrichmentJSON, tagsJSON string

	err := row.Scan(
		&doc.ID, &doc.ContentHash, &doc.Fingerprint, &doc.ArchiveHash, &doc.Source, &doc.MIME,
		&doc.DocType, &doc.Title, &doc.Summary, &createdAt, &doc.IngestedAt,
		&doc.Quality, &doc.Novelty, &doc.Actionability, &doc.Signalness,
		&doc.DoIndex, &doc.Status, &enrichmentJSON, &tagsJSON, &doc.EnrichmentVersion, &doc.Degraded,
		&doc.ChunkCount, &doc.ExportPath, &doc.CostUSD,
	)
	if err != nil {
		return nil, err
	}

	if createdAt.Valid {
		doc.CreatedAt = createdAt.Time
	}
	if enrichmentJSON != "" {
		doc.Enrichment = &enrich.Enrichment{}
		if err := json.Unmarshal([]byte(enrichmentJSON), doc.Enrichment); err != nil {
			return nil, fmt.Errorf("failed to parse enrichment: %w", err)
		}
	}
	if tagsJSON != "" && tagsJSON != "[]" {
		if err := json.Unmarshal([]byte(tagsJSON), &doc.SuggestedTags); err != nil {
			return nil, fmt.Errorf("failed to parse suggested tags: %w", err)
		}
	}
	return &doc, nil
}

func marshalEnrichment(doc *Document) (enrichmentJSON, tagsJSON string, err error) {
	if doc.Enrichment != nil {
		data, err := json.Marshal(doc.Enrichment)
		if err != nil {
			return "", "", fmt.Errorf("failed to marshal enrichment: %w", err)
		}
		enrichmentJSON = string(data)
	}

	tags := doc.SuggestedTags
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal suggested tags: %w", err)
	}
	return enrichmentJSON, string(data), nil
}

func checkAffected(res sql.Result, docID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return &NotFoundError{DocID: docID}
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
