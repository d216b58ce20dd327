package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/lucidmem/kioku/internal/models"
)

// SQLite is the memory store holding every persistent layer's rows.
type SQLite struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at dbPath and initializes the
// schema. Parent directories are created if they do not exist.
func Open(dbPath string) (*SQLite, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		tags TEXT,
		metadata TEXT,
		occurred_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_occurred_at ON events(occurred_at);

	CREATE TABLE IF NOT EXISTS facts (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		tags TEXT,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS workflows (
		id TEXT PRIMARY KEY,
		name TEXT,
		content TEXT NOT NULL,
		tags TEXT,
		metadata TEXT,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		due_at TIMESTAMP,
		tags TEXT,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		kind TEXT,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS edges (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		relation TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (source_id) REFERENCES nodes(id) ON DELETE CASCADE,
		FOREIGN KEY (target_id) REFERENCES nodes(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);

	CREATE TABLE IF NOT EXISTS quality (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		content TEXT,
		expertise REAL NOT NULL DEFAULT 0.5,
		metadata TEXT,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_quality_domain ON quality(domain);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// newID returns a new lexicographically time-ordered record ID.
func newID() string {
	return ulid.Make().String()
}

func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(b), nil
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

// termClause builds a WHERE fragment matching any of the terms against
// column with LIKE, plus the bound arguments.
func termClause(column string, terms []string) (string, []interface{}) {
	if len(terms) == 0 {
		return "1=1", nil
	}
	parts := make([]string, len(terms))
	args := make([]interface{}, len(terms))
	for i, t := range terms {
		parts[i] = column + " LIKE ?"
		args[i] = "%" + t + "%"
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// matchScore is the fraction of query terms present in content, in (0,1].
func matchScore(content string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lc := strings.ToLower(content)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lc, strings.ToLower(t)) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

func scanRecords(rows *sql.Rows, terms []string) ([]*Record, error) {
	var out []*Record
	for rows.Next() {
		var (
			r            Record
			tags, metaJS sql.NullString
			ts           time.Time
		)
		if err := rows.Scan(&r.ID, &r.Content, &tags, &metaJS, &ts); err != nil {
			return nil, err
		}
		r.Tags = splitTags(tags.String)
		r.Timestamp = ts
		if metaJS.String != "" {
			if err := json.Unmarshal([]byte(metaJS.String), &r.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		r.Score = matchScore(r.Content+" "+tags.String, terms)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// SearchEvents returns events matching any term, most recent first.
func (s *SQLite) SearchEvents(ctx context.Context, terms []string, limit int) ([]*Record, error) {
	clause, args := termClause("content || ' ' || COALESCE(tags,'')", terms)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, tags, metadata, occurred_at FROM events
		 WHERE `+clause+` ORDER BY occurred_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows, terms)
}

// ListFacts returns all facts, oldest first. Used to rebuild indices.
func (s *SQLite) ListFacts(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, tags, metadata, created_at FROM facts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows, nil)
}

// GetFact returns one fact by ID.
func (s *SQLite) GetFact(ctx context.Context, id string) (*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, tags, metadata, created_at FROM facts WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	recs, err := scanRecords(rows, nil)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("fact not found: %s", id)
	}
	return recs[0], nil
}

// SearchWorkflows returns workflow templates matching any term.
func (s *SQLite) SearchWorkflows(ctx context.Context, terms []string, limit int) ([]*Record, error) {
	clause, args := termClause("COALESCE(name,'') || ' ' || content || ' ' || COALESCE(tags,'')", terms)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(name,'') || ': ' || content, tags, metadata, updated_at FROM workflows
		 WHERE `+clause+` ORDER BY updated_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows, terms)
}

// SearchTasks returns pending tasks matching any term, earliest due first.
func (s *SQLite) SearchTasks(ctx context.Context, terms []string, limit int) ([]*Record, error) {
	clause, args := termClause("content || ' ' || COALESCE(tags,'')", terms)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, tags, metadata, created_at FROM tasks
		 WHERE status = 'pending' AND `+clause+`
		 ORDER BY due_at IS NULL, due_at ASC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows, terms)
}

// SearchNodes returns graph nodes whose label matches any term.
func (s *SQLite) SearchNodes(ctx context.Context, terms []string, limit int) ([]*Record, error) {
	clause, args := termClause("label", terms)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, kind, metadata, created_at FROM nodes
		 WHERE `+clause+` LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows, terms)
}

// Neighbors returns nodes one hop from nodeID, with the connecting
// relation recorded in each record's metadata.
func (s *SQLite) Neighbors(ctx context.Context, nodeID string, limit int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT n.id, n.label, n.kind, n.metadata, n.created_at, e.relation
		 FROM edges e JOIN nodes n ON n.id = CASE WHEN e.source_id = ? THEN e.target_id ELSE e.source_id END
		 WHERE e.source_id = ? OR e.target_id = ?
		 LIMIT ?`, nodeID, nodeID, nodeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var (
			r            Record
			kind, metaJS sql.NullString
			ts           time.Time
			relation     string
		)
		if err := rows.Scan(&r.ID, &r.Content, &kind, &metaJS, &ts, &relation); err != nil {
			return nil, err
		}
		r.Timestamp = ts
		if metaJS.String != "" {
			if err := json.Unmarshal([]byte(metaJS.String), &r.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		if r.Metadata == nil {
			r.Metadata = make(map[string]interface{})
		}
		r.Metadata["relation"] = relation
		r.Metadata["neighbor_of"] = nodeID
		if kind.String != "" {
			r.Metadata["kind"] = kind.String
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// SearchQuality returns quality entries whose domain or content matches
// any term.
func (s *SQLite) SearchQuality(ctx context.Context, terms []string, limit int) ([]*Record, error) {
	clause, args := termClause("domain || ' ' || COALESCE(content,'')", terms)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, domain || ': ' || COALESCE(content,''), expertise, metadata, updated_at FROM quality
		 WHERE `+clause+` ORDER BY expertise DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var (
			r         Record
			expertise float64
			metaJS    sql.NullString
			ts        time.Time
		)
		if err := rows.Scan(&r.ID, &r.Content, &expertise, &metaJS, &ts); err != nil {
			return nil, err
		}
		r.Timestamp = ts
		r.Score = expertise
		if metaJS.String != "" {
			if err := json.Unmarshal([]byte(metaJS.String), &r.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		if r.Metadata == nil {
			r.Metadata = make(map[string]interface{})
		}
		r.Metadata["expertise"] = expertise
		out = append(out, &r)
	}
	return out, rows.Err()
}

// DomainExpertise returns the expertise score for a domain, if recorded.
func (s *SQLite) DomainExpertise(ctx context.Context, domain string) (float64, bool, error) {
	var expertise float64
	err := s.db.QueryRowContext(ctx,
		`SELECT expertise FROM quality WHERE domain = ? ORDER BY updated_at DESC LIMIT 1`,
		domain).Scan(&expertise)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return expertise, true, nil
}

// Insert adds one memory record to the table backing its layer and
// returns the new record ID. Semantic and lexical share the facts table.
func (s *SQLite) Insert(ctx context.Context, in *models.MemoryInput) (string, error) {
	id := newID()
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	metaJS, err := marshalJSON(in.Metadata)
	if err != nil {
		return "", err
	}
	tags := joinTags(in.Tags)

	switch in.Layer {
	case models.LayerEpisodic:
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO events (id, content, tags, metadata, occurred_at) VALUES (?, ?, ?, ?, ?)`,
			id, in.Content, tags, metaJS, ts)
	case models.LayerSemantic, models.LayerLexical:
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO facts (id, content, tags, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, in.Content, tags, metaJS, ts)
	case models.LayerProcedural:
		name, _ := in.Metadata["name"].(string)
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO workflows (id, name, content, tags, metadata, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			id, name, in.Content, tags, metaJS, ts)
	case models.LayerProspective:
		var due interface{}
		if d, ok := in.Metadata["due_at"].(string); ok {
			if parsed, perr := time.Parse(time.RFC3339, d); perr == nil {
				due = parsed
			}
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO tasks (id, content, status, due_at, tags, metadata, created_at) VALUES (?, ?, 'pending', ?, ?, ?, ?)`,
			id, in.Content, due, tags, metaJS, ts)
	case models.LayerGraph:
		src, hasSrc := in.Metadata["source"].(string)
		dst, hasDst := in.Metadata["target"].(string)
		if hasSrc && hasDst {
			relation := in.Content
			if relation == "" {
				relation = "related_to"
			}
			_, err = s.db.ExecContext(ctx,
				`INSERT INTO edges (id, source_id, target_id, relation, created_at) VALUES (?, ?, ?, ?, ?)`,
				id, src, dst, relation, ts)
		} else {
			kind, _ := in.Metadata["kind"].(string)
			_, err = s.db.ExecContext(ctx,
				`INSERT INTO nodes (id, label, kind, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
				id, in.Content, kind, metaJS, ts)
		}
	case models.LayerMeta:
		domain, _ := in.Metadata["domain"].(string)
		if domain == "" {
			return "", fmt.Errorf("meta record requires a domain")
		}
		expertise := 0.5
		if e, ok := in.Metadata["expertise"].(float64); ok {
			expertise = e
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO quality (id, domain, content, expertise, metadata, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			id, domain, in.Content, expertise, metaJS, ts)
	default:
		return "", fmt.Errorf("unknown layer: %s", in.Layer)
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

var layerTables = map[models.LayerID]string{
	models.LayerEpisodic:    "events",
	models.LayerSemantic:    "facts",
	models.LayerLexical:     "facts",
	models.LayerProcedural:  "workflows",
	models.LayerProspective: "tasks",
	models.LayerGraph:       "nodes",
	models.LayerMeta:        "quality",
}

// Get returns the raw content of one record in a layer's table.
func (s *SQLite) Get(ctx context.Context, layer models.LayerID, id string) (*Record, error) {
	table, ok := layerTables[layer]
	if !ok {
		return nil, fmt.Errorf("unknown layer: %s", layer)
	}
	contentCol := "content"
	if table == "nodes" {
		contentCol = "label"
	} else if table == "quality" {
		contentCol = "COALESCE(content,'')"
	}
	var r Record
	err := s.db.QueryRowContext(ctx,
		`SELECT id, `+contentCol+` FROM `+table+` WHERE id = ?`, id,
	).Scan(&r.ID, &r.Content)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("record not found: %s/%s", layer, id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Delete removes one record from a layer's table.
func (s *SQLite) Delete(ctx context.Context, layer models.LayerID, id string) error {
	table, ok := layerTables[layer]
	if !ok {
		return fmt.Errorf("unknown layer: %s", layer)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record not found: %s/%s", layer, id)
	}
	return nil
}

// Counts returns per-layer record counts for the status endpoint.
func (s *SQLite) Counts(ctx context.Context) (map[models.LayerID]int, error) {
	counts := make(map[models.LayerID]int)
	for _, layer := range models.AllLayers {
		if layer == models.LayerLexical {
			continue // shares the facts table with semantic
		}
		var n int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM `+layerTables[layer]).Scan(&n); err != nil {
			return nil, err
		}
		counts[layer] = n
	}
	counts[models.LayerLexical] = counts[models.LayerSemantic]
	return counts, nil
}
