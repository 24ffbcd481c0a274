package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sattvalabs/wisdomd/internal/compose"
	"github.com/sattvalabs/wisdomd/internal/flow"
	"github.com/sattvalabs/wisdomd/internal/versegraph"
	"github.com/sattvalabs/wisdomd/internal/wisdom"
)

// SQLite is the durable content store.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite creates or opens the SQLite content store at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// The modernc driver only honors pragmas passed as _pragma parameters,
	// and applies them on every pooled connection. _txlock=immediate makes
	// the read-modify-write transactions take the write lock up front, so
	// concurrent writers queue on busy_timeout instead of failing with
	// SQLITE_BUSY on lock upgrade.
	dsn := path + "?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// OpenSQLiteMemory creates an in-memory SQLite store (useful for testing).
func OpenSQLiteMemory() (*SQLite, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	// A single connection so every statement sees the same in-memory DB.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// schema contains the full store schema. New tables are added here.
const schema = `
CREATE TABLE IF NOT EXISTS atoms (
    id TEXT PRIMARY KEY,
    content_hash TEXT NOT NULL,
    category TEXT NOT NULL,
    content TEXT NOT NULL,
    mood TEXT NOT NULL DEFAULT '',
    topic TEXT NOT NULL DEFAULT '',
    phase TEXT NOT NULL DEFAULT '',
    verse_ref TEXT NOT NULL DEFAULT '',
    source_ref TEXT NOT NULL DEFAULT '',
    positive_feedback INTEGER NOT NULL DEFAULT 0,
    negative_feedback INTEGER NOT NULL DEFAULT 0,
    usage_count INTEGER NOT NULL DEFAULT 0,
    deleted INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_atoms_hash ON atoms(content_hash) WHERE deleted = 0;
CREATE INDEX IF NOT EXISTS idx_atoms_situation ON atoms(mood, topic, phase, category);

CREATE TABLE IF NOT EXISTS edges (
    verse_ref TEXT NOT NULL,
    mood TEXT NOT NULL,
    topic TEXT NOT NULL,
    weight REAL NOT NULL,
    confidence REAL NOT NULL,
    times_shown INTEGER NOT NULL DEFAULT 0,
    positive_signals INTEGER NOT NULL DEFAULT 0,
    negative_signals INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (verse_ref, mood, topic)
);

CREATE INDEX IF NOT EXISTS idx_edges_situation ON edges(mood, topic);
CREATE INDEX IF NOT EXISTS idx_edges_updated ON edges(updated_at);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    phase TEXT NOT NULL,
    turn_count INTEGER NOT NULL DEFAULT 0,
    turns_in_phase INTEGER NOT NULL DEFAULT 0,
    self_sufficient_turns INTEGER NOT NULL DEFAULT 0,
    used_verse_refs TEXT NOT NULL DEFAULT '[]',
    used_atom_ids TEXT NOT NULL DEFAULT '[]',
    closed INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_open ON sessions(session_id, closed);

CREATE TABLE IF NOT EXISTS templates (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    slots TEXT NOT NULL,
    phase TEXT NOT NULL,
    mood TEXT NOT NULL DEFAULT '',
    topic TEXT NOT NULL DEFAULT '',
    success_count INTEGER NOT NULL DEFAULT 0,
    failure_count INTEGER NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_templates_match ON templates(phase, mood, topic, is_active);
`

const timeLayout = time.RFC3339Nano

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- wisdom.AtomStore ---

func (s *SQLite) CreateAtom(ctx context.Context, atom *wisdom.Atom) error {
	if atom.ID == "" {
		atom.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO atoms (id, content_hash, category, content, mood, topic, phase,
			verse_ref, source_ref, positive_feedback, negative_feedback,
			usage_count, deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		atom.ID, atom.ContentHash, string(atom.Category), atom.Content,
		atom.Mood, atom.Topic, string(atom.Phase), atom.VerseRef, atom.SourceRef,
		atom.PositiveFeedback, atom.NegativeFeedback, atom.UsageCount,
		boolInt(atom.Deleted), fmtTime(atom.CreatedAt), fmtTime(atom.UpdatedAt))
	if isUniqueViolation(err) {
		// The unique hash index is the concurrency control: a lost insert
		// race means the content is already learned.
		return wisdom.ErrDuplicateContent
	}
	if err != nil {
		return fmt.Errorf("inserting atom: %w", err)
	}
	return nil
}

const atomColumns = `id, content_hash, category, content, mood, topic, phase,
	verse_ref, source_ref, positive_feedback, negative_feedback, usage_count,
	deleted, created_at, updated_at`

func scanAtom(row interface{ Scan(...any) error }) (*wisdom.Atom, error) {
	var a wisdom.Atom
	var category, phase, createdAt, updatedAt string
	var deleted int
	err := row.Scan(&a.ID, &a.ContentHash, &category, &a.Content, &a.Mood,
		&a.Topic, &phase, &a.VerseRef, &a.SourceRef, &a.PositiveFeedback,
		&a.NegativeFeedback, &a.UsageCount, &deleted, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	a.Category = wisdom.Category(category)
	a.Phase = flow.Phase(phase)
	a.Deleted = deleted != 0
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

func (s *SQLite) GetAtomByHash(ctx context.Context, hash string) (*wisdom.Atom, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+atomColumns+` FROM atoms WHERE content_hash = ? AND deleted = 0`, hash)
	atom, err := scanAtom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wisdom.ErrAtomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying atom by hash: %w", err)
	}
	return atom, nil
}

func (s *SQLite) GetAtom(ctx context.Context, id string) (*wisdom.Atom, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+atomColumns+` FROM atoms WHERE id = ?`, id)
	atom, err := scanAtom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wisdom.ErrAtomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying atom: %w", err)
	}
	return atom, nil
}

func (s *SQLite) ListAtoms(ctx context.Context, filter wisdom.AtomFilter) ([]wisdom.Atom, error) {
	query := `SELECT ` + atomColumns + ` FROM atoms WHERE deleted = 0`
	var args []any

	if filter.Mood != "" {
		query += ` AND mood = ?`
		args = append(args, filter.Mood)
	}
	if filter.Topic != "" {
		query += ` AND topic = ?`
		args = append(args, filter.Topic)
	}
	if filter.Phase != "" {
		query += ` AND phase = ?`
		args = append(args, string(filter.Phase))
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(filter.Category))
	}
	if len(filter.ExcludeIDs) > 0 {
		query += ` AND id NOT IN (?` + strings.Repeat(",?", len(filter.ExcludeIDs)-1) + `)`
		for _, id := range filter.ExcludeIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing atoms: %w", err)
	}
	defer rows.Close()

	var result []wisdom.Atom
	for rows.Next() {
		atom, err := scanAtom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning atom: %w", err)
		}
		result = append(result, *atom)
	}
	return result, rows.Err()
}

func (s *SQLite) RecordAtomUsage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE atoms SET usage_count = usage_count + 1, updated_at = ? WHERE id = ?`,
		fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("recording atom usage: %w", err)
	}
	return requireRow(res, wisdom.ErrAtomNotFound)
}

func (s *SQLite) RecordAtomFeedback(ctx context.Context, id string, positive bool) error {
	column := "negative_feedback"
	if positive {
		column = "positive_feedback"
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE atoms SET `+column+` = `+column+` + 1, updated_at = ? WHERE id = ?`,
		fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("recording atom feedback: %w", err)
	}
	return requireRow(res, wisdom.ErrAtomNotFound)
}

func (s *SQLite) CountAtomsByCategory(ctx context.Context) (map[wisdom.Category]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM atoms WHERE deleted = 0 GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("counting atoms: %w", err)
	}
	defer rows.Close()

	counts := make(map[wisdom.Category]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scanning atom count: %w", err)
		}
		counts[wisdom.Category(category)] = count
	}
	return counts, rows.Err()
}

// --- versegraph.EdgeStore ---

const edgeColumns = `verse_ref, mood, topic, weight, confidence, times_shown,
	positive_signals, negative_signals, created_at, updated_at`

func scanEdge(row interface{ Scan(...any) error }) (*versegraph.Edge, error) {
	var e versegraph.Edge
	var createdAt, updatedAt string
	err := row.Scan(&e.VerseRef, &e.Mood, &e.Topic, &e.Weight, &e.Confidence,
		&e.TimesShown, &e.PositiveSignals, &e.NegativeSignals, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

func (s *SQLite) GetEdge(ctx context.Context, ref, mood, topic string) (*versegraph.Edge, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+edgeColumns+` FROM edges WHERE verse_ref = ? AND mood = ? AND topic = ?`,
		ref, mood, topic)
	edge, err := scanEdge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, versegraph.ErrEdgeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying edge: %w", err)
	}
	return edge, nil
}

// UpdateEdge is a read-modify-write transaction scoped to one edge row.
// Concurrent signals on the same triple serialize on the transaction, so
// counter increments and the recomputed weight/confidence commit together.
func (s *SQLite) UpdateEdge(ctx context.Context, ref, mood, topic string, seed versegraph.Edge, mutate func(*versegraph.Edge) error) (*versegraph.Edge, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning edge transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+edgeColumns+` FROM edges WHERE verse_ref = ? AND mood = ? AND topic = ?`,
		ref, mood, topic)
	edge, err := scanEdge(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		now := time.Now().UTC()
		created := seed
		created.VerseRef = ref
		created.Mood = mood
		created.Topic = topic
		created.CreatedAt = now
		created.UpdatedAt = now
		edge = &created
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO edges (`+edgeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			edge.VerseRef, edge.Mood, edge.Topic, edge.Weight, edge.Confidence,
			edge.TimesShown, edge.PositiveSignals, edge.NegativeSignals,
			fmtTime(edge.CreatedAt), fmtTime(edge.UpdatedAt)); err != nil {
			if isUniqueViolation(err) {
				// Lost the get-or-create race; the row exists now.
				tx.Rollback()
				return s.UpdateEdge(ctx, ref, mood, topic, seed, mutate)
			}
			return nil, fmt.Errorf("inserting edge: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("querying edge: %w", err)
	}

	if err := mutate(edge); err != nil {
		return nil, err
	}
	edge.UpdatedAt = time.Now().UTC()

	if _, err := tx.ExecContext(ctx, `
		UPDATE edges SET weight = ?, confidence = ?, times_shown = ?,
			positive_signals = ?, negative_signals = ?, updated_at = ?
		WHERE verse_ref = ? AND mood = ? AND topic = ?`,
		edge.Weight, edge.Confidence, edge.TimesShown,
		edge.PositiveSignals, edge.NegativeSignals, fmtTime(edge.UpdatedAt),
		ref, mood, topic); err != nil {
		return nil, fmt.Errorf("updating edge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing edge transaction: %w", err)
	}
	return edge, nil
}

func (s *SQLite) ListEdges(ctx context.Context, filter versegraph.EdgeFilter) ([]versegraph.Edge, error) {
	query := `SELECT ` + edgeColumns + ` FROM edges WHERE 1=1`
	var args []any

	if filter.VerseRef != "" {
		query += ` AND verse_ref = ?`
		args = append(args, filter.VerseRef)
	}
	if filter.Mood != "" {
		query += ` AND mood = ?`
		args = append(args, filter.Mood)
	}
	if filter.Topic != "" {
		query += ` AND topic = ?`
		args = append(args, filter.Topic)
	}
	if filter.MinConfidence > 0 {
		query += ` AND confidence >= ?`
		args = append(args, filter.MinConfidence)
	}
	if !filter.UpdatedBefore.IsZero() {
		query += ` AND updated_at < ?`
		args = append(args, fmtTime(filter.UpdatedBefore))
	}
	query += ` ORDER BY verse_ref, mood, topic`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing edges: %w", err)
	}
	defer rows.Close()

	var result []versegraph.Edge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		result = append(result, *edge)
	}
	return result, rows.Err()
}

// --- flow.SessionStore ---

const sessionColumns = `id, session_id, phase, turn_count, turns_in_phase,
	self_sufficient_turns, used_verse_refs, used_atom_ids, closed, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*flow.Snapshot, error) {
	var snap flow.Snapshot
	var phase, verseRefs, atomIDs, createdAt, updatedAt string
	var closed int
	err := row.Scan(&snap.ID, &snap.SessionID, &phase, &snap.TurnCount,
		&snap.TurnsInPhase, &snap.SelfSufficientTurns, &verseRefs, &atomIDs,
		&closed, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	snap.Phase = flow.Phase(phase)
	snap.Closed = closed != 0
	snap.CreatedAt = parseTime(createdAt)
	snap.UpdatedAt = parseTime(updatedAt)
	if err := json.Unmarshal([]byte(verseRefs), &snap.UsedVerseRefs); err != nil {
		return nil, fmt.Errorf("decoding used verse refs: %w", err)
	}
	if err := json.Unmarshal([]byte(atomIDs), &snap.UsedAtomIDs); err != nil {
		return nil, fmt.Errorf("decoding used atom ids: %w", err)
	}
	return &snap, nil
}

func (s *SQLite) GetOpenSession(ctx context.Context, sessionID string) (*flow.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE session_id = ? AND closed = 0 ORDER BY created_at DESC LIMIT 1`,
		sessionID)
	snap, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, flow.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return snap, nil
}

func (s *SQLite) PutSession(ctx context.Context, snap *flow.Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	verseRefs, err := json.Marshal(orEmpty(snap.UsedVerseRefs))
	if err != nil {
		return fmt.Errorf("encoding used verse refs: %w", err)
	}
	atomIDs, err := json.Marshal(orEmpty(snap.UsedAtomIDs))
	if err != nil {
		return fmt.Errorf("encoding used atom ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			turn_count = excluded.turn_count,
			turns_in_phase = excluded.turns_in_phase,
			self_sufficient_turns = excluded.self_sufficient_turns,
			used_verse_refs = excluded.used_verse_refs,
			used_atom_ids = excluded.used_atom_ids,
			closed = excluded.closed,
			updated_at = excluded.updated_at`,
		snap.ID, snap.SessionID, string(snap.Phase), snap.TurnCount,
		snap.TurnsInPhase, snap.SelfSufficientTurns, string(verseRefs),
		string(atomIDs), boolInt(snap.Closed), fmtTime(snap.CreatedAt),
		fmtTime(snap.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

func (s *SQLite) ListSessions(ctx context.Context, filter flow.SessionFilter) ([]flow.Snapshot, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1=1`
	var args []any
	if filter.Closed != nil {
		query += ` AND closed = ?`
		args = append(args, boolInt(*filter.Closed))
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var result []flow.Snapshot
	for rows.Next() {
		snap, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		result = append(result, *snap)
	}
	return result, rows.Err()
}

// --- compose.TemplateStore ---

const templateColumns = `id, name, slots, phase, mood, topic, success_count,
	failure_count, is_active, created_at, updated_at`

func scanTemplate(row interface{ Scan(...any) error }) (*compose.Template, error) {
	var t compose.Template
	var slots, phase, createdAt, updatedAt string
	var active int
	err := row.Scan(&t.ID, &t.Name, &slots, &phase, &t.Mood, &t.Topic,
		&t.SuccessCount, &t.FailureCount, &active, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.Phase = flow.Phase(phase)
	t.IsActive = active != 0
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	if err := json.Unmarshal([]byte(slots), &t.Slots); err != nil {
		return nil, fmt.Errorf("decoding template slots: %w", err)
	}
	return &t, nil
}

func (s *SQLite) CreateTemplate(ctx context.Context, tmpl *compose.Template) error {
	if len(tmpl.Slots) == 0 {
		return compose.ErrNoSlots
	}
	if tmpl.ID == "" {
		tmpl.ID = uuid.NewString()
	}
	slots, err := json.Marshal(tmpl.Slots)
	if err != nil {
		return fmt.Errorf("encoding template slots: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tmpl.ID, tmpl.Name, string(slots), string(tmpl.Phase), tmpl.Mood,
		tmpl.Topic, tmpl.SuccessCount, tmpl.FailureCount, boolInt(tmpl.IsActive),
		fmtTime(tmpl.CreatedAt), fmtTime(tmpl.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting template: %w", err)
	}
	return nil
}

func (s *SQLite) GetTemplate(ctx context.Context, id string) (*compose.Template, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	tmpl, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, compose.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying template: %w", err)
	}
	return tmpl, nil
}

func (s *SQLite) ListTemplates(ctx context.Context, filter compose.TemplateFilter) ([]compose.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE 1=1`
	var args []any
	if filter.Phase != "" {
		query += ` AND phase = ?`
		args = append(args, string(filter.Phase))
	}
	if filter.Mood != "" {
		query += ` AND mood = ?`
		args = append(args, filter.Mood)
	}
	if filter.Topic != "" {
		query += ` AND topic = ?`
		args = append(args, filter.Topic)
	}
	if filter.ActiveOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	defer rows.Close()

	var result []compose.Template
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning template: %w", err)
		}
		result = append(result, *tmpl)
	}
	return result, rows.Err()
}

func (s *SQLite) UpdateTemplate(ctx context.Context, id string, mutate func(*compose.Template) error) (*compose.Template, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning template transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	tmpl, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, compose.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying template: %w", err)
	}

	if err := mutate(tmpl); err != nil {
		return nil, err
	}
	tmpl.UpdatedAt = time.Now().UTC()

	if _, err := tx.ExecContext(ctx, `
		UPDATE templates SET success_count = ?, failure_count = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		tmpl.SuccessCount, tmpl.FailureCount, boolInt(tmpl.IsActive),
		fmtTime(tmpl.UpdatedAt), id); err != nil {
		return nil, fmt.Errorf("updating template: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing template transaction: %w", err)
	}
	return tmpl, nil
}

func (s *SQLite) CountActiveTemplates(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM templates WHERE is_active = 1`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting templates: %w", err)
	}
	return count, nil
}

// --- helpers ---

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
