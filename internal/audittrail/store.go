package audittrail

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store persists audit events to a local SQLite file, chaining each new
// event's hash to the previous one.
type Store struct {
	db *sql.DB

	hashMu   sync.Mutex
	lastHash string
}

// Open creates (if needed) and opens the SQLite database at path, rebuilding
// the in-memory lastHash from whatever is already on disk.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "audittrail.db"
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audittrail directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audittrail database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audittrail schema: %w", err)
	}

	s := &Store{db: db, lastHash: GenesisHash}
	if err := s.loadLastHash(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load last hash: %w", err)
	}
	return s, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS audit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT UNIQUE NOT NULL,
		timestamp TEXT NOT NULL,
		kind TEXT NOT NULL,
		trace_id TEXT,
		agent_id TEXT NOT NULL,
		plugin_id TEXT NOT NULL,
		resource TEXT,
		resource_id TEXT,
		capability_id TEXT,
		action TEXT,
		phase TEXT,
		view TEXT,
		status_code INTEGER NOT NULL,
		error_kind TEXT,
		duration_ms INTEGER NOT NULL,
		prev_hash TEXT,
		event_hash TEXT,
		raw_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_events_trace ON audit_events(trace_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_agent ON audit_events(agent_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_plugin ON audit_events(plugin_id);
	`)
	return err
}

func (s *Store) loadLastHash() error {
	var hash sql.NullString
	err := s.db.QueryRow(`SELECT event_hash FROM audit_events ORDER BY id DESC LIMIT 1`).Scan(&hash)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	if hash.Valid && hash.String != "" {
		s.lastHash = hash.String
	}
	return nil
}

// Record assigns an event ID, timestamp and chain hash if not already set,
// then inserts it. It holds the chain mutex across both hash computation and
// the write so two concurrent Record calls cannot both observe the same
// lastHash.
func (s *Store) Record(ctx context.Context, e *Event) error {
	if e.EventID == "" {
		e.EventID = "evt_" + uuid.New().String()[:12]
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	s.hashMu.Lock()
	defer s.hashMu.Unlock()

	e.PrevHash = s.lastHash
	e.EventHash = computeEventHash(e)

	rawJSON, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			event_id, timestamp, kind, trace_id, agent_id, plugin_id,
			resource, resource_id, capability_id, action, phase, view,
			status_code, error_kind, duration_ms, prev_hash, event_hash, raw_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.EventID, e.Timestamp.Format(time.RFC3339Nano), string(e.Kind), e.TraceID, e.AgentID, e.PluginID,
		e.Resource, e.ResourceID, e.CapabilityID, e.Action, e.Phase, e.View,
		e.StatusCode, e.ErrorKind, e.DurationMS, e.PrevHash, e.EventHash, string(rawJSON),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	s.lastHash = e.EventHash
	return nil
}

// QueryOptions filters a trail read.
type QueryOptions struct {
	TraceID  string
	AgentID  string
	PluginID string
	Limit    int
}

// Query returns matching events, most recent first.
func (s *Store) Query(ctx context.Context, opts QueryOptions) ([]Event, error) {
	query := `SELECT raw_json FROM audit_events WHERE 1=1`
	var args []any
	if opts.TraceID != "" {
		query += ` AND trace_id = ?`
		args = append(args, opts.TraceID)
	}
	if opts.AgentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, opts.AgentID)
	}
	if opts.PluginID != "" {
		query += ` AND plugin_id = ?`
		args = append(args, opts.PluginID)
	}
	query += ` ORDER BY id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var rawJSON string
		if err := rows.Scan(&rawJSON); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		var e Event
		if err := json.Unmarshal([]byte(rawJSON), &e); err != nil {
			return nil, fmt.Errorf("unmarshal audit event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// VerifyIntegrity walks every event in insertion order and checks the hash
// chain end to end.
func (s *Store) VerifyIntegrity(ctx context.Context) (ChainStatus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT raw_json FROM audit_events ORDER BY id ASC`)
	if err != nil {
		return ChainStatus{}, fmt.Errorf("query audit events for verify: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var rawJSON string
		if err := rows.Scan(&rawJSON); err != nil {
			return ChainStatus{}, fmt.Errorf("scan audit event: %w", err)
		}
		var e Event
		if err := json.Unmarshal([]byte(rawJSON), &e); err != nil {
			return ChainStatus{}, fmt.Errorf("unmarshal audit event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return ChainStatus{}, err
	}
	return verifyChainStatus(events), nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
