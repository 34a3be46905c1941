// Package store implements the sqlite-backed persistence layer (§6
// "Persistence layout"): append-only tables for runs, bots, bot state
// snapshots, subgoal attempts, LLM planner calls, lock events, and
// incidents. Grounded on the teacher's internal/store/local_core.go
// sql.Open("sqlite3", path) pattern, trimmed to the append-only relational
// shape this domain needs (no embeddings, no vector extension).
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fleetcore/agentfleet/internal/lockmgr"
	"github.com/fleetcore/agentfleet/internal/logging"
	"github.com/fleetcore/agentfleet/internal/subgoal"
	"github.com/fleetcore/agentfleet/internal/worldstate"
)

// Store is the sqlite-backed persistence adapter. Safe for concurrent use;
// writes are serialized behind a mutex since sqlite's single-writer model
// does not benefit from a connection pool here (db.SetMaxOpenConns(1)).
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// Open creates or opens the sqlite database at path, running the schema
// DDL if the tables don't yet exist.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("store: creating directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set journal_mode=WAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: schema init: %w", err)
	}
	logging.Store("opened store at %s", path)
	return s, nil
}

func (s *Store) initialize() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	ended_at INTEGER,
	bot_count INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS bots (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS bot_state (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL,
	snapshot_json TEXT NOT NULL,
	recorded_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS subgoal_attempts (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	subgoal_name TEXT NOT NULL,
	result_json TEXT NOT NULL,
	recorded_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS llm_calls (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	status TEXT NOT NULL,
	tokens_in INTEGER NOT NULL,
	tokens_out INTEGER NOT NULL,
	notes_json TEXT,
	recorded_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS locks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	resource_key TEXT NOT NULL,
	owner_agent_id TEXT NOT NULL,
	action TEXT NOT NULL,
	details_json TEXT,
	recorded_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS incidents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL,
	category TEXT NOT NULL,
	detail TEXT,
	occurred_at INTEGER NOT NULL
);
`)
	return err
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRunStart inserts a new runs row.
func (s *Store) RecordRunStart(runID string, startedAtMs int64, botCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO runs (id, started_at, bot_count) VALUES (?, ?, ?)`, runID, startedAtMs, botCount)
	if err != nil {
		logging.StoreError("record run start failed: %v", err)
	}
	return err
}

// RecordRunEnd marks a runs row ended.
func (s *Store) RecordRunEnd(runID string, endedAtMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE runs SET ended_at = ? WHERE id = ?`, endedAtMs, runID)
	return err
}

// RecordBot inserts a bots row linking an agent to a run.
func (s *Store) RecordBot(botID, runID, agentID string, createdAtMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO bots (id, run_id, agent_id, created_at) VALUES (?, ?, ?, ?)`, botID, runID, agentID, createdAtMs)
	return err
}

// RecordSnapshot persists a Snapshot as JSON, per the bot_state(snapshot_json)
// layout.
func (s *Store) RecordSnapshot(snap worldstate.Snapshot, atMs int64) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: marshaling snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`INSERT INTO bot_state (agent_id, snapshot_json, recorded_at) VALUES (?, ?, ?)`,
		snap.AgentID, string(data), atMs)
	if err != nil {
		logging.StoreError("record snapshot failed: %v", err)
	}
	return err
}

// Attempt is one subgoal_attempts row: a completed HistoryEntry paired with
// its raw SkillResult so incident review can see the structured failure.
type Attempt struct {
	ID      string
	AgentID string
	Entry   worldstate.HistoryEntry
	Result  subgoal.SkillResult
}

// RecordAttempt persists a subgoal attempt.
func (s *Store) RecordAttempt(a Attempt, atMs int64) error {
	payload := map[string]interface{}{"entry": a.Entry, "result": a.Result}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("store: marshaling attempt: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`INSERT INTO subgoal_attempts (id, agent_id, subgoal_name, result_json, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.AgentID, string(a.Entry.SubgoalName), string(data), atMs)
	if err != nil {
		logging.StoreError("record attempt failed: %v", err)
	}
	return err
}

// LLMCall is one llm_calls row.
type LLMCall struct {
	ID        string
	AgentID   string
	Status    string
	TokensIn  int
	TokensOut int
	Notes     []string
}

// RecordLLMCall persists a planner call outcome.
func (s *Store) RecordLLMCall(c LLMCall, atMs int64) error {
	notesJSON, err := json.Marshal(c.Notes)
	if err != nil {
		return fmt.Errorf("store: marshaling notes: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`INSERT INTO llm_calls (id, agent_id, status, tokens_in, tokens_out, notes_json, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AgentID, c.Status, c.TokensIn, c.TokensOut, string(notesJSON), atMs)
	if err != nil {
		logging.StoreError("record llm call failed: %v", err)
	}
	return err
}

// RecordLockEvent implements lockmgr.Sink: every ACQUIRE/RELEASE/EXPIRE
// transition is persisted.
func (s *Store) RecordLockEvent(e lockmgr.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO locks (resource_key, owner_agent_id, action, recorded_at) VALUES (?, ?, ?, ?)`,
		e.Key, e.Owner, string(e.Action), e.AtMs)
	if err != nil {
		logging.StoreError("record lock event failed: %v", err)
	}
}

// IncidentCategory names one of the categories §7/SPEC_FULL.md's
// supplemented incident log recognizes.
type IncidentCategory string

const (
	IncidentSubgoalTimeout   IncidentCategory = "subgoal_timeout"
	IncidentIdleStall        IncidentCategory = "subgoal_idle_stall"
	IncidentStuckRecovery    IncidentCategory = "stuck_recovery"
	IncidentDeath            IncidentCategory = "death"
	IncidentKick             IncidentCategory = "kick"
	IncidentReconnectFailed  IncidentCategory = "reconnect_failed"
)

// RecordIncident persists an operational incident.
func (s *Store) RecordIncident(agentID string, category IncidentCategory, detail string, atMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO incidents (agent_id, category, detail, occurred_at) VALUES (?, ?, ?, ?)`,
		agentID, string(category), detail, atMs)
	if err != nil {
		logging.StoreError("record incident failed: %v", err)
	}
	return err
}

// LatestRun returns the most recently started run's id and bot count, for
// the `fleetctl status` command to find what it should poll.
func (s *Store) LatestRun() (runID string, botCount int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRow(`SELECT id, bot_count FROM runs ORDER BY started_at DESC LIMIT 1`)
	if err := row.Scan(&runID, &botCount); err != nil {
		return "", 0, err
	}
	return runID, botCount, nil
}

// BotStateRow is one agent's most recently persisted Snapshot.
type BotStateRow struct {
	AgentID    string
	Snapshot   worldstate.Snapshot
	RecordedAt int64
}

// LatestBotStates returns the most recent bot_state row for every agent_id
// that belongs to runID (read back through the bots table), for the status
// dashboard to render without needing a live connection to the running
// process.
func (s *Store) LatestBotStates(runID string) ([]BotStateRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
SELECT b.agent_id,
       (SELECT snapshot_json FROM bot_state bs WHERE bs.agent_id = b.agent_id ORDER BY bs.recorded_at DESC LIMIT 1),
       (SELECT recorded_at FROM bot_state bs WHERE bs.agent_id = b.agent_id ORDER BY bs.recorded_at DESC LIMIT 1)
FROM bots b WHERE b.run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BotStateRow
	for rows.Next() {
		var agentID string
		var snapJSON sql.NullString
		var recordedAt sql.NullInt64
		if err := rows.Scan(&agentID, &snapJSON, &recordedAt); err != nil {
			return nil, err
		}
		row := BotStateRow{AgentID: agentID}
		if snapJSON.Valid {
			var snap worldstate.Snapshot
			if err := json.Unmarshal([]byte(snapJSON.String), &snap); err == nil {
				row.Snapshot = snap
			}
		}
		if recordedAt.Valid {
			row.RecordedAt = recordedAt.Int64
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
