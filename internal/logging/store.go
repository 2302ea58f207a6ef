package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id      TEXT PRIMARY KEY,
	label           TEXT,
	created_at      TEXT NOT NULL,
	saved_at        TEXT NOT NULL,
	loggables_json  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS state_records (
	session_id    TEXT NOT NULL,
	state_number  INTEGER NOT NULL,
	key           TEXT NOT NULL,
	kind          TEXT NOT NULL,
	value_text    TEXT,
	value_num     REAL,
	PRIMARY KEY (session_id, state_number, key),
	FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS continuous_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT NOT NULL,
	state_number  INTEGER NOT NULL,
	key           TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	kind          TEXT NOT NULL,
	value_text    TEXT,
	value_num     REAL,
	FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_events_session ON continuous_events(session_id, state_number);
`

// #endregion schema

// #region store-struct
// Store persists experiment logs in SQLite, one session per run.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region save-session
// SaveSession writes sess, replacing any rows previously saved under its ID.
func (s *Store) SaveSession(sess *Session) error {
	logJSON, err := json.Marshal(sess.Loggables)
	if err != nil {
		return fmt.Errorf("marshal loggables: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM continuous_events WHERE session_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM state_records WHERE session_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO sessions (session_id, label, created_at, saved_at, loggables_json)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   label = excluded.label, saved_at = excluded.saved_at, loggables_json = excluded.loggables_json`,
		sess.ID, nullIfEmpty(sess.Label), sess.CreatedAt.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano), string(logJSON),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	recStmt, err := tx.Prepare(
		`INSERT INTO state_records (session_id, state_number, key, kind, value_text, value_num)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare records: %w", err)
	}
	defer recStmt.Close()

	for _, rec := range sess.Records {
		for key, v := range rec.Fields {
			if v == nil {
				continue
			}
			enc, err := encodeValue(v)
			if err != nil {
				return fmt.Errorf("state %d key %q: %w", rec.StateNumber, key, err)
			}
			if _, err := recStmt.Exec(sess.ID, rec.StateNumber, key, enc.kind, enc.text, enc.num); err != nil {
				return fmt.Errorf("insert record: %w", err)
			}
		}
	}

	evStmt, err := tx.Prepare(
		`INSERT INTO continuous_events (session_id, state_number, key, seq, kind, value_text, value_num)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare events: %w", err)
	}
	defer evStmt.Close()

	for _, ev := range sess.Events {
		enc, err := encodeValue(ev.Value)
		if err != nil {
			return fmt.Errorf("state %d event %q: %w", ev.StateNumber, ev.Key, err)
		}
		if _, err := evStmt.Exec(sess.ID, ev.StateNumber, ev.Key, ev.Seq, enc.kind, enc.text, enc.num); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// #endregion save-session

// #region list-sessions
// ListSessions returns the most recently saved sessions with row counts.
func (s *Store) ListSessions(limit int) ([]SessionInfo, error) {
	rows, err := s.db.Query(
		`SELECT s.session_id, s.label, s.created_at,
		        (SELECT COUNT(DISTINCT state_number) FROM state_records r WHERE r.session_id = s.session_id),
		        (SELECT COUNT(*) FROM continuous_events e WHERE e.session_id = s.session_id)
		 FROM sessions s ORDER BY s.saved_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var label sql.NullString
		var createdStr string
		if err := rows.Scan(&info.ID, &label, &createdStr, &info.States, &info.Events); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if label.Valid {
			info.Label = label.String
		}
		info.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, info)
	}
	return out, rows.Err()
}

// LatestSession returns the ID of the most recently saved session.
func (s *Store) LatestSession() (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT session_id FROM sessions ORDER BY saved_at DESC LIMIT 1`).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("latest session: %w", err)
	}
	return id, nil
}

// #endregion list-sessions

// #region load-session
// LoadSession reads a full session back. Integer values come back as int64 and
// fields never logged as nil.
func (s *Store) LoadSession(id string) (*Session, error) {
	sess := &Session{ID: id}
	var label sql.NullString
	var createdStr, logJSON string
	err := s.db.QueryRow(
		`SELECT label, created_at, loggables_json FROM sessions WHERE session_id = ?`, id,
	).Scan(&label, &createdStr, &logJSON)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	if label.Valid {
		sess.Label = label.String
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	if err := json.Unmarshal([]byte(logJSON), &sess.Loggables); err != nil {
		return nil, fmt.Errorf("unmarshal loggables: %w", err)
	}

	if err := s.loadRecords(sess); err != nil {
		return nil, err
	}
	if err := s.loadEvents(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) loadRecords(sess *Session) error {
	rows, err := s.db.Query(
		`SELECT state_number, key, kind, value_text FROM state_records
		 WHERE session_id = ? ORDER BY state_number`, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	byIndex := make(map[int]int)
	for rows.Next() {
		var idx int
		var key, kind string
		var text sql.NullString
		if err := rows.Scan(&idx, &key, &kind, &text); err != nil {
			return fmt.Errorf("scan record: %w", err)
		}
		v, err := decodeValue(kind, text)
		if err != nil {
			return fmt.Errorf("state %d key %q: %w", idx, key, err)
		}
		pos, ok := byIndex[idx]
		if !ok {
			fields := make(map[string]any, len(sess.Loggables.PerState))
			for _, k := range sess.Loggables.PerState {
				fields[k] = nil
			}
			sess.Records = append(sess.Records, Record{StateNumber: idx, Fields: fields})
			pos = len(sess.Records) - 1
			byIndex[idx] = pos
		}
		sess.Records[pos].Fields[key] = v
	}
	return rows.Err()
}

func (s *Store) loadEvents(sess *Session) error {
	rows, err := s.db.Query(
		`SELECT state_number, key, seq, kind, value_text FROM continuous_events
		 WHERE session_id = ? ORDER BY id`, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ev Event
		var kind string
		var text sql.NullString
		if err := rows.Scan(&ev.StateNumber, &ev.Key, &ev.Seq, &kind, &text); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		v, err := decodeValue(kind, text)
		if err != nil {
			return fmt.Errorf("state %d event %q: %w", ev.StateNumber, ev.Key, err)
		}
		ev.Value = v
		sess.Events = append(sess.Events, ev)
	}
	return rows.Err()
}

// #endregion load-session
