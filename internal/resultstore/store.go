// Package resultstore indexes analysis reports in SQLite so rankings and
// per-category signals can be queried across runs.
package resultstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/23skdu/longbow-neurons/internal/analysis"
	"github.com/23skdu/longbow-neurons/internal/faults"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("result store closed")

// ErrNotFound is returned when a run has no stored report.
var ErrNotFound = errors.New("run not found")

type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// RunInfo is one row of the runs table.
type RunInfo struct {
	RunID      string
	Created    time.Time
	Categories []string
	Components int
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, faults.Persistence("open", "create directory").With("path", path).Wrap(err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, faults.Persistence("open", "open database").With("path", path).Wrap(err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			categories TEXT NOT NULL,
			components INTEGER NOT NULL,
			report BLOB NOT NULL
		);

		CREATE TABLE IF NOT EXISTS importance (
			run_id TEXT NOT NULL,
			component TEXT NOT NULL,
			category TEXT NOT NULL,
			rank INTEGER NOT NULL,
			neuron INTEGER NOT NULL,
			score REAL NOT NULL,
			PRIMARY KEY (run_id, component, category, rank)
		);

		CREATE TABLE IF NOT EXISTS signals (
			run_id TEXT NOT NULL,
			category TEXT NOT NULL,
			found INTEGER NOT NULL,
			component TEXT NOT NULL,
			neuron INTEGER NOT NULL,
			score REAL NOT NULL,
			PRIMARY KEY (run_id, category)
		);

		CREATE INDEX IF NOT EXISTS idx_importance_neuron ON importance(component, neuron);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return faults.Persistence("open", "create schema").Wrap(err)
	}
	return nil
}

// SaveReport stores rep, replacing any earlier report for the same run.
func (s *Store) SaveReport(ctx context.Context, rep *analysis.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	blob, err := json.Marshal(rep)
	if err != nil {
		return faults.Persistence("save_report", "encode report").Wrap(err)
	}
	cats, err := json.Marshal(rep.Categories)
	if err != nil {
		return faults.Persistence("save_report", "encode categories").Wrap(err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return faults.Persistence("save_report", "begin").Wrap(err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"runs", "importance", "signals"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, rep.RunID); err != nil {
			return faults.Persistence("save_report", "clear %s", table).Wrap(err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, created_at, categories, components, report)
		VALUES (?, ?, ?, ?, ?)
	`, rep.RunID, rep.Created.UnixNano(), string(cats), len(rep.Components), blob); err != nil {
		return faults.Persistence("save_report", "insert run").With("run", rep.RunID).Wrap(err)
	}

	imp, err := tx.PrepareContext(ctx, `
		INSERT INTO importance (run_id, component, category, rank, neuron, score)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return faults.Persistence("save_report", "prepare importance").Wrap(err)
	}
	defer func() { _ = imp.Close() }()
	for _, cr := range rep.Components {
		for cat, neurons := range cr.Importance {
			for rank, n := range neurons {
				if _, err := imp.ExecContext(ctx, rep.RunID, cr.Component, cat, rank, n.Index, n.Score); err != nil {
					return faults.Persistence("save_report", "insert importance").With("component", cr.Component).Wrap(err)
				}
			}
		}
	}

	for _, sig := range rep.Summary {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO signals (run_id, category, found, component, neuron, score)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rep.RunID, sig.Category, sig.Found, sig.Component, sig.Neuron, sig.Score); err != nil {
			return faults.Persistence("save_report", "insert signal").With("category", sig.Category).Wrap(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return faults.Persistence("save_report", "commit").Wrap(err)
	}
	return nil
}

// TopNeurons returns the stored ranking for (run, category, component) in
// rank order.
func (s *Store) TopNeurons(ctx context.Context, runID, category, component string) ([]analysis.Neuron, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.topNeurons(ctx, runID, category, component, -1)
}

func (s *Store) topNeurons(ctx context.Context, runID, category, component string, limit int) ([]analysis.Neuron, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT neuron, score FROM importance
		WHERE run_id = ? AND category = ? AND component = ?
		ORDER BY rank LIMIT ?
	`, runID, category, component, limit)
	if err != nil {
		return nil, faults.Persistence("top_neurons", "query").Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var out []analysis.Neuron
	for rows.Next() {
		var n analysis.Neuron
		if err := rows.Scan(&n.Index, &n.Score); err != nil {
			return nil, faults.Persistence("top_neurons", "scan").Wrap(err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Persistence("top_neurons", "iterate").Wrap(err)
	}
	return out, nil
}

// Signals returns the per-category summary of a run, in category order.
func (s *Store) Signals(ctx context.Context, runID string) ([]analysis.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var cats string
	err := s.db.QueryRowContext(ctx, `SELECT categories FROM runs WHERE run_id = ?`, runID).Scan(&cats)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, faults.Persistence("signals", "query run").Wrap(err)
	}
	var order []string
	if err := json.Unmarshal([]byte(cats), &order); err != nil {
		return nil, faults.Persistence("signals", "decode categories").Wrap(err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT category, found, component, neuron, score FROM signals WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, faults.Persistence("signals", "query").Wrap(err)
	}
	byCat := make(map[string]analysis.Signal)
	for rows.Next() {
		var sig analysis.Signal
		if err := rows.Scan(&sig.Category, &sig.Found, &sig.Component, &sig.Neuron, &sig.Score); err != nil {
			_ = rows.Close()
			return nil, faults.Persistence("signals", "scan").Wrap(err)
		}
		byCat[sig.Category] = sig
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, faults.Persistence("signals", "iterate").Wrap(err)
	}

	out := make([]analysis.Signal, 0, len(order))
	for _, cat := range order {
		sig, ok := byCat[cat]
		if !ok {
			continue
		}
		if sig.Found {
			top, err := s.topNeurons(ctx, runID, cat, sig.Component, 3)
			if err != nil {
				return nil, err
			}
			sig.Top = top
		}
		out = append(out, sig)
	}
	return out, nil
}

// Report returns the full stored report of a run.
func (s *Store) Report(ctx context.Context, runID string) (*analysis.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT report FROM runs WHERE run_id = ?`, runID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, faults.Persistence("report", "query").Wrap(err)
	}
	var rep analysis.Report
	if err := json.Unmarshal(blob, &rep); err != nil {
		return nil, faults.Persistence("report", "decode").Wrap(err)
	}
	return &rep, nil
}

// Runs lists stored runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, created_at, categories, components FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, faults.Persistence("runs", "query").Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunInfo
	for rows.Next() {
		var (
			ri      RunInfo
			created int64
			cats    string
		)
		if err := rows.Scan(&ri.RunID, &created, &cats, &ri.Components); err != nil {
			return nil, faults.Persistence("runs", "scan").Wrap(err)
		}
		ri.Created = time.Unix(0, created).UTC()
		if err := json.Unmarshal([]byte(cats), &ri.Categories); err != nil {
			return nil, faults.Persistence("runs", "decode categories").With("run_id", ri.RunID).Wrap(err)
		}
		out = append(out, ri)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Persistence("runs", "iterate").Wrap(err)
	}
	return out, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
