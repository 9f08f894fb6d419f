package healthstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"vmfleet/internal/lifecycle"
)

// Store persists VM health observations backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Record is the last persisted observation for one VM.
type Record struct {
	VMName       string
	State        lifecycle.VMState
	SSHReachable bool
	SSHFailures  int
	LastCheck    time.Time
	LastError    string
}

// Observation is one probe result to be folded into the VM's record.
type Observation struct {
	VMName       string
	State        lifecycle.VMState
	SSHReachable bool
	CheckedAt    time.Time
	Error        string
}

// Remediation is one healer attempt.
type Remediation struct {
	ID           int64
	VMName       string
	IncidentID   string
	Action       lifecycle.HealAction
	Success      bool
	Message      string
	FailureCount int
	CreatedAt    time.Time
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Open initializes or connects to the health database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("health database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// RecordObservation stores a probe result and returns the VM's updated
// consecutive SSH failure count: zero when reachable, previous plus one
// otherwise.
func (s *Store) RecordObservation(ctx context.Context, obs Observation) (int, error) {
	if strings.TrimSpace(obs.VMName) == "" {
		return 0, errors.New("observation requires a vm name")
	}
	checked := obs.CheckedAt
	if checked.IsZero() {
		checked = time.Now()
	}
	state := obs.State
	if state == "" {
		state = lifecycle.StateUnknown
	}

	var failures int
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`INSERT INTO vm_health (vm_name, state, ssh_reachable, ssh_failures, last_check, last_error)
             VALUES (?, ?, ?, CASE WHEN ? THEN 0 ELSE 1 END, ?, ?)
             ON CONFLICT(vm_name) DO UPDATE SET
                 state = excluded.state,
                 ssh_reachable = excluded.ssh_reachable,
                 ssh_failures = CASE WHEN excluded.ssh_reachable THEN 0 ELSE vm_health.ssh_failures + 1 END,
                 last_check = excluded.last_check,
                 last_error = excluded.last_error
             RETURNING ssh_failures`,
			obs.VMName,
			string(state),
			boolToInt(obs.SSHReachable),
			boolToInt(obs.SSHReachable),
			checked.UTC().Format(time.RFC3339Nano),
			nullableString(obs.Error),
		).Scan(&failures)
	})
	if err != nil {
		return 0, fmt.Errorf("record observation for %s: %w", obs.VMName, err)
	}
	return failures, nil
}

// ResetFailures zeroes the VM's consecutive failure counter.
func (s *Store) ResetFailures(ctx context.Context, vmName string) error {
	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE vm_health SET ssh_failures = 0 WHERE vm_name = ?`, vmName)
		return err
	})
	if err != nil {
		return fmt.Errorf("reset failures for %s: %w", vmName, err)
	}
	return nil
}

// Get returns the VM's record, or nil when it has never been observed.
func (s *Store) Get(ctx context.Context, vmName string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM vm_health WHERE vm_name = ?`, vmName)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get health for %s: %w", vmName, err)
	}
	return rec, nil
}

// List returns every VM record ordered by name.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM vm_health ORDER BY vm_name`)
	if err != nil {
		return nil, fmt.Errorf("list health: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan health: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// AppendRemediation journals one healer attempt.
func (s *Store) AppendRemediation(ctx context.Context, r Remediation) (int64, error) {
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	var id int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO remediations (vm_name, incident_id, action, success, message, failure_count, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.VMName,
			nullableString(r.IncidentID),
			string(r.Action),
			boolToInt(r.Success),
			nullableString(r.Message),
			r.FailureCount,
			created.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("append remediation for %s: %w", r.VMName, err)
	}
	return id, nil
}

// Remediations returns the newest journal entries for vmName (all VMs when
// empty), newest first. A non-positive limit returns everything.
func (s *Store) Remediations(ctx context.Context, vmName string, limit int) ([]Remediation, error) {
	query := `SELECT id, vm_name, incident_id, action, success, message, failure_count, created_at FROM remediations`
	var args []any
	if vmName != "" {
		query += ` WHERE vm_name = ?`
		args = append(args, vmName)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list remediations: %w", err)
	}
	defer rows.Close()

	var out []Remediation
	for rows.Next() {
		var (
			r          Remediation
			incident   sql.NullString
			action     string
			success    int
			message    sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&r.ID, &r.VMName, &incident, &action, &success, &message, &r.FailureCount, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan remediation: %w", err)
		}
		r.IncidentID = incident.String
		r.Action = lifecycle.HealAction(action)
		r.Success = success != 0
		r.Message = message.String
		r.CreatedAt = parseTime(createdRaw)
		out = append(out, r)
	}
	return out, rows.Err()
}

const recordColumns = "vm_name, state, ssh_reachable, ssh_failures, last_check, last_error"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		rec       Record
		state     string
		reachable int
		checked   string
		lastError sql.NullString
	)
	if err := scanner.Scan(&rec.VMName, &state, &reachable, &rec.SSHFailures, &checked, &lastError); err != nil {
		return nil, err
	}
	rec.State = lifecycle.VMState(state)
	rec.SSHReachable = reachable != 0
	rec.LastCheck = parseTime(checked)
	rec.LastError = lastError.String
	return &rec, nil
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
