package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rahul/contentcal/internal/models"
)

// SaveSession upserts the snapshot of a session, with its calendar when the
// session produced one. A row that is already terminal is left unchanged.
func (s *Store) SaveSession(ctx context.Context, snap models.ProgressSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", snap.SessionID, err)
	}
	var calendar sql.NullString
	if snap.Calendar != nil {
		c, err := json.Marshal(snap.Calendar)
		if err != nil {
			return fmt.Errorf("failed to encode calendar %s: %w", snap.SessionID, err)
		}
		calendar = sql.NullString{String: string(c), Valid: true}
	}

	query := `INSERT INTO generation_sessions (id, user_id, strategy_id, status, snapshot, calendar, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			snapshot = excluded.snapshot,
			calendar = COALESCE(excluded.calendar, generation_sessions.calendar),
			updated_at = excluded.updated_at
		WHERE generation_sessions.status NOT IN (` + terminalStatuses + `)`
	_, err = s.DB.ExecContext(ctx, query, snap.SessionID, snap.UserID, snap.StrategyID, string(snap.Status),
		string(data), calendar, snap.CreatedAt.UTC().Format(time.RFC3339Nano), snap.UpdatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// terminalStatuses is the SQL list of statuses a stored row never leaves.
var terminalStatuses = "'" + strings.Join([]string{
	string(models.SessionCompleted),
	string(models.SessionCompletedWithWarnings),
	string(models.SessionFailed),
	string(models.SessionCancelled),
}, "','") + "'"

// LoadSessions returns every persisted session, oldest first.
func (s *Store) LoadSessions(ctx context.Context) ([]models.ProgressSnapshot, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, snapshot, calendar FROM generation_sessions ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ProgressSnapshot
	for rows.Next() {
		var id, data string
		var calendar sql.NullString
		if err := rows.Scan(&id, &data, &calendar); err != nil {
			return nil, err
		}
		snap, err := decodeSession(data, calendar)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", id, err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *Store) GetSession(ctx context.Context, id string) (models.ProgressSnapshot, error) {
	var data string
	var calendar sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT snapshot, calendar FROM generation_sessions WHERE id = ?`, id).Scan(&data, &calendar)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ProgressSnapshot{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.ProgressSnapshot{}, err
	}
	return decodeSession(data, calendar)
}

// DeleteSessions removes the given sessions. Unknown ids are ignored.
func (s *Store) DeleteSessions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.DB.ExecContext(ctx, `DELETE FROM generation_sessions WHERE id IN (`+placeholders+`)`, args...)
	return err
}

func decodeSession(data string, calendar sql.NullString) (models.ProgressSnapshot, error) {
	var snap models.ProgressSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return models.ProgressSnapshot{}, err
	}
	if calendar.Valid && calendar.String != "" {
		var c models.Calendar
		if err := json.Unmarshal([]byte(calendar.String), &c); err != nil {
			return models.ProgressSnapshot{}, err
		}
		snap.Calendar = &c
	}
	return snap, nil
}
