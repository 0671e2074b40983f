package store

import (
	"context"
	"fmt"
	"time"
)

// ActionKind is the kind of repository change journaled.
type ActionKind string

const (
	ActionAdd    ActionKind = "add"
	ActionUpdate ActionKind = "update"
	ActionRemove ActionKind = "remove"
)

// Action is one journaled repository change.
type Action struct {
	Seq           int64
	CorrelationID string
	Repo          string
	ArtifactID    string
	Kind          ActionKind
	Actor         string
	// Cause is free text such as "message was deleted." or "denied by x".
	Cause      string
	Clock      int64
	RecordedAt time.Time
}

// Journal appends a and returns its sequence number.
func (s *Store) Journal(ctx context.Context, a Action) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO actions
		(correlation_id, repo, artifact_id, action, actor, cause, logical_clock, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.CorrelationID,
		a.Repo,
		a.ArtifactID,
		string(a.Kind),
		a.Actor,
		a.Cause,
		a.Clock,
		a.RecordedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("journal %s %s: %w", a.Kind, a.ArtifactID, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("journal %s %s: %w", a.Kind, a.ArtifactID, err)
	}
	return seq, nil
}

// History returns the last limit actions for repo in ascending seq order.
// A limit <= 0 returns everything.
func (s *Store) History(ctx context.Context, repo string, limit int) ([]Action, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.readActions(ctx, `
		SELECT * FROM (
			SELECT seq, correlation_id, repo, artifact_id, action, actor, cause, logical_clock, recorded_at
			FROM actions
			WHERE repo = ?
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq ASC
	`, repo, limit)
}

// ArtifactHistory returns every action for one artifact in seq order.
func (s *Store) ArtifactHistory(ctx context.Context, repo, artifactID string) ([]Action, error) {
	return s.readActions(ctx, `
		SELECT seq, correlation_id, repo, artifact_id, action, actor, cause, logical_clock, recorded_at
		FROM actions
		WHERE repo = ? AND artifact_id = ?
		ORDER BY seq ASC
	`, repo, artifactID)
}

func (s *Store) readActions(ctx context.Context, query string, args ...any) ([]Action, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	actions := []Action{}
	for rows.Next() {
		var (
			a        Action
			kind     string
			recorded int64
		)
		if err := rows.Scan(&a.Seq, &a.CorrelationID, &a.Repo, &a.ArtifactID, &kind, &a.Actor, &a.Cause, &a.Clock, &recorded); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		a.Kind = ActionKind(kind)
		a.RecordedAt = time.Unix(recorded, 0).UTC()
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return actions, nil
}
