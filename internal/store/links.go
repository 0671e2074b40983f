package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/plent/internal/platform"
)

// ThreadLink records which origin message a forum thread's artifact was
// stored from.
type ThreadLink struct {
	Thread  platform.ChannelID
	Message platform.MessageID
	Repo    string
	Dir     string
	Created time.Time
}

// LinkThread stores or replaces the link for l.Thread.
func (s *Store) LinkThread(ctx context.Context, l ThreadLink) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO thread_links (thread_id, message_id, repo, dir, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			message_id = excluded.message_id,
			repo = excluded.repo,
			dir = excluded.dir,
			created_at = excluded.created_at
	`, int64(l.Thread), int64(l.Message), l.Repo, l.Dir, l.Created.Unix())
	if err != nil {
		return fmt.Errorf("link thread %d: %w", l.Thread, err)
	}
	return nil
}

// UnlinkThread removes and returns the link for thread.
func (s *Store) UnlinkThread(ctx context.Context, thread platform.ChannelID) (ThreadLink, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ThreadLink{}, false, fmt.Errorf("unlink thread %d: %w", thread, err)
	}
	defer tx.Rollback()

	l, err := scanLink(tx.QueryRowContext(ctx, `
		SELECT thread_id, message_id, repo, dir, created_at
		FROM thread_links WHERE thread_id = ?
	`, int64(thread)))
	if errors.Is(err, sql.ErrNoRows) {
		return ThreadLink{}, false, nil
	}
	if err != nil {
		return ThreadLink{}, false, fmt.Errorf("unlink thread %d: %w", thread, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM thread_links WHERE thread_id = ?`, int64(thread)); err != nil {
		return ThreadLink{}, false, fmt.Errorf("unlink thread %d: %w", thread, err)
	}
	if err := tx.Commit(); err != nil {
		return ThreadLink{}, false, fmt.Errorf("unlink thread %d: %w", thread, err)
	}
	return l, true, nil
}

// UnlinkMessage removes any link pointing at message.
func (s *Store) UnlinkMessage(ctx context.Context, message platform.MessageID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM thread_links WHERE message_id = ?`, int64(message)); err != nil {
		return fmt.Errorf("unlink message %d: %w", message, err)
	}
	return nil
}

// ThreadForMessage returns the thread an origin message was linked from.
func (s *Store) ThreadForMessage(ctx context.Context, message platform.MessageID) (ThreadLink, bool, error) {
	l, err := scanLink(s.db.QueryRowContext(ctx, `
		SELECT thread_id, message_id, repo, dir, created_at
		FROM thread_links WHERE message_id = ?
		ORDER BY thread_id ASC LIMIT 1
	`, int64(message)))
	if errors.Is(err, sql.ErrNoRows) {
		return ThreadLink{}, false, nil
	}
	if err != nil {
		return ThreadLink{}, false, fmt.Errorf("thread for message %d: %w", message, err)
	}
	return l, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (ThreadLink, error) {
	var (
		thread, message, created int64
		l                        ThreadLink
	)
	if err := row.Scan(&thread, &message, &l.Repo, &l.Dir, &created); err != nil {
		return ThreadLink{}, err
	}
	l.Thread = platform.ChannelID(thread)
	l.Message = platform.MessageID(message)
	l.Created = time.Unix(created, 0).UTC()
	return l, nil
}
