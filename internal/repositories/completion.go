package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/ytclip/internal/models"
	"github.com/desertthunder/ytclip/internal/shared"
)

// CompletionStore is the durable record of per-item and per-segment progress.
//
// Every call is serialized by an internal mutex and every mutation commits in its own transaction
// before returning, so callers from different pipeline stages never coordinate with each other.
// Identifiers the store has never seen are reported as [models.StatePending].
type CompletionStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewCompletionStore wraps a migrated database connection.
func NewCompletionStore(db *sql.DB) *CompletionStore {
	return &CompletionStore{db: db}
}

// OpenCompletionStore opens (creating if needed) the store file at path and applies migrations.
func OpenCompletionStore(ctx context.Context, path string) (*CompletionStore, error) {
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, err
	}
	ConfigureStore(db)

	if err := shared.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", shared.ErrStoreUnavailable, err)
	}
	return NewCompletionStore(db), nil
}

// ConfigureStore limits the pool to a single connection; the store serializes access anyway.
func ConfigureStore(db *sql.DB) {
	shared.ConfigureDatabase(db, 1, 1)
}

// SchemaVersion returns the highest applied migration version.
func (s *CompletionStore) SchemaVersion(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return shared.CurrentVersion(ctx, s.db)
}

// Close releases the underlying database.
func (s *CompletionStore) Close() error {
	return s.db.Close()
}

// Has reports whether id is terminal (done or permanently failed).
func (s *CompletionStore) Has(ctx context.Context, id string) (bool, error) {
	state, err := s.State(ctx, id)
	if err != nil {
		return false, err
	}
	return state.Terminal(), nil
}

// State returns the item's state, [models.StatePending] when unknown.
func (s *CompletionStore) State(ctx context.Context, id string) (models.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT state FROM items WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StatePending, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read item state: %w", err)
	}
	return models.ParseState(raw)
}

// Item returns the full record for id. Unknown ids yield a pending item with zero timestamps.
func (s *CompletionStore) Item(ctx context.Context, id string) (*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.queryItems(ctx, "WHERE i.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return &models.Item{ID: id, State: models.StatePending}, nil
	}
	return &items[0], nil
}

// MarkFetched advances a pending item to fetched. Any other state is left untouched.
func (s *CompletionStore) MarkFetched(ctx context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := ensureItem(ctx, tx, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE items
			SET state = ?, title = CASE WHEN ? = '' THEN title ELSE ? END, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND state = ?
		`, models.StateFetched, title, title, id, models.StatePending)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to mark item fetched: %w", err)
	}
	return nil
}

// Plan returns the recorded segment plan for id. ok is false when no plan has been recorded.
func (s *CompletionStore) Plan(ctx context.Context, id string) (segments []models.Segment, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count sql.NullInt64
	err = s.db.QueryRowContext(ctx, "SELECT segment_count FROM items WHERE id = ?", id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !count.Valid) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read segment plan: %w", err)
	}

	segments, err = querySegments(ctx, s.db, id)
	if err != nil {
		return nil, false, err
	}
	return segments, true, nil
}

// PlanSegments records the segment plan for id, including each segment's output path.
//
// The first recorded plan wins: later calls return the stored plan unchanged. Recording an empty
// plan marks the item done, since there is nothing left to render.
func (s *CompletionStore) PlanSegments(ctx context.Context, id string, segments []models.Segment) ([]models.Segment, error) {
	for _, seg := range segments {
		if err := seg.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
		}
		if seg.OutputPath == "" {
			return nil, fmt.Errorf("%w: segment %d has no output path", shared.ErrInvalidInput, seg.Ordinal)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var planned []models.Segment
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := ensureItem(ctx, tx, id); err != nil {
			return err
		}

		var count sql.NullInt64
		if err := tx.QueryRowContext(ctx, "SELECT segment_count FROM items WHERE id = ?", id).Scan(&count); err != nil {
			return err
		}
		if count.Valid {
			existing, err := querySegments(ctx, tx, id)
			planned = existing
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO segments (item_id, ordinal, title, start_ms, end_ms, output_path)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		planned = make([]models.Segment, 0, len(segments))
		for _, seg := range segments {
			if _, err := stmt.ExecContext(ctx, id, seg.Ordinal, seg.Title, seg.Start.Milliseconds(), nullDuration(seg.End), seg.OutputPath); err != nil {
				return fmt.Errorf("segment %d: %w", seg.Ordinal, err)
			}
			seg.ItemID = id
			seg.Done = false
			planned = append(planned, seg)
		}

		state := "state"
		if len(segments) == 0 {
			state = "CASE WHEN state = 'failed' THEN state ELSE 'done' END"
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf(
			"UPDATE items SET segment_count = ?, state = %s, updated_at = CURRENT_TIMESTAMP WHERE id = ?", state,
		), len(segments), id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to plan segments: %w", err)
	}
	return planned, nil
}

// MarkSegmentDone records a rendered segment. When it was the last outstanding segment of the
// item, the item becomes done in the same transaction.
func (s *CompletionStore) MarkSegmentDone(ctx context.Context, id string, ordinal int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE segments SET done = 1, done_at = COALESCE(done_at, CURRENT_TIMESTAMP)
			WHERE item_id = ? AND ordinal = ?
		`, id, ordinal)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("%w: item %s ordinal %d", shared.ErrUnknownSegment, id, ordinal)
		}

		var remaining int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM segments WHERE item_id = ? AND done = 0", id,
		).Scan(&remaining); err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE items SET state = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND state IN (?, ?)
		`, models.StateDone, id, models.StatePending, models.StateFetched)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to mark segment done: %w", err)
	}
	return nil
}

// IsSegmentDone reports whether the segment was rendered in this or an earlier run.
func (s *CompletionStore) IsSegmentDone(ctx context.Context, id string, ordinal int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var done bool
	err := s.db.QueryRowContext(ctx,
		"SELECT done FROM segments WHERE item_id = ? AND ordinal = ?", id, ordinal,
	).Scan(&done)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read segment state: %w", err)
	}
	return done, nil
}

// MarkPermanentlyFailed moves a non-done item to failed; it will not be listed again.
func (s *CompletionStore) MarkPermanentlyFailed(ctx context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := ensureItem(ctx, tx, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE items SET state = ?, reason = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND state != ?
		`, models.StateFailed, reason, id, models.StateDone)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to mark item failed: %w", err)
	}
	return nil
}

// RecordAttempt counts a transient failure against id for diagnostics. State is unchanged.
func (s *CompletionStore) RecordAttempt(ctx context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := ensureItem(ctx, tx, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE items SET attempts = attempts + 1, reason = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, reason, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// OutputPathTaken reports whether any planned segment already owns path.
func (s *CompletionStore) OutputPathTaken(ctx context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var taken bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM segments WHERE output_path = ?)", path,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("failed to check output path: %w", err)
	}
	return taken, nil
}

// Summary counts items per state and planned/rendered segments.
func (s *CompletionStore) Summary(ctx context.Context) (models.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summary models.Summary
	rows, err := s.db.QueryContext(ctx, "SELECT state, COUNT(*) FROM items GROUP BY state")
	if err != nil {
		return summary, fmt.Errorf("failed to summarize items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return summary, fmt.Errorf("failed to scan summary: %w", err)
		}
		switch models.State(state) {
		case models.StatePending:
			summary.Pending = n
		case models.StateFetched:
			summary.Fetched = n
		case models.StateDone:
			summary.Done = n
		case models.StateFailed:
			summary.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return summary, fmt.Errorf("failed to summarize items: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(done), 0) FROM segments",
	).Scan(&summary.Segments, &summary.SegmentsDone)
	if err != nil {
		return summary, fmt.Errorf("failed to summarize segments: %w", err)
	}
	return summary, nil
}

// List returns items ordered by creation, optionally restricted to the given states.
func (s *CompletionStore) List(ctx context.Context, states ...models.State) ([]models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(states) == 0 {
		return s.queryItems(ctx, "")
	}

	placeholders := make([]string, len(states))
	args := make([]any, len(states))
	for i, st := range states {
		placeholders[i] = "?"
		args[i] = st
	}
	return s.queryItems(ctx, "WHERE i.state IN ("+strings.Join(placeholders, ", ")+")", args...)
}

// Segments returns the recorded plan for id, empty when none was recorded.
func (s *CompletionStore) Segments(ctx context.Context, id string) ([]models.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return querySegments(ctx, s.db, id)
}

func (s *CompletionStore) queryItems(ctx context.Context, where string, args ...any) ([]models.Item, error) {
	query := `
		SELECT i.id, i.state, i.title, i.reason, i.segment_count, i.attempts, i.created_at, i.updated_at,
			(SELECT COUNT(*) FROM segments sg WHERE sg.item_id = i.id AND sg.done = 1)
		FROM items i ` + where + `
		ORDER BY i.created_at, i.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		var (
			item  models.Item
			state string
			count sql.NullInt64
		)
		if err := rows.Scan(&item.ID, &state, &item.Title, &item.Reason, &count, &item.Attempts,
			&item.CreatedAt, &item.UpdatedAt, &item.SegmentsDone); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		if item.State, err = models.ParseState(state); err != nil {
			return nil, err
		}
		if count.Valid {
			n := int(count.Int64)
			item.SegmentCount = &n
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func querySegments(ctx context.Context, q queryer, id string) ([]models.Segment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ordinal, title, start_ms, end_ms, output_path, done
		FROM segments WHERE item_id = ? ORDER BY ordinal
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	segments := []models.Segment{}
	for rows.Next() {
		var (
			seg     models.Segment
			startMS int64
			endMS   sql.NullInt64
		)
		if err := rows.Scan(&seg.Ordinal, &seg.Title, &startMS, &endMS, &seg.OutputPath, &seg.Done); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		seg.ItemID = id
		seg.Start = time.Duration(startMS) * time.Millisecond
		seg.End = durationFromNull(endMS)
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	return segments, nil
}

func ensureItem(ctx context.Context, tx *sql.Tx, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty item id", shared.ErrInvalidInput)
	}
	_, err := tx.ExecContext(ctx, "INSERT INTO items (id) VALUES (?) ON CONFLICT(id) DO NOTHING", id)
	return err
}
