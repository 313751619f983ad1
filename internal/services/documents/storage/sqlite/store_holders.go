package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"github.com/louisbranch/docwatch/internal/services/documents/domain"
)

var holderColumns = []string{
	"id", "chat_id", "language", "citizenship_code", "timezone",
	"window_start", "window_end", "is_admin", "created_at", "updated_at",
}

// PutHolder inserts or updates a holder.
func (s *Store) PutHolder(ctx context.Context, holder domain.Holder) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	holder.ID = strings.TrimSpace(holder.ID)
	if holder.ID == "" {
		return fmt.Errorf("holder id is required")
	}
	if holder.CreatedAt.IsZero() || holder.UpdatedAt.IsZero() {
		return fmt.Errorf("holder timestamps are required")
	}
	var windowStart, windowEnd any
	if holder.Window != nil {
		windowStart, windowEnd = int(holder.Window.Start), int(holder.Window.End)
	}
	stmt := builder.Insert("holders").
		Columns(holderColumns...).
		Values(
			holder.ID,
			holder.ChatID,
			strings.TrimSpace(holder.Language),
			strings.TrimSpace(holder.CitizenshipCode),
			strings.TrimSpace(holder.Timezone),
			windowStart,
			windowEnd,
			holder.IsAdmin,
			toMillis(holder.CreatedAt),
			toMillis(holder.UpdatedAt),
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
	chat_id = excluded.chat_id,
	language = excluded.language,
	citizenship_code = excluded.citizenship_code,
	timezone = excluded.timezone,
	window_start = excluded.window_start,
	window_end = excluded.window_end,
	is_admin = excluded.is_admin,
	updated_at = excluded.updated_at`)
	if _, err := exec(ctx, s.sqlDB, stmt); err != nil {
		return fmt.Errorf("put holder: %w", err)
	}
	return nil
}

// GetHolder returns one holder.
func (s *Store) GetHolder(ctx context.Context, id string) (domain.Holder, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Holder{}, err
	}
	row, err := queryRow(ctx, s.sqlDB, builder.Select(holderColumns...).
		From("holders").
		Where(squirrel.Eq{"id": strings.TrimSpace(id)}))
	if err != nil {
		return domain.Holder{}, err
	}
	holder, err := scanHolder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Holder{}, domain.ErrNotFound
	}
	return holder, err
}

// DeleteHolder removes a holder. Foreign keys cascade to instances, history
// and conversation state.
func (s *Store) DeleteHolder(ctx context.Context, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := exec(ctx, s.sqlDB, builder.Delete("holders").Where(squirrel.Eq{"id": strings.TrimSpace(id)})); err != nil {
		return fmt.Errorf("delete holder: %w", err)
	}
	return nil
}

// GetConversationState returns the holder's state, idle when none is stored.
func (s *Store) GetConversationState(ctx context.Context, holderID string) (domain.ConversationState, error) {
	if err := s.ready(ctx); err != nil {
		return domain.ConversationState{}, err
	}
	row, err := queryRow(ctx, s.sqlDB, builder.Select("kind", "document_id", "updated_at").
		From("conversation_states").
		Where(squirrel.Eq{"holder_id": strings.TrimSpace(holderID)}))
	if err != nil {
		return domain.ConversationState{}, err
	}
	var state domain.ConversationState
	var kind string
	var updatedAt int64
	if err := row.Scan(&kind, &state.DocumentID, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.IdleState(), nil
		}
		return domain.ConversationState{}, fmt.Errorf("get conversation state: %w", err)
	}
	state.Kind = domain.ConversationKind(kind)
	state.UpdatedAt = fromMillis(updatedAt)
	return state, nil
}

// PutConversationState replaces the holder's conversation state.
func (s *Store) PutConversationState(ctx context.Context, holderID string, state domain.ConversationState) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := state.Validate(); err != nil {
		return err
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = timeNow()
	}
	stmt := builder.Insert("conversation_states").
		Columns("holder_id", "kind", "document_id", "updated_at").
		Values(strings.TrimSpace(holderID), string(state.Kind), state.DocumentID, toMillis(state.UpdatedAt)).
		Suffix("ON CONFLICT (holder_id) DO UPDATE SET kind = excluded.kind, document_id = excluded.document_id, updated_at = excluded.updated_at")
	if _, err := exec(ctx, s.sqlDB, stmt); err != nil {
		return fmt.Errorf("put conversation state: %w", err)
	}
	return nil
}

// holderRow holds the raw column values of one holders row.
type holderRow struct {
	holder      domain.Holder
	windowStart sql.NullInt64
	windowEnd   sql.NullInt64
	createdAt   int64
	updatedAt   int64
}

func (r *holderRow) dest() []any {
	return []any{
		&r.holder.ID,
		&r.holder.ChatID,
		&r.holder.Language,
		&r.holder.CitizenshipCode,
		&r.holder.Timezone,
		&r.windowStart,
		&r.windowEnd,
		&r.holder.IsAdmin,
		&r.createdAt,
		&r.updatedAt,
	}
}

func (r *holderRow) decode() domain.Holder {
	holder := r.holder
	if r.windowStart.Valid && r.windowEnd.Valid {
		holder.Window = &domain.NotificationWindow{
			Start: domain.TimeOfDay(r.windowStart.Int64),
			End:   domain.TimeOfDay(r.windowEnd.Int64),
		}
	}
	holder.CreatedAt = fromMillis(r.createdAt)
	holder.UpdatedAt = fromMillis(r.updatedAt)
	return holder
}

func scanHolder(row scanner) (domain.Holder, error) {
	var raw holderRow
	if err := row.Scan(raw.dest()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Holder{}, err
		}
		return domain.Holder{}, fmt.Errorf("scan holder: %w", err)
	}
	return raw.decode(), nil
}
