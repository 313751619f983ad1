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

var instanceColumns = []string{
	"id", "holder_id", "type_code", "status", "expiry_date",
	"submitted_for_extension", "needs_travel_confirmation", "notifications_enabled",
	"last_notification_at", "final_reminder_sent", "version", "created_at", "updated_at",
}

var historyColumns = []string{
	"id", "instance_id", "event", "old_expiry_date", "new_expiry_date",
	"changed_by", "note", "in_country", "created_at",
}

// CreateInstance inserts an instance and its creation record atomically.
func (s *Store) CreateInstance(ctx context.Context, instance domain.Instance, record domain.HistoryRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := validateInstance(instance); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt := builder.Insert("document_instances").
		Columns(instanceColumns...).
		Values(instanceValues(instance)...)
	if _, err := exec(ctx, tx, stmt); err != nil {
		return fmt.Errorf("insert document instance: %w", err)
	}
	if err := insertHistory(ctx, tx, record); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit document instance: %w", err)
	}
	return nil
}

// UpdateInstance replaces the instance guarded by expectedVersion and appends
// record in the same transaction.
func (s *Store) UpdateInstance(ctx context.Context, next domain.Instance, expectedVersion int64, record *domain.HistoryRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := validateInstance(next); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt := builder.Update("document_instances").
		SetMap(map[string]any{
			"status":                    string(next.Status),
			"expiry_date":               nullableDate(next.ExpiryDate),
			"submitted_for_extension":   next.SubmittedForExtension,
			"needs_travel_confirmation": next.NeedsTravelConfirmation,
			"notifications_enabled":     next.NotificationsEnabled,
			"last_notification_at":      nullableMillis(next.LastNotificationAt),
			"final_reminder_sent":       next.FinalReminderSent,
			"version":                   next.Version,
			"updated_at":                toMillis(next.UpdatedAt),
		}).
		Where(squirrel.Eq{"id": next.ID, "version": expectedVersion})
	result, err := exec(ctx, tx, stmt)
	if err != nil {
		return fmt.Errorf("update document instance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document instance rows: %w", err)
	}
	if affected == 0 {
		return missingOrConflict(ctx, tx, next.ID)
	}
	if record != nil {
		if err := insertHistory(ctx, tx, *record); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit document instance: %w", err)
	}
	return nil
}

// GetInstance returns one document instance.
func (s *Store) GetInstance(ctx context.Context, id string) (domain.Instance, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Instance{}, err
	}
	row, err := queryRow(ctx, s.sqlDB, builder.Select(instanceColumns...).
		From("document_instances").
		Where(squirrel.Eq{"id": strings.TrimSpace(id)}))
	if err != nil {
		return domain.Instance{}, err
	}
	instance, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Instance{}, domain.ErrNotFound
	}
	return instance, err
}

// ListInstancesByHolder lists a holder's instances ordered by type code.
func (s *Store) ListInstancesByHolder(ctx context.Context, holderID string) ([]domain.Instance, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := query(ctx, s.sqlDB, builder.Select(instanceColumns...).
		From("document_instances").
		Where(squirrel.Eq{"holder_id": strings.TrimSpace(holderID)}).
		OrderBy("type_code", "id"))
	if err != nil {
		return nil, fmt.Errorf("list document instances: %w", err)
	}
	defer rows.Close()

	var instances []domain.Instance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document instances: %w", err)
	}
	return instances, nil
}

// ListHistory returns an instance's records in insertion order.
func (s *Store) ListHistory(ctx context.Context, instanceID string) ([]domain.HistoryRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := query(ctx, s.sqlDB, builder.Select(historyColumns...).
		From("document_history").
		Where(squirrel.Eq{"instance_id": strings.TrimSpace(instanceID)}).
		OrderBy("created_at", "rowid"))
	if err != nil {
		return nil, fmt.Errorf("list document history: %w", err)
	}
	defer rows.Close()

	var records []domain.HistoryRecord
	for rows.Next() {
		var record domain.HistoryRecord
		var event, changedBy string
		var oldExpiry, newExpiry sql.NullString
		var inCountry sql.NullBool
		var createdAt int64
		if err := rows.Scan(
			&record.ID,
			&record.InstanceID,
			&event,
			&oldExpiry,
			&newExpiry,
			&changedBy,
			&record.Note,
			&inCountry,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan document history: %w", err)
		}
		record.Event = domain.Event(event)
		record.ChangedBy = domain.Actor(changedBy)
		if record.OldExpiryDate, err = scanNullableDate(oldExpiry); err != nil {
			return nil, fmt.Errorf("decode old expiry for %s: %w", record.ID, err)
		}
		if record.NewExpiryDate, err = scanNullableDate(newExpiry); err != nil {
			return nil, fmt.Errorf("decode new expiry for %s: %w", record.ID, err)
		}
		record.InCountry = scanNullableBool(inCountry)
		record.CreatedAt = fromMillis(createdAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document history: %w", err)
	}
	return records, nil
}

func validateInstance(instance domain.Instance) error {
	if strings.TrimSpace(instance.ID) == "" {
		return fmt.Errorf("document id is required")
	}
	if strings.TrimSpace(instance.HolderID) == "" {
		return fmt.Errorf("holder id is required")
	}
	if !instance.Status.Valid() {
		return fmt.Errorf("unknown document status %q", instance.Status)
	}
	if instance.FinalReminderSent && instance.ExpiryDate == nil {
		return fmt.Errorf("final reminder requires an expiry date")
	}
	return nil
}

func instanceValues(instance domain.Instance) []any {
	return []any{
		instance.ID,
		instance.HolderID,
		instance.TypeCode,
		string(instance.Status),
		nullableDate(instance.ExpiryDate),
		instance.SubmittedForExtension,
		instance.NeedsTravelConfirmation,
		instance.NotificationsEnabled,
		nullableMillis(instance.LastNotificationAt),
		instance.FinalReminderSent,
		instance.Version,
		toMillis(instance.CreatedAt),
		toMillis(instance.UpdatedAt),
	}
}

func insertHistory(ctx context.Context, q queryer, record domain.HistoryRecord) error {
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("history record id is required")
	}
	stmt := builder.Insert("document_history").
		Columns(historyColumns...).
		Values(
			record.ID,
			record.InstanceID,
			string(record.Event),
			nullableDate(record.OldExpiryDate),
			nullableDate(record.NewExpiryDate),
			string(record.ChangedBy),
			record.Note,
			nullableBool(record.InCountry),
			toMillis(record.CreatedAt),
		)
	if _, err := exec(ctx, q, stmt); err != nil {
		return fmt.Errorf("append document history: %w", err)
	}
	return nil
}

// missingOrConflict tells a deleted row apart from a changed one after a
// guarded update touched nothing.
func missingOrConflict(ctx context.Context, q queryer, id string) error {
	row, err := queryRow(ctx, q, builder.Select("1").From("document_instances").Where(squirrel.Eq{"id": id}))
	if err != nil {
		return err
	}
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("check document instance: %w", err)
	}
	return domain.ErrConflict
}

// instanceRow holds the raw column values of one document_instances row.
type instanceRow struct {
	instance         domain.Instance
	status           string
	expiry           sql.NullString
	lastNotification sql.NullInt64
	createdAt        int64
	updatedAt        int64
}

func (r *instanceRow) dest() []any {
	return []any{
		&r.instance.ID,
		&r.instance.HolderID,
		&r.instance.TypeCode,
		&r.status,
		&r.expiry,
		&r.instance.SubmittedForExtension,
		&r.instance.NeedsTravelConfirmation,
		&r.instance.NotificationsEnabled,
		&r.lastNotification,
		&r.instance.FinalReminderSent,
		&r.instance.Version,
		&r.createdAt,
		&r.updatedAt,
	}
}

func (r *instanceRow) decode() (domain.Instance, error) {
	instance := r.instance
	instance.Status = domain.Status(r.status)
	expiryDate, err := scanNullableDate(r.expiry)
	if err != nil {
		return domain.Instance{}, fmt.Errorf("decode expiry for %s: %w", instance.ID, err)
	}
	instance.ExpiryDate = expiryDate
	instance.LastNotificationAt = scanNullableMillis(r.lastNotification)
	instance.CreatedAt = fromMillis(r.createdAt)
	instance.UpdatedAt = fromMillis(r.updatedAt)
	return instance, nil
}

func scanInstance(row scanner) (domain.Instance, error) {
	var raw instanceRow
	if err := row.Scan(raw.dest()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Instance{}, err
		}
		return domain.Instance{}, fmt.Errorf("scan document instance: %w", err)
	}
	return raw.decode()
}
