package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"github.com/louisbranch/docwatch/internal/services/documents/domain"
)

func prefixed(alias string, columns []string) []string {
	out := make([]string, len(columns))
	for i, column := range columns {
		out[i] = alias + "." + column
	}
	return out
}

// ListReminderCandidates joins every instance that has notifications enabled
// and an expiry set with its type and holder.
func (s *Store) ListReminderCandidates(ctx context.Context, filter domain.CandidateFilter) ([]domain.Candidate, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	columns := append(prefixed("i", instanceColumns), prefixed("t", typeColumns)...)
	columns = append(columns, prefixed("h", holderColumns)...)

	where := squirrel.And{
		squirrel.Eq{"i.notifications_enabled": true},
		squirrel.NotEq{"i.expiry_date": nil},
	}
	if filter.ExpiringOnOrBefore != nil {
		where = append(where, squirrel.LtOrEq{"i.expiry_date": filter.ExpiringOnOrBefore.String()})
	}
	stmt := builder.Select(columns...).
		From("document_instances i").
		Join("document_types t ON t.code = i.type_code").
		Join("holders h ON h.id = i.holder_id").
		Where(where).
		OrderBy("i.expiry_date", "i.id")

	rows, err := query(ctx, s.sqlDB, stmt)
	if err != nil {
		return nil, fmt.Errorf("list reminder candidates: %w", err)
	}
	defer rows.Close()

	var candidates []domain.Candidate
	for rows.Next() {
		var instance instanceRow
		var holder holderRow
		var docType domain.DocumentType
		var namesJSON string
		dest := instance.dest()
		dest = append(dest, &docType.Code, &namesJSON, &docType.ReminderLeadDays, &docType.IsActive)
		dest = append(dest, holder.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan reminder candidate: %w", err)
		}
		decoded, err := instance.decode()
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(namesJSON), &docType.Names); err != nil {
			return nil, fmt.Errorf("decode names for %s: %w", docType.Code, err)
		}
		candidates = append(candidates, domain.Candidate{
			Instance: decoded,
			Type:     docType,
			Holder:   holder.decode(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminder candidates: %w", err)
	}
	return candidates, nil
}

// MarkReminderSent records a delivered reminder unless the expiry it was
// about has since been replaced.
func (s *Store) MarkReminderSent(ctx context.Context, mark domain.ReminderMark) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	id := strings.TrimSpace(mark.InstanceID)
	if id == "" {
		return fmt.Errorf("document id is required")
	}
	if mark.Tier != domain.TierApproaching && mark.Tier != domain.TierFinal {
		return fmt.Errorf("unknown reminder tier %q", mark.Tier)
	}
	if mark.Expiry.IsZero() {
		return fmt.Errorf("reminder expiry is required")
	}
	at := mark.At
	if at.IsZero() {
		at = timeNow()
	}

	set := map[string]any{
		"last_notification_at": toMillis(at),
		"version":              squirrel.Expr("version + 1"),
		"updated_at":           toMillis(at),
	}
	if mark.Tier == domain.TierFinal {
		set["final_reminder_sent"] = true
	}
	result, err := exec(ctx, s.sqlDB, builder.Update("document_instances").
		SetMap(set).
		Where(squirrel.Eq{"id": id, "expiry_date": mark.Expiry.String()}))
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark reminder sent rows: %w", err)
	}
	if affected == 0 {
		return missingOrConflict(ctx, s.sqlDB, id)
	}
	return nil
}
