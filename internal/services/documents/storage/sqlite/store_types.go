package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"github.com/louisbranch/docwatch/internal/services/documents/domain"
)

var typeColumns = []string{"code", "names_json", "reminder_lead_days", "is_active"}

// UpsertDocumentTypes inserts or refreshes catalog entries in one transaction.
func (s *Store) UpsertDocumentTypes(ctx context.Context, types []domain.DocumentType) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, docType := range types {
		code := strings.ToUpper(strings.TrimSpace(docType.Code))
		if code == "" {
			return fmt.Errorf("document type code is required")
		}
		if docType.ReminderLeadDays <= 0 {
			return fmt.Errorf("document type %s: reminder lead days must be positive", code)
		}
		names := docType.Names
		if names == nil {
			names = map[string]string{}
		}
		namesJSON, err := json.Marshal(names)
		if err != nil {
			return fmt.Errorf("encode names for %s: %w", code, err)
		}
		stmt := builder.Insert("document_types").
			Columns(typeColumns...).
			Values(code, string(namesJSON), docType.ReminderLeadDays, docType.IsActive).
			Suffix("ON CONFLICT (code) DO UPDATE SET names_json = excluded.names_json, reminder_lead_days = excluded.reminder_lead_days, is_active = excluded.is_active")
		if _, err := exec(ctx, tx, stmt); err != nil {
			return fmt.Errorf("upsert document type %s: %w", code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit document types: %w", err)
	}
	return nil
}

// ListDocumentTypes lists the catalog ordered by code.
func (s *Store) ListDocumentTypes(ctx context.Context) ([]domain.DocumentType, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := query(ctx, s.sqlDB, builder.Select(typeColumns...).From("document_types").OrderBy("code"))
	if err != nil {
		return nil, fmt.Errorf("list document types: %w", err)
	}
	defer rows.Close()

	var types []domain.DocumentType
	for rows.Next() {
		docType, err := scanDocumentType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, docType)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document types: %w", err)
	}
	return types, nil
}

// GetDocumentType returns one catalog entry.
func (s *Store) GetDocumentType(ctx context.Context, code string) (domain.DocumentType, error) {
	if err := s.ready(ctx); err != nil {
		return domain.DocumentType{}, err
	}
	row, err := queryRow(ctx, s.sqlDB, builder.Select(typeColumns...).
		From("document_types").
		Where(squirrel.Eq{"code": strings.ToUpper(strings.TrimSpace(code))}))
	if err != nil {
		return domain.DocumentType{}, err
	}
	docType, err := scanDocumentType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DocumentType{}, domain.ErrNotFound
	}
	return docType, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocumentType(row scanner) (domain.DocumentType, error) {
	var docType domain.DocumentType
	var namesJSON string
	if err := row.Scan(&docType.Code, &namesJSON, &docType.ReminderLeadDays, &docType.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DocumentType{}, err
		}
		return domain.DocumentType{}, fmt.Errorf("scan document type: %w", err)
	}
	if err := json.Unmarshal([]byte(namesJSON), &docType.Names); err != nil {
		return domain.DocumentType{}, fmt.Errorf("decode names for %s: %w", docType.Code, err)
	}
	return docType, nil
}
