package domain

import (
	"errors"

	apperrors "github.com/louisbranch/docwatch/internal/platform/errors"
)

var (
	// ErrNotFound indicates a holder, document or type was not found.
	ErrNotFound = apperrors.New(apperrors.CodeNotFound, "not found")
	// ErrConflict indicates the stored version moved under a write.
	ErrConflict = apperrors.New(apperrors.CodeConflict, "concurrent modification")
	// ErrPreconditionUnmet indicates a transition the current state forbids.
	ErrPreconditionUnmet = apperrors.New(apperrors.CodePreconditionUnmet, "precondition unmet")
	// ErrInvalidArgument indicates malformed caller input.
	ErrInvalidArgument = apperrors.New(apperrors.CodeInvalidArgument, "invalid argument")

	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("document store is not configured")
	// ErrIDGeneratorNotConfigured indicates an ID generator is required.
	ErrIDGeneratorNotConfigured = errors.New("document id generator is not configured")
)

func invalidArgument(message string) error {
	return apperrors.New(apperrors.CodeInvalidArgument, message)
}

func preconditionUnmet(message, documentID string) error {
	return apperrors.WithMetadata(apperrors.CodePreconditionUnmet, message, map[string]string{
		"document_id": documentID,
	})
}

func holderPreconditionUnmet(message, holderID string) error {
	return apperrors.WithMetadata(apperrors.CodePreconditionUnmet, message, map[string]string{
		"holder_id": holderID,
	})
}
