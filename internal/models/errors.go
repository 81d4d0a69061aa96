package models

import "errors"

// Errors shared by the store, the services and the API layer.
// Callers wrap them with fmt.Errorf("...: %w") and match with errors.Is.
var (
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalidInput          = errors.New("invalid input")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrDuplicateProof        = errors.New("duplicate proof")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrCampaignClosed        = errors.New("campaign is not accepting claims")
)
