package models

import "errors"

// Shared error taxonomy for the workflow engine. Store failures are
// propagated unchanged; everything else maps onto one of these.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
)
