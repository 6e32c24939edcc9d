package workbench

import "errors"

// Validation errors returned by Manager operations.
var (
	ErrNoDocument    = errors.New("no document selected")
	ErrGenerating    = errors.New("pipeline is generating")
	ErrWrongDocument = errors.New("session belongs to another document")
	ErrUnknownField  = errors.New("unknown document field")
	ErrArchiveFailed = errors.New("session archive failed")
)
