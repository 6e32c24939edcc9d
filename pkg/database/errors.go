package database

import "errors"

// ErrNotReady indicates Start has not yet established a connection.
var ErrNotReady = errors.New("database not ready")
