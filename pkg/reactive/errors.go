package reactive

import "errors"

// ErrNotInitialized indicates the store has no snapshot installed.
var ErrNotInitialized = errors.New("store not initialized")
