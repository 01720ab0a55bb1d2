package heap

import "errors"

// ErrNoFrame reports buffer pool exhaustion while scanning.
var ErrNoFrame = errors.New("heap scan: no frame available")
