package lifecycle

import "errors"

// ErrAlreadyRunning is returned when Start is called on a daemon that has
// already been started, or when another process holds the daemon lock.
var ErrAlreadyRunning = errors.New("lifecycle daemon already running")
