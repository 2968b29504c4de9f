package storage

import "errors"

var errClosed = errors.New("storage is closed")
