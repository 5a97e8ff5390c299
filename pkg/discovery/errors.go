package discovery

import "errors"

// ErrNotFound is returned by Find when no server answered in time.
var ErrNotFound = errors.New("discovery: no webthing server found")
