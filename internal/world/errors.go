package world

import "errors"

// ErrNotFound reports that an operation required a backing row that does
// not exist. Expected-miss lookups return (nil, nil) instead.
var ErrNotFound = errors.New("world: entity not found")
