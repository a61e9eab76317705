package tenant

import "errors"

// ErrPoolClosed is returned by Acquire after the pool has been closed
var ErrPoolClosed = errors.New("tenant connection pool is closed")

// ErrEmptyDatabaseID is returned when a database id is required but empty
var ErrEmptyDatabaseID = errors.New("database id is required")

// ErrNoContext is returned when an operation needs a tenant context but none is attached
var ErrNoContext = errors.New("no tenant context attached to the operation")
