package session

import "errors"

// ErrNestedTransactionUnsupported is returned by Transaction when a
// nested call is rejected because the engine does not support
// savepoints. The root package wraps this into
// duckpg.NewNestedTransactionUnsupportedError at the API boundary.
var ErrNestedTransactionUnsupported = errors.New("session: nested transactions are not supported by this engine")

// ErrSessionDirty is returned by any statement or nested Transaction
// attempted inside a transaction that has been marked rollback-only,
// which happens when the engine rejects a SAVEPOINT. Other errors
// inside a transaction body do not set this mark; they roll the
// transaction back once the body returns them.
var ErrSessionDirty = errors.New("session: connection is marked for rollback, no further statements allowed")
