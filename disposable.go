package kiln

import "context"

// Disposable components receive a Close call when their singleton is
// destroyed, after any destruction hooks and before the declared
// DestroyMethod is considered.
//
// Example:
//
//	type ConnectionPool struct {
//	    db *sql.DB
//	}
//
//	func (p *ConnectionPool) Close() error {
//	    return p.db.Close()
//	}
type Disposable interface {
	Close() error
}

// DisposableWithContext is the context-aware variant of Disposable, for
// components whose cleanup should respect cancellation during container
// shutdown.
type DisposableWithContext interface {
	Close(ctx context.Context) error
}
