package storage

import (
	"context"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/drone-path-prob/internal/session"
)

// Store provides an interface for persisting aligned sessions.
// All operations that write to the database should be considered atomic.
type Store interface {
	// SaveSession stores a session with its nodes and aligned rows in a
	// single transaction and returns the new session ID.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - s: Aligned session
	//   - config: Optional run configuration. Can be string, []byte, or JSON-serializable object
	//
	// Returns:
	//   - sessionID: Unique identifier for the stored session
	//   - error: If storage fails or context is cancelled
	SaveSession(ctx context.Context, s *session.Session, config any) (sessionID int64, err error)

	// Session retrieves a stored session by its ID.
	Session(ctx context.Context, id int64) (*SessionRecord, error)

	// Sessions returns all stored sessions ordered by processing time.
	Sessions(ctx context.Context) ([]*SessionRecord, error)

	// Nodes returns the node summaries of a session in column order.
	Nodes(ctx context.Context, sessionID int64) ([]*NodeRecord, error)

	// ReadRows returns an iterator over the aligned rows of a session.
	// The returned reader must be closed after use.
	ReadRows(ctx context.Context, sessionID int64, opts ...ReaderOption) (RowReader, error)

	// Close releases all database connections and resources.
	// It is safe to call Close multiple times.
	Close() error
}
