package store

import (
	"context"
	"errors"
	"time"

	"github.com/devrev/dispatchboard/internal/model"
)

// ErrNotFound is returned when a technician, request or cache entry is absent
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when an insert collides with an existing ID
var ErrAlreadyExists = errors.New("already exists")

// BoardStore interface for technician and request persistence
type BoardStore interface {
	// WithTx runs fn inside one transaction. A non-nil error from fn rolls
	// the transaction back; so does cancellation of ctx before commit.
	WithTx(ctx context.Context, fn func(tx BoardTx) error) error

	// Single-statement operations
	CreateTechnician(ctx context.Context, technician *model.Technician) error
	UpdateTechnicianName(ctx context.Context, technicianID, fullName string) error
	DeleteRequest(ctx context.Context, requestID string) (bool, error)
	LoadBoard(ctx context.Context) (*model.Board, error)

	// Schema and health
	EnsureSchema(ctx context.Context) error
	Ping(ctx context.Context) error
	Close()
}

// BoardTx is the set of operations available inside a transaction. Lock
// methods take exclusive row locks held until the transaction ends. Callers
// lock technicians in ascending ID order and only then lock requests.
type BoardTx interface {
	LockTechnician(ctx context.Context, technicianID string) error
	GetRequest(ctx context.Context, requestID string) (*model.Request, error)
	LockRequest(ctx context.Context, requestID string) (*model.Request, error)
	SumComplexity(ctx context.Context, technicianID, excludingRequestID string) (int, error)
	InsertRequest(ctx context.Context, request *model.Request) error
	UpdateRequestFields(ctx context.Context, requestID, address string, complexity int) error
	AssignRequest(ctx context.Context, requestID, technicianID string) error
	DeleteRequestsOf(ctx context.Context, technicianID string) (int64, error)
	DeleteTechnician(ctx context.Context, technicianID string) error
}

// BoardCache caches the derived board under a generation number. Invalidate
// advances the generation so boards computed before a write are never served
// after it.
type BoardCache interface {
	Generation(ctx context.Context) (uint64, error)
	Get(ctx context.Context, generation uint64) (*model.Board, error)
	Set(ctx context.Context, generation uint64, board *model.Board, ttl time.Duration) error
	Invalidate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
