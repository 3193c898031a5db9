package store

import (
	"context"
	"sort"
	"sync"

	"github.com/devrev/dispatchboard/internal/model"
	"go.uber.org/zap"
)

type storedRequest struct {
	request model.Request
	seq     uint64
}

type memoryState struct {
	technicians map[string]model.Technician
	requests    map[string]storedRequest
	nextSeq     uint64
}

func newMemoryState() memoryState {
	return memoryState{
		technicians: map[string]model.Technician{},
		requests:    map[string]storedRequest{},
	}
}

func (s memoryState) clone() memoryState {
	c := memoryState{
		technicians: make(map[string]model.Technician, len(s.technicians)),
		requests:    make(map[string]storedRequest, len(s.requests)),
		nextSeq:     s.nextSeq,
	}
	for k, v := range s.technicians {
		c.technicians[k] = v
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	return c
}

// MemoryStore implements BoardStore in process memory. Transactions run one
// at a time against a copy of the state which replaces the original only on
// commit.
type MemoryStore struct {
	mu     sync.RWMutex
	state  memoryState
	logger *zap.Logger
}

// NewMemoryStore creates an empty in-memory board store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		state:  newMemoryState(),
		logger: logger,
	}
}

// WithTx runs fn against a private copy of the state
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx BoardTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.state = tx.state
	return nil
}

// CreateTechnician inserts a new technician
func (s *MemoryStore) CreateTechnician(ctx context.Context, technician *model.Technician) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.state.technicians[technician.ID]; exists {
		return ErrAlreadyExists
	}
	s.state.technicians[technician.ID] = *technician
	return nil
}

// UpdateTechnicianName renames a technician
func (s *MemoryStore) UpdateTechnicianName(ctx context.Context, technicianID, fullName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.state.technicians[technicianID]
	if !exists {
		return ErrNotFound
	}
	t.FullName = fullName
	s.state.technicians[technicianID] = t
	return nil
}

// DeleteRequest removes a request
func (s *MemoryStore) DeleteRequest(ctx context.Context, requestID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.state.requests[requestID]; !exists {
		return false, nil
	}
	delete(s.state.requests, requestID)
	return true, nil
}

// LoadBoard builds the board ordered by technician ID, requests in insertion order
func (s *MemoryStore) LoadBoard(ctx context.Context) (*model.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(s.state.technicians))
	for id := range s.state.technicians {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	owned := make(map[string][]storedRequest, len(ids))
	for _, r := range s.state.requests {
		owned[r.request.TechnicianID] = append(owned[r.request.TechnicianID], r)
	}

	board := &model.Board{Technicians: make([]model.BoardTechnician, 0, len(ids))}
	for _, id := range ids {
		reqs := owned[id]
		sort.Slice(reqs, func(i, j int) bool { return reqs[i].seq < reqs[j].seq })

		entry := model.BoardTechnician{
			Technician: s.state.technicians[id],
			Requests:   make([]model.Request, 0, len(reqs)),
		}
		for _, r := range reqs {
			entry.Requests = append(entry.Requests, r.request)
		}
		board.Technicians = append(board.Technicians, entry)
	}
	return board, nil
}

// EnsureSchema is a no-op for the memory store
func (s *MemoryStore) EnsureSchema(ctx context.Context) error {
	return nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() {}

type memoryTx struct {
	state memoryState
}

func (t *memoryTx) LockTechnician(ctx context.Context, technicianID string) error {
	if _, exists := t.state.technicians[technicianID]; !exists {
		return ErrNotFound
	}
	return nil
}

func (t *memoryTx) GetRequest(ctx context.Context, requestID string) (*model.Request, error) {
	r, exists := t.state.requests[requestID]
	if !exists {
		return nil, ErrNotFound
	}
	req := r.request
	return &req, nil
}

func (t *memoryTx) LockRequest(ctx context.Context, requestID string) (*model.Request, error) {
	return t.GetRequest(ctx, requestID)
}

func (t *memoryTx) SumComplexity(ctx context.Context, technicianID, excludingRequestID string) (int, error) {
	total := 0
	for id, r := range t.state.requests {
		if r.request.TechnicianID == technicianID && id != excludingRequestID {
			total += r.request.Complexity
		}
	}
	return total, nil
}

func (t *memoryTx) InsertRequest(ctx context.Context, request *model.Request) error {
	if _, exists := t.state.requests[request.ID]; exists {
		return ErrAlreadyExists
	}
	if _, exists := t.state.technicians[request.TechnicianID]; !exists {
		return ErrNotFound
	}
	t.state.nextSeq++
	t.state.requests[request.ID] = storedRequest{request: *request, seq: t.state.nextSeq}
	return nil
}

func (t *memoryTx) UpdateRequestFields(ctx context.Context, requestID, address string, complexity int) error {
	r, exists := t.state.requests[requestID]
	if !exists {
		return ErrNotFound
	}
	r.request.Address = address
	r.request.Complexity = complexity
	t.state.requests[requestID] = r
	return nil
}

func (t *memoryTx) AssignRequest(ctx context.Context, requestID, technicianID string) error {
	r, exists := t.state.requests[requestID]
	if !exists {
		return ErrNotFound
	}
	if _, exists := t.state.technicians[technicianID]; !exists {
		return ErrNotFound
	}
	r.request.TechnicianID = technicianID
	t.state.requests[requestID] = r
	return nil
}

func (t *memoryTx) DeleteRequestsOf(ctx context.Context, technicianID string) (int64, error) {
	var n int64
	for id, r := range t.state.requests {
		if r.request.TechnicianID == technicianID {
			delete(t.state.requests, id)
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) DeleteTechnician(ctx context.Context, technicianID string) error {
	if _, exists := t.state.technicians[technicianID]; !exists {
		return ErrNotFound
	}
	delete(t.state.technicians, technicianID)
	return nil
}
