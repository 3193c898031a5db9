package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	apperrors "github.com/devrev/dispatchboard/internal/errors"
	"github.com/devrev/dispatchboard/internal/metrics"
	"github.com/devrev/dispatchboard/internal/model"
	"github.com/devrev/dispatchboard/internal/store"
	"github.com/devrev/dispatchboard/internal/validation"
	"go.uber.org/zap"
)

// Operation names used for metrics and logs
const (
	OpCreateTechnician = "create_technician"
	OpUpdateTechnician = "update_technician"
	OpDeleteTechnician = "delete_technician"
	OpCreateRequest    = "create_request"
	OpUpdateRequest    = "update_request"
	OpMoveRequest      = "move_request"
	OpDeleteRequest    = "delete_request"
	OpCheckCapacity    = "check_capacity"
	OpBoard            = "board"
)

const (
	cacheInvalidateTimeout = 2 * time.Second
	maxOwnerAttempts       = 3
)

var errOwnerChanged = errors.New("request was reassigned concurrently, retry")

// Options tunes engine behaviour
type Options struct {
	CacheTTL              time.Duration
	EnforceCapacityOnEdit bool
}

// AssignmentService is the capacity-constrained assignment engine. Every
// capacity decision is recomputed from the store inside the transaction that
// performs the write.
type AssignmentService struct {
	store     store.BoardStore
	cache     store.BoardCache
	validator *validation.Validator
	metrics   *metrics.Metrics
	opts      Options
	logger    *zap.Logger
}

// NewAssignmentService creates a new assignment service
func NewAssignmentService(
	boardStore store.BoardStore,
	cache store.BoardCache,
	m *metrics.Metrics,
	opts Options,
	logger *zap.Logger,
) *AssignmentService {
	if cache == nil {
		cache = store.NewNoopBoardCache()
	}
	return &AssignmentService{
		store:     boardStore,
		cache:     cache,
		validator: validation.NewValidator(),
		metrics:   m,
		opts:      opts,
		logger:    logger,
	}
}

// CreateTechnician adds a technician with no requests
func (s *AssignmentService) CreateTechnician(ctx context.Context, technicianID, fullName string) (err error) {
	defer s.observe(OpCreateTechnician, time.Now(), &err)

	if err := s.validator.ValidateTechnician(technicianID, fullName); err != nil {
		return err
	}

	technician := &model.Technician{ID: technicianID, FullName: fullName}
	if err := s.store.CreateTechnician(ctx, technician); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return apperrors.Validation("technicianID", fmt.Sprintf("technician %s already exists", technicianID))
		}
		return internal(OpCreateTechnician, err)
	}

	s.logger.Info("Created technician", zap.String("technician_id", technicianID))
	s.invalidate(ctx)
	return nil
}

// UpdateTechnician renames a technician
func (s *AssignmentService) UpdateTechnician(ctx context.Context, technicianID, fullName string) (err error) {
	defer s.observe(OpUpdateTechnician, time.Now(), &err)

	if err := s.validator.ValidateTechnician(technicianID, fullName); err != nil {
		return err
	}

	if err := s.store.UpdateTechnicianName(ctx, technicianID, fullName); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.TechnicianNotFound(technicianID)
		}
		return internal(OpUpdateTechnician, err)
	}

	s.logger.Info("Updated technician", zap.String("technician_id", technicianID))
	s.invalidate(ctx)
	return nil
}

// DeleteTechnician removes a technician and every request it owns in one
// transaction. It returns the number of requests removed with it.
func (s *AssignmentService) DeleteTechnician(ctx context.Context, technicianID string) (deleted int64, err error) {
	defer s.observe(OpDeleteTechnician, time.Now(), &err)

	if err := s.validator.ValidateID("technicianID", technicianID); err != nil {
		return 0, err
	}

	err = s.store.WithTx(ctx, func(tx store.BoardTx) error {
		if err := tx.LockTechnician(ctx, technicianID); err != nil {
			return notFoundOr(err, apperrors.TechnicianNotFound(technicianID))
		}

		n, err := tx.DeleteRequestsOf(ctx, technicianID)
		if err != nil {
			return err
		}

		if err := tx.DeleteTechnician(ctx, technicianID); err != nil {
			return notFoundOr(err, apperrors.TechnicianNotFound(technicianID))
		}
		deleted = n
		return nil
	})
	if err != nil {
		return 0, internal(OpDeleteTechnician, err)
	}

	s.logger.Info("Deleted technician",
		zap.String("technician_id", technicianID),
		zap.Int64("cascaded_requests", deleted))
	s.invalidate(ctx)
	return deleted, nil
}

// CreateRequest assigns a new request to an existing technician, refusing it
// when the technician's total would pass the capacity ceiling
func (s *AssignmentService) CreateRequest(ctx context.Context, req model.Request) (err error) {
	defer s.observe(OpCreateRequest, time.Now(), &err)

	if err := s.validator.ValidateRequest(req.ID, req.Address, req.Complexity, req.TechnicianID); err != nil {
		return err
	}

	missingTechnician := apperrors.Validation("technicianID",
		fmt.Sprintf("technician %s does not exist", req.TechnicianID))

	err = s.store.WithTx(ctx, func(tx store.BoardTx) error {
		if err := tx.LockTechnician(ctx, req.TechnicianID); err != nil {
			return notFoundOr(err, missingTechnician)
		}

		check, err := s.checkCapacity(ctx, tx, req.TechnicianID, req.Complexity, "")
		if err != nil {
			return err
		}
		if check.WouldExceed {
			return apperrors.CapacityExceeded(req.TechnicianID, check.CurrentTotal, req.Complexity, check.Limit)
		}

		if err := tx.InsertRequest(ctx, &req); err != nil {
			switch {
			case errors.Is(err, store.ErrAlreadyExists):
				return apperrors.Validation("requestID", fmt.Sprintf("request %s already exists", req.ID))
			case errors.Is(err, store.ErrNotFound):
				return missingTechnician
			}
			return err
		}
		return nil
	})
	if err != nil {
		s.logRejection(OpCreateRequest, err, zap.String("request_id", req.ID))
		return internal(OpCreateRequest, err)
	}

	s.logger.Info("Created request",
		zap.String("request_id", req.ID),
		zap.String("technician_id", req.TechnicianID),
		zap.Int("complexity", req.Complexity))
	s.invalidate(ctx)
	return nil
}

// UpdateRequest edits a request's address and complexity. With
// EnforceCapacityOnEdit the new complexity is checked against the owner's
// total excluding the request's old complexity.
func (s *AssignmentService) UpdateRequest(ctx context.Context, requestID, address string, complexity int) (err error) {
	defer s.observe(OpUpdateRequest, time.Now(), &err)

	if err := s.validator.ValidateID("requestID", requestID); err != nil {
		return err
	}
	if err := s.validator.ValidateAddress(address); err != nil {
		return err
	}
	if err := s.validator.ValidateComplexity(complexity); err != nil {
		return err
	}

	err = s.withOwnerRetry(ctx, OpUpdateRequest, func(tx store.BoardTx) error {
		if !s.opts.EnforceCapacityOnEdit {
			if err := tx.UpdateRequestFields(ctx, requestID, address, complexity); err != nil {
				return notFoundOr(err, apperrors.RequestNotFound(requestID))
			}
			return nil
		}

		current, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return notFoundOr(err, apperrors.RequestNotFound(requestID))
		}
		owner := current.TechnicianID

		if _, err := lockTechnicians(ctx, tx, owner); err != nil {
			return ownerLockError(err)
		}
		locked, err := tx.LockRequest(ctx, requestID)
		if err != nil {
			return notFoundOr(err, apperrors.RequestNotFound(requestID))
		}
		if locked.TechnicianID != owner {
			return errOwnerChanged
		}

		check, err := s.checkCapacity(ctx, tx, owner, complexity, requestID)
		if err != nil {
			return err
		}
		if check.WouldExceed {
			return apperrors.CapacityExceeded(owner, check.CurrentTotal, complexity, check.Limit)
		}

		return tx.UpdateRequestFields(ctx, requestID, address, complexity)
	})
	if err != nil {
		s.logRejection(OpUpdateRequest, err, zap.String("request_id", requestID))
		return internal(OpUpdateRequest, err)
	}

	s.logger.Info("Updated request",
		zap.String("request_id", requestID),
		zap.Int("complexity", complexity))
	s.invalidate(ctx)
	return nil
}

// MoveRequest reassigns a request to destTechnicianID. Both the persisted
// owner and the destination are locked, the reassignment is applied and the
// destination total recomputed; when it passes the ceiling the request is
// written back to its owner and the transaction rolled back.
// srcTechnicianID is informational only.
func (s *AssignmentService) MoveRequest(ctx context.Context, requestID, srcTechnicianID, destTechnicianID string) (result *model.MoveResult, err error) {
	defer s.observe(OpMoveRequest, time.Now(), &err)

	if err := s.validator.ValidateID("requestID", requestID); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateID("destTechnicianID", destTechnicianID); err != nil {
		return nil, err
	}

	err = s.withOwnerRetry(ctx, OpMoveRequest, func(tx store.BoardTx) error {
		current, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return notFoundOr(err, apperrors.RequestNotFound(requestID))
		}
		previousOwner := current.TechnicianID

		// The compensating write references the previous owner, so both
		// technician rows are held before anything is written.
		if failed, err := lockTechnicians(ctx, tx, previousOwner, destTechnicianID); err != nil {
			if failed == destTechnicianID {
				return notFoundOr(err, apperrors.TechnicianNotFound(destTechnicianID))
			}
			return ownerLockError(err)
		}

		req, err := tx.LockRequest(ctx, requestID)
		if err != nil {
			return notFoundOr(err, apperrors.RequestNotFound(requestID))
		}
		if req.TechnicianID != previousOwner {
			return errOwnerChanged
		}
		if srcTechnicianID != "" && srcTechnicianID != previousOwner {
			s.logger.Warn("Stale source technician on move",
				zap.String("request_id", requestID),
				zap.String("claimed_source", srcTechnicianID),
				zap.String("persisted_owner", previousOwner))
		}

		if err := tx.AssignRequest(ctx, requestID, destTechnicianID); err != nil {
			return notFoundOr(err, apperrors.TechnicianNotFound(destTechnicianID))
		}

		total, err := tx.SumComplexity(ctx, destTechnicianID, "")
		if err != nil {
			return err
		}
		if total > model.CapacityLimit {
			if err := tx.AssignRequest(ctx, requestID, previousOwner); err != nil {
				return fmt.Errorf("failed to restore request owner: %w", err)
			}
			return apperrors.CapacityExceeded(destTechnicianID, total-req.Complexity, req.Complexity, model.CapacityLimit)
		}

		result = &model.MoveResult{
			RequestID:        requestID,
			FromTechnicianID: previousOwner,
			ToTechnicianID:   destTechnicianID,
			DestinationTotal: total,
		}
		return nil
	})
	if err != nil {
		s.logRejection(OpMoveRequest, err,
			zap.String("request_id", requestID),
			zap.String("dest_technician_id", destTechnicianID))
		return nil, internal(OpMoveRequest, err)
	}

	s.logger.Info("Moved request",
		zap.String("request_id", requestID),
		zap.String("from", result.FromTechnicianID),
		zap.String("to", result.ToTechnicianID),
		zap.Int("destination_total", result.DestinationTotal))
	s.invalidate(ctx)
	return result, nil
}

// DeleteRequest removes a request. Deleting an absent request succeeds.
func (s *AssignmentService) DeleteRequest(ctx context.Context, requestID string) (err error) {
	defer s.observe(OpDeleteRequest, time.Now(), &err)

	if err := s.validator.ValidateID("requestID", requestID); err != nil {
		return err
	}

	found, err := s.store.DeleteRequest(ctx, requestID)
	if err != nil {
		return internal(OpDeleteRequest, err)
	}
	if !found {
		s.logger.Warn("Delete of unknown request ignored", zap.String("request_id", requestID))
		return nil
	}

	s.logger.Info("Deleted request", zap.String("request_id", requestID))
	s.invalidate(ctx)
	return nil
}

// CheckCapacity reports whether adding additional complexity to a technician
// would pass the ceiling. Nothing is written.
func (s *AssignmentService) CheckCapacity(ctx context.Context, technicianID string, additional int) (check model.CapacityCheck, err error) {
	defer s.observe(OpCheckCapacity, time.Now(), &err)

	if err := s.validator.ValidateID("technicianID", technicianID); err != nil {
		return model.CapacityCheck{}, err
	}
	if additional < 0 {
		return model.CapacityCheck{}, apperrors.Validation("additional",
			fmt.Sprintf("must not be negative, got %d", additional))
	}

	err = s.store.WithTx(ctx, func(tx store.BoardTx) error {
		if err := tx.LockTechnician(ctx, technicianID); err != nil {
			return notFoundOr(err, apperrors.TechnicianNotFound(technicianID))
		}
		var err error
		check, err = s.checkCapacity(ctx, tx, technicianID, additional, "")
		return err
	})
	if err != nil {
		return model.CapacityCheck{}, internal(OpCheckCapacity, err)
	}
	return check, nil
}

// Board returns every technician with its requests, ordered by technician ID.
// The returned board may be shared with other callers and must not be
// modified.
func (s *AssignmentService) Board(ctx context.Context) (board *model.Board, err error) {
	defer s.observe(OpBoard, time.Now(), &err)

	gen, genErr := s.cache.Generation(ctx)
	if genErr != nil {
		s.metrics.RecordBoardCache(metrics.CacheError)
		s.logger.Warn("Board cache unavailable, reading from store", zap.Error(genErr))
		return s.loadBoard(ctx)
	}

	if cached, err := s.cache.Get(ctx, gen); err == nil {
		s.metrics.RecordBoardCache(metrics.CacheHit)
		return cached, nil
	} else if errors.Is(err, store.ErrNotFound) {
		s.metrics.RecordBoardCache(metrics.CacheMiss)
	} else {
		s.metrics.RecordBoardCache(metrics.CacheError)
		s.logger.Warn("Failed to read board cache", zap.Error(err))
	}

	board, err = s.loadBoard(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, gen, board, s.opts.CacheTTL); err != nil {
		s.logger.Warn("Failed to cache board", zap.Uint64("generation", gen), zap.Error(err))
	}
	return board, nil
}

func (s *AssignmentService) loadBoard(ctx context.Context) (*model.Board, error) {
	board, err := s.store.LoadBoard(ctx)
	if err != nil {
		return nil, internal(OpBoard, err)
	}
	return board, nil
}

// checkCapacity sums the technician's requests on tx, leaving out
// excludingRequestID when set
func (s *AssignmentService) checkCapacity(ctx context.Context, tx store.BoardTx, technicianID string, additional int, excludingRequestID string) (model.CapacityCheck, error) {
	current, err := tx.SumComplexity(ctx, technicianID, excludingRequestID)
	if err != nil {
		return model.CapacityCheck{}, err
	}
	return model.NewCapacityCheck(technicianID, current, additional), nil
}

// invalidate bumps the board cache generation after a committed write. It
// outlives request cancellation so a committed write is never followed by a
// stale read.
func (s *AssignmentService) invalidate(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheInvalidateTimeout)
	defer cancel()

	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("Failed to invalidate board cache", zap.Error(err))
	}
}

func (s *AssignmentService) observe(op string, start time.Time, errp *error) {
	if s.metrics == nil {
		return
	}
	outcome := metrics.OutcomeOK
	if *errp != nil {
		kind := apperrors.KindOf(*errp)
		outcome = kind.String()
		if kind == apperrors.KindCapacityExceeded {
			s.metrics.RecordCapacityRejection(op)
		}
	}
	s.metrics.RecordOperation(op, outcome, time.Since(start))
}

func (s *AssignmentService) logRejection(op string, err error, fields ...zap.Field) {
	ce, ok := apperrors.AsCapacityExceeded(err)
	if !ok {
		return
	}
	s.logger.Info("Capacity exceeded",
		append(fields,
			zap.String("operation", op),
			zap.String("technician_id", ce.TechnicianID),
			zap.Int("current", ce.Current),
			zap.Int("attempted", ce.Attempted),
			zap.Int("limit", ce.Limit))...)
}

// notFoundOr replaces store.ErrNotFound with target
// withOwnerRetry runs fn in a transaction, starting over when the request's
// owner changed between the unlocked read and the row locks
func (s *AssignmentService) withOwnerRetry(ctx context.Context, op string, fn func(tx store.BoardTx) error) error {
	var err error
	for attempt := 1; attempt <= maxOwnerAttempts; attempt++ {
		err = s.store.WithTx(ctx, fn)
		if !errors.Is(err, errOwnerChanged) {
			return err
		}
		s.logger.Debug("Request owner changed before lock, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt))
	}
	return err
}

// lockTechnicians locks the distinct technician rows in ascending ID order.
// On failure it returns the ID that could not be locked.
func lockTechnicians(ctx context.Context, tx store.BoardTx, technicianIDs ...string) (string, error) {
	ids := make([]string, 0, len(technicianIDs))
	for _, id := range technicianIDs {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	for _, id := range ids {
		if err := tx.LockTechnician(ctx, id); err != nil {
			return id, err
		}
	}
	return "", nil
}

// ownerLockError maps a failed lock on a request's owner. An owner that has
// vanished took the request with it, so the caller re-reads.
func ownerLockError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return errOwnerChanged
	}
	return err
}

func notFoundOr(err error, target error) error {
	if errors.Is(err, store.ErrNotFound) {
		return target
	}
	return err
}

// internal wraps err as an InternalError unless it is already classified
func internal(op string, err error) error {
	var k interface{ Kind() apperrors.Kind }
	if errors.As(err, &k) {
		return err
	}
	return apperrors.Internal(op, err)
}
