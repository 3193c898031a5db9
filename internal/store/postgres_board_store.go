package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/devrev/dispatchboard/internal/config"
	"github.com/devrev/dispatchboard/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgresBoardStore implements BoardStore for PostgreSQL
type PostgresBoardStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresBoardStore creates a new PostgreSQL board store
func NewPostgresBoardStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*PostgresBoardStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s pool_max_conns=%d pool_min_conns=%d",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, cfg.SSLMode,
		cfg.MaxConnections, cfg.MinConnections,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
	)

	return &PostgresBoardStore{
		pool:   pool,
		logger: logger,
	}, nil
}

// WithTx runs fn in a READ COMMITTED transaction. Capacity checks rely on
// row locks rather than the isolation level.
func (s *PostgresBoardStore) WithTx(ctx context.Context, fn func(tx BoardTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&postgresBoardTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("Failed to roll back transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateTechnician inserts a new technician
func (s *PostgresBoardStore) CreateTechnician(ctx context.Context, technician *model.Technician) error {
	query := `INSERT INTO masters (id, full_name) VALUES ($1, $2)`

	if _, err := s.pool.Exec(ctx, query, technician.ID, technician.FullName); err != nil {
		return classifyPgError("failed to create technician", err)
	}
	return nil
}

// UpdateTechnicianName renames a technician
func (s *PostgresBoardStore) UpdateTechnicianName(ctx context.Context, technicianID, fullName string) error {
	query := `UPDATE masters SET full_name = $2 WHERE id = $1`

	result, err := s.pool.Exec(ctx, query, technicianID, fullName)
	if err != nil {
		return fmt.Errorf("failed to update technician: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRequest removes a request. The bool reports whether a row existed.
func (s *PostgresBoardStore) DeleteRequest(ctx context.Context, requestID string) (bool, error) {
	query := `DELETE FROM requests WHERE id = $1`

	result, err := s.pool.Exec(ctx, query, requestID)
	if err != nil {
		return false, fmt.Errorf("failed to delete request: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// LoadBoard reads every technician with its requests in one statement, so the
// result reflects a single snapshot.
func (s *PostgresBoardStore) LoadBoard(ctx context.Context) (*model.Board, error) {
	query := `
		SELECT m.id, m.full_name, r.id, r.address, r.complexity
		FROM masters m
		LEFT JOIN requests r ON r.master_id = m.id
		ORDER BY m.id COLLATE "C", r.created_at, r.id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load board: %w", err)
	}
	defer rows.Close()

	board := &model.Board{Technicians: []model.BoardTechnician{}}
	for rows.Next() {
		var (
			technicianID, fullName string
			requestID, address     *string
			complexity             *int32
		)
		if err := rows.Scan(&technicianID, &fullName, &requestID, &address, &complexity); err != nil {
			return nil, fmt.Errorf("failed to scan board row: %w", err)
		}

		n := len(board.Technicians)
		if n == 0 || board.Technicians[n-1].ID != technicianID {
			board.Technicians = append(board.Technicians, model.BoardTechnician{
				Technician: model.Technician{ID: technicianID, FullName: fullName},
				Requests:   []model.Request{},
			})
			n++
		}

		if requestID == nil {
			continue
		}
		current := &board.Technicians[n-1]
		current.Requests = append(current.Requests, model.Request{
			ID:           *requestID,
			Address:      *address,
			Complexity:   int(*complexity),
			TechnicianID: technicianID,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate board rows: %w", err)
	}

	return board, nil
}

// EnsureSchema applies the embedded DDL
func (s *PostgresBoardStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	s.logger.Info("Database schema ensured")
	return nil
}

// Ping checks database connectivity
func (s *PostgresBoardStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresBoardStore) Close() {
	s.pool.Close()
}

type postgresBoardTx struct {
	tx pgx.Tx
}

func (t *postgresBoardTx) LockTechnician(ctx context.Context, technicianID string) error {
	query := `SELECT id FROM masters WHERE id = $1 FOR UPDATE`

	var id string
	if err := t.tx.QueryRow(ctx, query, technicianID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock technician: %w", err)
	}
	return nil
}

func (t *postgresBoardTx) GetRequest(ctx context.Context, requestID string) (*model.Request, error) {
	return t.selectRequest(ctx, `
		SELECT id, address, complexity, master_id
		FROM requests
		WHERE id = $1
	`, requestID)
}

func (t *postgresBoardTx) LockRequest(ctx context.Context, requestID string) (*model.Request, error) {
	return t.selectRequest(ctx, `
		SELECT id, address, complexity, master_id
		FROM requests
		WHERE id = $1
		FOR UPDATE
	`, requestID)
}

func (t *postgresBoardTx) selectRequest(ctx context.Context, query, requestID string) (*model.Request, error) {
	var (
		req        model.Request
		complexity int32
	)
	err := t.tx.QueryRow(ctx, query, requestID).Scan(
		&req.ID,
		&req.Address,
		&complexity,
		&req.TechnicianID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	req.Complexity = int(complexity)
	return &req, nil
}

func (t *postgresBoardTx) SumComplexity(ctx context.Context, technicianID, excludingRequestID string) (int, error) {
	query := `
		SELECT COALESCE(SUM(complexity), 0)
		FROM requests
		WHERE master_id = $1 AND id <> $2
	`

	var total int64
	if err := t.tx.QueryRow(ctx, query, technicianID, excludingRequestID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum complexity: %w", err)
	}
	return int(total), nil
}

func (t *postgresBoardTx) InsertRequest(ctx context.Context, request *model.Request) error {
	query := `
		INSERT INTO requests (id, address, complexity, master_id)
		VALUES ($1, $2, $3, $4)
	`

	_, err := t.tx.Exec(ctx, query,
		request.ID,
		request.Address,
		request.Complexity,
		request.TechnicianID,
	)
	if err != nil {
		return classifyPgError("failed to insert request", err)
	}
	return nil
}

func (t *postgresBoardTx) UpdateRequestFields(ctx context.Context, requestID, address string, complexity int) error {
	query := `UPDATE requests SET address = $2, complexity = $3 WHERE id = $1`

	result, err := t.tx.Exec(ctx, query, requestID, address, complexity)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *postgresBoardTx) AssignRequest(ctx context.Context, requestID, technicianID string) error {
	query := `UPDATE requests SET master_id = $2 WHERE id = $1`

	result, err := t.tx.Exec(ctx, query, requestID, technicianID)
	if err != nil {
		return classifyPgError("failed to reassign request", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *postgresBoardTx) DeleteRequestsOf(ctx context.Context, technicianID string) (int64, error) {
	query := `DELETE FROM requests WHERE master_id = $1`

	result, err := t.tx.Exec(ctx, query, technicianID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete technician requests: %w", err)
	}
	return result.RowsAffected(), nil
}

func (t *postgresBoardTx) DeleteTechnician(ctx context.Context, technicianID string) error {
	query := `DELETE FROM masters WHERE id = $1`

	result, err := t.tx.Exec(ctx, query, technicianID)
	if err != nil {
		return fmt.Errorf("failed to delete technician: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// classifyPgError maps constraint violations onto the store sentinels
func classifyPgError(msg string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", msg, ErrAlreadyExists)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w", msg, ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
