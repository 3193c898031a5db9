package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/devrev/dispatchboard/internal/model"
	"github.com/devrev/dispatchboard/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPostgresStore(t *testing.T) *PostgresBoardStore {
	t.Helper()
	cfg := storetest.StartPostgres(t)

	s, err := NewPostgresBoardStore(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.EnsureSchema(context.Background()))
	// Applying twice must be harmless.
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func truncate(t *testing.T, s *PostgresBoardStore) {
	t.Helper()
	_, err := s.pool.Exec(context.Background(), `TRUNCATE requests, masters`)
	require.NoError(t, err)
}

func TestPostgresBoardStore_Contract(t *testing.T) {
	s := newTestPostgresStore(t)

	runBoardStoreContract(t, func(t *testing.T) BoardStore {
		truncate(t, s)
		return s
	})
}

func TestPostgresBoardStore_RejectsNonPositiveComplexity(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTechnician(ctx, &model.Technician{ID: "A", FullName: "Alice"}))

	err := s.WithTx(ctx, func(tx BoardTx) error {
		return tx.InsertRequest(ctx, &model.Request{ID: "r1", Address: "x", Complexity: 0, TechnicianID: "A"})
	})
	assert.Error(t, err)
}

func TestPostgresBoardStore_ForeignKeyMapsToNotFound(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx BoardTx) error {
		return tx.InsertRequest(ctx, &model.Request{ID: "r1", Address: "x", Complexity: 1, TechnicianID: "ghost"})
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

// Locking the technician row serializes concurrent check-then-insert
// sequences against the same technician.
func TestPostgresBoardStore_LockSerializesCapacityChecks(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTechnician(ctx, &model.Technician{ID: "A", FullName: "Alice"}))

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.WithTx(ctx, func(tx BoardTx) error {
				if err := tx.LockTechnician(ctx, "A"); err != nil {
					return err
				}
				total, err := tx.SumComplexity(ctx, "A", "")
				if err != nil {
					return err
				}
				if total+10 > model.CapacityLimit {
					return errAbort
				}
				return tx.InsertRequest(ctx, &model.Request{
					ID:           fmt.Sprintf("r%d", i),
					Address:      "x",
					Complexity:   10,
					TechnicianID: "A",
				})
			})
		}(i)
	}
	wg.Wait()

	board, err := s.LoadBoard(ctx)
	require.NoError(t, err)
	a, _ := board.Technician("A")
	assert.Equal(t, model.CapacityLimit, a.TotalComplexity())
	assert.Len(t, a.Requests, 10)
}
