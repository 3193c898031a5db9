package store

import (
	"context"
	"errors"
	"testing"

	"github.com/devrev/dispatchboard/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errAbort = errors.New("abort")

// runBoardStoreContract exercises behaviour every BoardStore must share
func runBoardStoreContract(t *testing.T, newStore func(t *testing.T) BoardStore) {
	ctx := context.Background()

	seed := func(t *testing.T, s BoardStore) {
		require.NoError(t, s.CreateTechnician(ctx, &model.Technician{ID: "B", FullName: "Bob"}))
		require.NoError(t, s.CreateTechnician(ctx, &model.Technician{ID: "A", FullName: "Alice"}))
		require.NoError(t, s.WithTx(ctx, func(tx BoardTx) error {
			if err := tx.InsertRequest(ctx, &model.Request{ID: "r1", Address: "1 Main St", Complexity: 30, TechnicianID: "A"}); err != nil {
				return err
			}
			return tx.InsertRequest(ctx, &model.Request{ID: "r2", Address: "2 Main St", Complexity: 20, TechnicianID: "A"})
		}))
	}

	t.Run("LoadBoardOrdering", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)
		require.NoError(t, s.CreateTechnician(ctx, &model.Technician{ID: "C", FullName: "Carol"}))

		board, err := s.LoadBoard(ctx)
		require.NoError(t, err)
		require.Len(t, board.Technicians, 3)
		assert.Equal(t, "A", board.Technicians[0].ID)
		assert.Equal(t, "B", board.Technicians[1].ID)
		assert.Equal(t, "C", board.Technicians[2].ID)

		a := board.Technicians[0]
		require.Len(t, a.Requests, 2)
		assert.Equal(t, "r1", a.Requests[0].ID)
		assert.Equal(t, "r2", a.Requests[1].ID)
		assert.Equal(t, 50, a.TotalComplexity())

		assert.NotNil(t, board.Technicians[1].Requests)
		assert.Empty(t, board.Technicians[1].Requests)
	})

	t.Run("LoadBoardOrdersIDsBytewise", func(t *testing.T) {
		s := newStore(t)
		for _, id := range []string{"b", "B", "a", "_x", "Z"} {
			require.NoError(t, s.CreateTechnician(ctx, &model.Technician{ID: id, FullName: "Tech " + id}))
		}

		board, err := s.LoadBoard(ctx)
		require.NoError(t, err)
		ids := make([]string, 0, len(board.Technicians))
		for _, tech := range board.Technicians {
			ids = append(ids, tech.ID)
		}
		assert.Equal(t, []string{"B", "Z", "_x", "a", "b"}, ids)
	})

	t.Run("EmptyBoard", func(t *testing.T) {
		s := newStore(t)
		board, err := s.LoadBoard(ctx)
		require.NoError(t, err)
		assert.NotNil(t, board.Technicians)
		assert.Empty(t, board.Technicians)
	})

	t.Run("DuplicateTechnician", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)
		err := s.CreateTechnician(ctx, &model.Technician{ID: "A", FullName: "Again"})
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("DuplicateRequest", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)
		err := s.WithTx(ctx, func(tx BoardTx) error {
			return tx.InsertRequest(ctx, &model.Request{ID: "r1", Address: "x", Complexity: 1, TechnicianID: "B"})
		})
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("UpdateTechnicianName", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)
		require.NoError(t, s.UpdateTechnicianName(ctx, "A", "Alicia"))
		assert.ErrorIs(t, s.UpdateTechnicianName(ctx, "Z", "Nobody"), ErrNotFound)

		board, err := s.LoadBoard(ctx)
		require.NoError(t, err)
		a, ok := board.Technician("A")
		require.True(t, ok)
		assert.Equal(t, "Alicia", a.FullName)
	})

	t.Run("DeleteRequest", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)
		found, err := s.DeleteRequest(ctx, "r1")
		require.NoError(t, err)
		assert.True(t, found)

		found, err = s.DeleteRequest(ctx, "r1")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("RollbackDiscardsWrites", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)
		err := s.WithTx(ctx, func(tx BoardTx) error {
			if err := tx.AssignRequest(ctx, "r1", "B"); err != nil {
				return err
			}
			if _, err := tx.DeleteRequestsOf(ctx, "A"); err != nil {
				return err
			}
			return errAbort
		})
		assert.ErrorIs(t, err, errAbort)

		board, err := s.LoadBoard(ctx)
		require.NoError(t, err)
		a, _ := board.Technician("A")
		b, _ := board.Technician("B")
		assert.Len(t, a.Requests, 2)
		assert.Empty(t, b.Requests)
	})

	t.Run("TxOperations", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)
		err := s.WithTx(ctx, func(tx BoardTx) error {
			assert.NoError(t, tx.LockTechnician(ctx, "A"))
			assert.ErrorIs(t, tx.LockTechnician(ctx, "Z"), ErrNotFound)

			req, err := tx.LockRequest(ctx, "r1")
			require.NoError(t, err)
			assert.Equal(t, "A", req.TechnicianID)
			assert.Equal(t, 30, req.Complexity)

			_, err = tx.GetRequest(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			total, err := tx.SumComplexity(ctx, "A", "")
			require.NoError(t, err)
			assert.Equal(t, 50, total)

			total, err = tx.SumComplexity(ctx, "A", "r1")
			require.NoError(t, err)
			assert.Equal(t, 20, total)

			total, err = tx.SumComplexity(ctx, "B", "")
			require.NoError(t, err)
			assert.Equal(t, 0, total)

			require.NoError(t, tx.UpdateRequestFields(ctx, "r2", "22 Main St", 25))
			assert.ErrorIs(t, tx.UpdateRequestFields(ctx, "missing", "x", 1), ErrNotFound)
			assert.ErrorIs(t, tx.AssignRequest(ctx, "missing", "B"), ErrNotFound)
			return nil
		})
		require.NoError(t, err)

		board, err := s.LoadBoard(ctx)
		require.NoError(t, err)
		a, _ := board.Technician("A")
		assert.Equal(t, 55, a.TotalComplexity())
		assert.Equal(t, "22 Main St", a.Requests[1].Address)
	})

	t.Run("CascadeDelete", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)
		var deleted int64
		err := s.WithTx(ctx, func(tx BoardTx) error {
			var err error
			if deleted, err = tx.DeleteRequestsOf(ctx, "A"); err != nil {
				return err
			}
			return tx.DeleteTechnician(ctx, "A")
		})
		require.NoError(t, err)
		assert.EqualValues(t, 2, deleted)

		board, err := s.LoadBoard(ctx)
		require.NoError(t, err)
		require.Len(t, board.Technicians, 1)
		assert.Equal(t, "B", board.Technicians[0].ID)

		err = s.WithTx(ctx, func(tx BoardTx) error {
			return tx.DeleteTechnician(ctx, "A")
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
