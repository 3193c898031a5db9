package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	apperrors "github.com/devrev/dispatchboard/internal/errors"
	"github.com/devrev/dispatchboard/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTechnician(t *testing.T, svc *AssignmentService, id string) {
	t.Helper()
	require.NoError(t, svc.CreateTechnician(context.Background(), id, "Technician "+id))
}

func mustRequest(t *testing.T, svc *AssignmentService, id, technicianID string, complexity int) {
	t.Helper()
	require.NoError(t, svc.CreateRequest(context.Background(), model.Request{
		ID:           id,
		Address:      "Address of " + id,
		Complexity:   complexity,
		TechnicianID: technicianID,
	}))
}

func totals(t *testing.T, svc *AssignmentService) map[string]int {
	t.Helper()
	board, err := svc.Board(context.Background())
	require.NoError(t, err)

	out := make(map[string]int, len(board.Technicians))
	for _, tech := range board.Technicians {
		out[tech.ID] = tech.TotalComplexity()
	}
	return out
}

func ownerOf(t *testing.T, svc *AssignmentService, requestID string) string {
	t.Helper()
	board, err := svc.Board(context.Background())
	require.NoError(t, err)

	for _, tech := range board.Technicians {
		for _, r := range tech.Requests {
			if r.ID == requestID {
				return tech.ID
			}
		}
	}
	return ""
}

// runAssignmentScenarios holds the behaviour every store backend must give
// the engine
func runAssignmentScenarios(t *testing.T, newService func(t *testing.T, opts Options) *AssignmentService) {
	ctx := context.Background()
	defaults := Options{EnforceCapacityOnEdit: true}

	t.Run("OversizedComplexityCannotWrapTotal", func(t *testing.T) {
		svc := newService(t, defaults)
		mustTechnician(t, svc, "A")
		mustRequest(t, svc, "r1", "A", 10)

		err := svc.CreateRequest(ctx, model.Request{ID: "r2", Address: "x", Complexity: math.MaxInt, TechnicianID: "A"})
		assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
		err = svc.CreateRequest(ctx, model.Request{ID: "r2", Address: "x", Complexity: model.CapacityLimit + 1, TechnicianID: "A"})
		assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
		err = svc.UpdateRequest(ctx, "r1", "x", math.MaxInt)
		assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
		assert.Equal(t, 10, totals(t, svc)["A"])

		check, err := svc.CheckCapacity(ctx, "A", math.MaxInt-5)
		require.NoError(t, err)
		assert.True(t, check.WouldExceed)
		assert.Equal(t, 90, check.Remaining())
	})

	t.Run("CrossingRejectedMovesBothReportCapacity", func(t *testing.T) {
		svc := newService(t, defaults)
		mustTechnician(t, svc, "A")
		mustTechnician(t, svc, "B")
		mustRequest(t, svc, "ra", "A", 60)
		mustRequest(t, svc, "rb", "B", 60)

		for round := 0; round < 10; round++ {
			var (
				start  = make(chan struct{})
				wg     sync.WaitGroup
				errAtB error
				errAtA error
			)
			wg.Add(2)
			go func() {
				defer wg.Done()
				<-start
				_, errAtB = svc.MoveRequest(ctx, "ra", "A", "B")
			}()
			go func() {
				defer wg.Done()
				<-start
				_, errAtA = svc.MoveRequest(ctx, "rb", "B", "A")
			}()
			close(start)
			wg.Wait()

			require.True(t, apperrors.IsKind(errAtB, apperrors.KindCapacityExceeded), "round %d: %v", round, errAtB)
			require.True(t, apperrors.IsKind(errAtA, apperrors.KindCapacityExceeded), "round %d: %v", round, errAtA)
		}

		assert.Equal(t, map[string]int{"A": 60, "B": 60}, totals(t, svc))
		assert.Equal(t, "A", ownerOf(t, svc, "ra"))
		assert.Equal(t, "B", ownerOf(t, svc, "rb"))
	})

	t.Run("CreateOverCapacityWritesNothing", func(t *testing.T) {
		svc := newService(t, defaults)
		mustTechnician(t, svc, "A")
		mustRequest(t, svc, "r1", "A", 95)

		err := svc.CreateRequest(ctx, model.Request{ID: "r2", Address: "x", Complexity: 10, TechnicianID: "A"})
		require.Error(t, err)
		ce, ok := apperrors.AsCapacityExceeded(err)
		require.True(t, ok)
		assert.Equal(t, "A", ce.TechnicianID)
		assert.Equal(t, 95, ce.Current)
		assert.Equal(t, 10, ce.Attempted)
		assert.Equal(t, model.CapacityLimit, ce.Limit)

		assert.Equal(t, 95, totals(t, svc)["A"])
		assert.Empty(t, ownerOf(t, svc, "r2"))
	})

	t.Run("CreateUpToExactlyTheLimit", func(t *testing.T) {
		svc := newService(t, defaults)
		mustTechnician(t, svc, "A")
		mustRequest(t, svc, "r1", "A", 60)
		mustRequest(t, svc, "r2", "A", 40)
		assert.Equal(t, 100, totals(t, svc)["A"])

		err := svc.CreateRequest(ctx, model.Request{ID: "r3", Address: "x", Complexity: 1, TechnicianID: "A"})
		assert.True(t, apperrors.IsKind(err, apperrors.KindCapacityExceeded))
	})

	t.Run("CreateForUnknownTechnician", func(t *testing.T) {
		svc := newService(t, defaults)
		err := svc.CreateRequest(ctx, model.Request{ID: "r1", Address: "x", Complexity: 5, TechnicianID: "ghost"})
		assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	})

	t.Run("CreateDuplicateRequest", func(t *testing.T) {
		svc := newService(t, defaults)
		mustTechnician(t, svc, "A")
		mustRequest(t, svc, "r1", "A", 5)

		err := svc.CreateRequest(ctx, model.Request{ID: "r1", Address: "x", Complexity: 5, TechnicianID: "A"})
		assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
		assert.Equal(t, 5, totals(t, svc)["A"])
	})

	t.Run("CreateDuplicateTechnician", func(t *testing.T) {
		svc := newService(t, defaults)
		mustTechnician(t, svc, "A")
		err := svc.CreateTechnician(ctx, "A", "Someone else")
		assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	})

	t.Run("MoveOverCapacityStaysWithSource", func(t *testing.T) {
		svc := newService(t, defaults)
		mustTechnician(t, svc, "A")
		mustTechnician(t, svc, "B")
		mustRequest(t, svc, "r1", "A", 15)
		mustRequest(t, svc, "r2", "A", 35)
		mustRequest(t, svc, "r3", "B", 90)

		result, err := svc.MoveRequest(ctx, "r1", "A", "B")
		require.Error(t, err)
		assert.Nil(t, result)
		ce, ok := apperrors.AsCapacityExceeded(err)
		require.True(t, ok)
		assert.Equal(t, "B", ce.TechnicianID)
		assert.Equal(t, 90, ce.Current)
		assert.Equal(t, 15, ce.Attempted)

		assert.Equal(t, "A", ownerOf(t, svc, "r1"))
		got := totals(t, svc)
		assert.Equal(t, 50, got["A"])
		assert.Equal(t, 90, got["B"])
	})

	t.Run("MoveWithinCapacity", func(t *testing.T) {
		svc := newService(t, defaults)
		mustTechnician(t, svc, "A")
		mustTechnician(t, svc, "B")
		mustRequest(t, svc, "r1", "A", 10)
		mustRequest(t, svc, "r2", "A", 40)
		mustRequest(t, svc, "r3", "B", 60)

		result, err := svc.MoveRequest(ctx, "r1", "A", "B")
		require.NoError(t, err)
		assert.Equal(t, &model.MoveResult{
			RequestID:        "r1",
			FromTechnicianID: "A",
			ToTechnicianID:   "B",
			DestinationTotal: 70,
		}, result)

		got := totals(t, svc)
		assert.Equal(t, 40, got["A"])
		assert.Equal(t, 70, got["B"])
		assert.Equal(t, "B", ownerOf(t, svc, "r1"))
	})

	t.Run("MoveIgnoresStaleSource", func(t *testing.T) {
		svc := newService(t, defaults)
		mustTechnician(t, svc, "A")
		mustTechnician(t, svc, "B")
		mustTechnician(t, svc, "C")
		mustRequest(t, svc, "r1", "A", 10)

		result, err := svc.MoveRequest(ctx, "r1", "C", "B")
		require.NoError(t, err)
		assert.Equal(t, "A", result.FromTechnicianID)
		assert.Equal(t, "B", ownerOf(t, svc, "r1"))
	})

	t.Run("MoveRejectedRestoresPersistedOwner", func(t *testing.T) {
		svc := newService(t, defaults)
		mustTechnician(t, svc, "A")
		mustTechnician(t, svc, "B")
		mustTechnician(t, svc, "C")
		mustRequest(t, svc, "r1", "A", 20)
		mustRequest(t, svc, "r2", "B", 90)

		// The caller claims C owns r1; rollback must still leave it with A.
		_, err := svc.MoveRequest(ctx, "r1", "C", "B")
		assert.True(t, apperrors.IsKind(err, apperrors.KindCapacityExceeded))
		assert.Equal(t, "A", ownerOf(t, svc, "r1"))
	})

	t.Run("MoveToCurrentOwner", func(t *testing.T) {
		svc := newService(t, defaults)
		mustTechnician(t, svc, "A")
		mustRequest(t, svc, "r1", "A", 100)

		result, err := svc.MoveRequest(ctx, "r1", "A", "A")
		require.NoError(t, err)
		assert.Equal(t, 100, result.DestinationTotal)
	})

	t.Run("MoveMissingEntities", func(t *testing.T) {
		svc := newService(t, defaults)
		mustTechnician(t, svc, "A")
		mustRequest(t, svc, "r1", "A", 10)

		_, err := svc.MoveRequest(ctx, "missing", "A", "A")
		assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

		_, err = svc.MoveRequest(ctx, "r1", "A", "ghost")
		assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
		assert.Equal(t, "A", ownerOf(t, svc, "r1"))

		_, err = svc.MoveRequest(ctx, "r1", "A", "")
		assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	})

	t.Run("CascadeDelete", func(t *testing.T) {
		svc := newService(t, defaults)
		mustTechnician(t, svc, "A")
		mustTechnician(t, svc, "B")
		mustRequest(t, svc, "r1", "A", 10)
		mustRequest(t, svc, "r2", "A", 20)
		mustRequest(t, svc, "r3", "A", 30)
		mustRequest(t, svc, "r4", "B", 5)

		deleted, err := svc.DeleteTechnician(ctx, "A")
		require.NoError(t, err)
		assert.EqualValues(t, 3, deleted)

		board, err := svc.Board(ctx)
		require.NoError(t, err)
		require.Len(t, board.Technicians, 1)
		assert.Equal(t, "B", board.Technicians[0].ID)

		// The cascaded IDs are free again.
		mustRequest(t, svc, "r1", "B", 10)
	})

	t.Run("DeleteMissingTechnician", func(t *testing.T) {
		svc := newService(t, defaults)
		_, err := svc.DeleteTechnician(ctx, "ghost")
		assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	})

	t.Run("DeleteRequest", func(t *testing.T) {
		svc := newService(t, defaults)
		mustTechnician(t, svc, "A")
		mustRequest(t, svc, "r1", "A", 10)

		require.NoError(t, svc.DeleteRequest(ctx, "r1"))
		assert.Equal(t, 0, totals(t, svc)["A"])

		// Unknown IDs are ignored.
		assert.NoError(t, svc.DeleteRequest(ctx, "r1"))
		assert.True(t, apperrors.IsKind(svc.DeleteRequest(ctx, ""), apperrors.KindValidation))
	})

	t.Run("UpdateTechnician", func(t *testing.T) {
		svc := newService(t, defaults)
		mustTechnician(t, svc, "A")

		require.NoError(t, svc.UpdateTechnician(ctx, "A", "Alice Smith"))
		board, err := svc.Board(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Alice Smith", board.Technicians[0].FullName)

		assert.True(t, apperrors.IsKind(svc.UpdateTechnician(ctx, "ghost", "x"), apperrors.KindNotFound))
		assert.True(t, apperrors.IsKind(svc.UpdateTechnician(ctx, "A", " "), apperrors.KindValidation))
	})

	t.Run("UpdateRequestChecksCapacity", func(t *testing.T) {
		svc := newService(t, defaults)
		mustTechnician(t, svc, "A")
		mustRequest(t, svc, "r1", "A", 60)
		mustRequest(t, svc, "r2", "A", 30)

		err := svc.UpdateRequest(ctx, "r2", "New address", 45)
		ce, ok := apperrors.AsCapacityExceeded(err)
		require.True(t, ok)
		assert.Equal(t, 60, ce.Current)
		assert.Equal(t, 45, ce.Attempted)
		assert.Equal(t, 90, totals(t, svc)["A"])

		require.NoError(t, svc.UpdateRequest(ctx, "r2", "New address", 40))
		assert.Equal(t, 100, totals(t, svc)["A"])

		err = svc.UpdateRequest(ctx, "missing", "x", 1)
		assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
		err = svc.UpdateRequest(ctx, "r2", "x", 0)
		assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	})

	t.Run("UpdateRequestWithoutCapacityCheck", func(t *testing.T) {
		svc := newService(t, Options{EnforceCapacityOnEdit: false})
		mustTechnician(t, svc, "A")
		mustRequest(t, svc, "r1", "A", 60)
		mustRequest(t, svc, "r2", "A", 30)

		require.NoError(t, svc.UpdateRequest(ctx, "r2", "x", 45))
		assert.Equal(t, 105, totals(t, svc)["A"])

		err := svc.UpdateRequest(ctx, "missing", "x", 1)
		assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	})

	t.Run("CheckCapacity", func(t *testing.T) {
		svc := newService(t, defaults)
		mustTechnician(t, svc, "A")
		mustRequest(t, svc, "r1", "A", 70)

		check, err := svc.CheckCapacity(ctx, "A", 30)
		require.NoError(t, err)
		assert.Equal(t, 70, check.CurrentTotal)
		assert.Equal(t, 30, check.Remaining())
		assert.False(t, check.WouldExceed)

		check, err = svc.CheckCapacity(ctx, "A", 31)
		require.NoError(t, err)
		assert.True(t, check.WouldExceed)

		_, err = svc.CheckCapacity(ctx, "ghost", 1)
		assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
		_, err = svc.CheckCapacity(ctx, "A", -1)
		assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	})

	t.Run("BoardIsRepeatable", func(t *testing.T) {
		svc := newService(t, defaults)
		mustTechnician(t, svc, "B")
		mustTechnician(t, svc, "A")
		mustRequest(t, svc, "r1", "B", 10)

		first, err := svc.Board(ctx)
		require.NoError(t, err)
		second, err := svc.Board(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, "A", first.Technicians[0].ID)
	})

	t.Run("ConcurrentCreatesRespectCeiling", func(t *testing.T) {
		svc := newService(t, defaults)
		mustTechnician(t, svc, "A")

		var (
			wg       sync.WaitGroup
			accepted atomic.Int32
		)
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := svc.CreateRequest(ctx, model.Request{
					ID:           fmt.Sprintf("r%d", i),
					Address:      "x",
					Complexity:   10,
					TechnicianID: "A",
				})
				if err == nil {
					accepted.Add(1)
					return
				}
				assert.True(t, apperrors.IsKind(err, apperrors.KindCapacityExceeded), "unexpected error: %v", err)
			}(i)
		}
		wg.Wait()

		assert.EqualValues(t, 10, accepted.Load())
		assert.Equal(t, 100, totals(t, svc)["A"])
	})

	t.Run("ConcurrentMovesRespectCeiling", func(t *testing.T) {
		svc := newService(t, defaults)
		mustTechnician(t, svc, "dest")
		mustRequest(t, svc, "base", "dest", 50)
		for i := 0; i < 10; i++ {
			src := fmt.Sprintf("src%d", i)
			mustTechnician(t, svc, src)
			mustRequest(t, svc, fmt.Sprintf("m%d", i), src, 20)
		}

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _ = svc.MoveRequest(ctx, fmt.Sprintf("m%d", i), fmt.Sprintf("src%d", i), "dest")
			}(i)
		}
		wg.Wait()

		got := totals(t, svc)
		assert.Equal(t, 90, got["dest"])
		moved := 0
		for i := 0; i < 10; i++ {
			if got[fmt.Sprintf("src%d", i)] == 0 {
				moved++
			}
		}
		assert.Equal(t, 2, moved)
	})
}
