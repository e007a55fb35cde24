package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/errand/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCheckpointStoreContract runs a suite of tests to verify that a
// CheckpointStore implementation adheres to the defined interface contract.
func RunCheckpointStoreContract(t *testing.T, store CheckpointStore) {
	ctx := context.Background()
	taskID := "contract-task-" + time.Now().Format("20060102150405.000000")

	sample := func(id string) domain.Checkpoint {
		return domain.Checkpoint{
			TaskID: id,
			Phase:  domain.PhaseExecution,
			GatheredInfo: domain.GatheredInfo{
				MedicineName: "paracetamol",
				Extra:        map[string]any{"count": 42, domain.KeyStepIndex: 1},
			},
			ExecutionPlan: domain.Plan{
				{ID: "s1", Name: "search", ToolName: "web_search", Status: domain.StepCompleted, Result: "ok"},
				{ID: "s2", Name: "call", ToolName: "phone_call", Status: domain.StepPending, ToolArgs: map[string]any{"phone": "123"}},
			},
			Progress: 75,
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		err := store.Save(ctx, sample(taskID))
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, taskID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, taskID, loaded.TaskID)
		assert.Equal(t, domain.PhaseExecution, loaded.Phase)
		assert.Equal(t, "paracetamol", loaded.GatheredInfo.MedicineName)
		// JSON persistence may turn ints into float64; only existence is part of the contract.
		assert.NotNil(t, loaded.GatheredInfo.Extra["count"])
		require.Len(t, loaded.ExecutionPlan, 2)
		assert.Equal(t, domain.StepCompleted, loaded.ExecutionPlan[0].Status)
		assert.Equal(t, "phone_call", loaded.ExecutionPlan[1].ToolName)
		assert.InDelta(t, 75, loaded.Progress, 0.001)
		assert.False(t, loaded.UpdatedAt.IsZero(), "stores stamp UpdatedAt")
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		cp := sample(taskID)
		cp.Phase = domain.PhaseValidation
		cp.Progress = 90
		require.NoError(t, store.Save(ctx, cp))

		loaded, err := store.Load(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, domain.PhaseValidation, loaded.Phase)
		assert.InDelta(t, 90, loaded.Progress, 0.001)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+taskID)
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sample(taskID)))

		err := store.Delete(ctx, taskID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, taskID)
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound, "Load after Delete should return ErrCheckpointNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := taskID + "-1"
		id2 := taskID + "-2"
		require.NoError(t, store.Save(ctx, sample(id1)))
		require.NoError(t, store.Save(ctx, sample(id2)))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}

// RunTaskRepositoryContract verifies a TaskRepository implementation.
func RunTaskRepositoryContract(t *testing.T, repo TaskRepository) {
	ctx := context.Background()

	t.Run("Sessions", func(t *testing.T) {
		sess, err := repo.CreateSession(ctx, "user-1")
		require.NoError(t, err)
		require.NotEmpty(t, sess.ID)

		got, err := repo.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, "user-1", got.UserID)

		_, err = repo.GetSession(ctx, "missing-session")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Tasks", func(t *testing.T) {
		sess, err := repo.CreateSession(ctx, "user-2")
		require.NoError(t, err)

		_, err = repo.FindOpenTask(ctx, sess.ID, domain.TaskMedicine)
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)

		med, err := repo.CreateTask(ctx, sess.ID, domain.TaskMedicine)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskActive, med.Status)

		found, err := repo.FindOpenTask(ctx, sess.ID, domain.TaskMedicine)
		require.NoError(t, err)
		assert.Equal(t, med.ID, found.ID)

		time.Sleep(2 * time.Millisecond)
		trip, err := repo.CreateTask(ctx, sess.ID, domain.TaskTravel)
		require.NoError(t, err)

		latest, err := repo.LatestOpenTask(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, trip.ID, latest.ID)

		trip.Status = domain.TaskComplete
		require.NoError(t, repo.UpdateTask(ctx, trip))

		latest, err = repo.LatestOpenTask(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, med.ID, latest.ID, "completed tasks are no longer open")

		_, err = repo.FindOpenTask(ctx, sess.ID, domain.TaskTravel)
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)

		got, err := repo.GetTask(ctx, trip.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskComplete, got.Status)

		_, err = repo.GetTask(ctx, "missing-task")
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})

	t.Run("Guests", func(t *testing.T) {
		g, err := repo.CreateGuest(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, g.UserID)
		require.NotEmpty(t, g.Token)

		got, err := repo.ResolveGuest(ctx, g.Token)
		require.NoError(t, err)
		assert.Equal(t, g.UserID, got.UserID)

		_, err = repo.ResolveGuest(ctx, "bogus")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}
