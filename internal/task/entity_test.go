package task

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDerivesState(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	future := today.AddDate(0, 0, 3)
	todayDate := today

	tests := []struct {
		name     string
		params   NewTaskParams
		want     State
		wantDone bool
	}{
		{
			name:   "default is active",
			params: NewTaskParams{Description: "water plants"},
			want:   StateActive,
		},
		{
			name:   "future show_from defers",
			params: NewTaskParams{Description: "water plants", ShowFrom: &future},
			want:   StateDeferred,
		},
		{
			name:   "show_from today stays active",
			params: NewTaskParams{Description: "water plants", ShowFrom: &todayDate},
			want:   StateActive,
		},
		{
			name:     "explicit state wins",
			params:   NewTaskParams{Description: "water plants", State: StateCompleted, ShowFrom: &future},
			want:     StateCompleted,
			wantDone: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.params.UserID = "u1"
			tt.params.ContextID = "c1"
			tt.params.Now = now
			tt.params.Today = today
			tk := New(tt.params)
			assert.Equal(t, tt.want, tk.State)
			assert.NotEmpty(t, tk.ID)
			if tt.wantDone {
				require.NotNil(t, tk.CompletedAt)
				assert.Equal(t, now, *tk.CompletedAt)
			} else {
				assert.Nil(t, tk.CompletedAt)
			}
		})
	}
}

func TestCollectFieldViolations(t *testing.T) {
	now := time.Now()
	tk := &Task{
		Description: strings.Repeat("x", 101) + `"`,
		Notes:       strings.Repeat("n", 60001),
		State:       State("limbo"),
		CompletedAt: &now,
	}
	verr := &ValidationError{}
	tk.CollectFieldViolations(verr)

	fields := map[string]int{}
	for _, v := range verr.Violations {
		fields[v.Field]++
	}
	assert.Equal(t, 2, fields["description"])
	assert.Equal(t, 1, fields["notes"])
	assert.Equal(t, 1, fields["context"])
	assert.Equal(t, 1, fields["user"])
	assert.Equal(t, 1, fields["state"])
	assert.Equal(t, 1, fields["completed_at"])
}

func TestCollectFieldViolationsCleanTask(t *testing.T) {
	tk := &Task{
		UserID:      "u1",
		ContextID:   "c1",
		Description: "water plants",
		State:       StateActive,
	}
	verr := &ValidationError{}
	tk.CollectFieldViolations(verr)
	assert.True(t, verr.Empty())
}

func TestReschedule(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	g := Guards{Now: now, Unblocked: true}

	t.Run("past date rejected", func(t *testing.T) {
		tk := &Task{State: StateActive, Description: "d", UserID: "u", ContextID: "c"}
		past := today.AddDate(0, 0, -1)
		err := tk.Reschedule(&past, g, today)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Nil(t, tk.ShowFrom)
	})

	t.Run("future date defers active task", func(t *testing.T) {
		tk := &Task{State: StateActive}
		future := today.AddDate(0, 0, 5)
		require.NoError(t, tk.Reschedule(&future, g, today))
		assert.Equal(t, StateDeferred, tk.State)
		assert.Equal(t, future, *tk.ShowFrom)
	})

	t.Run("today keeps task active", func(t *testing.T) {
		tk := &Task{State: StateActive}
		d := today
		require.NoError(t, tk.Reschedule(&d, g, today))
		assert.Equal(t, StateActive, tk.State)
	})

	t.Run("clearing date activates deferred task", func(t *testing.T) {
		future := today.AddDate(0, 0, 5)
		tk := &Task{State: StateDeferred, ShowFrom: &future}
		require.NoError(t, tk.Reschedule(nil, g, today))
		assert.Equal(t, StateActive, tk.State)
		assert.Nil(t, tk.ShowFrom)
	})

	t.Run("pending task keeps state", func(t *testing.T) {
		tk := &Task{State: StatePending}
		future := today.AddDate(0, 0, 5)
		require.NoError(t, tk.Reschedule(&future, g, today))
		assert.Equal(t, StatePending, tk.State)
	})
}

func TestUpdateStateFromProject(t *testing.T) {
	tk := &Task{State: StateActive}
	assert.True(t, tk.UpdateStateFromProject(true, true))
	assert.Equal(t, StateProjectHidden, tk.State)

	assert.True(t, tk.UpdateStateFromProject(false, true))
	assert.Equal(t, StateActive, tk.State)

	tk = &Task{State: StateProjectHidden}
	assert.True(t, tk.UpdateStateFromProject(false, false))
	assert.Equal(t, StatePending, tk.State)

	tk = &Task{State: StateDeferred}
	assert.False(t, tk.UpdateStateFromProject(true, true))
	assert.Equal(t, StateDeferred, tk.State)
}

func TestStagePredecessorList(t *testing.T) {
	tk := &Task{}
	specs := tk.StagePredecessorList(`depends on "buy seeds" <"errands"; "garden"> and "dig bed" <"garden"; "(none)">`)
	require.Len(t, specs, 2)
	assert.Equal(t, `"buy seeds" <"errands"; "garden">`, specs[0])
	require.NotNil(t, tk.StagedPredecessorEdit())
	assert.Equal(t, specs, tk.StagedPredecessorEdit().Specs)

	tk.ClearPredecessorEdit()
	assert.Nil(t, tk.StagedPredecessorEdit())
}
