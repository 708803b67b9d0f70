package recurrence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskchain/taskchain/internal/recurrence"
	recurrencerepo "github.com/taskchain/taskchain/internal/recurrence/repositoryimpl"
	"github.com/taskchain/taskchain/internal/task"
	taskrepo "github.com/taskchain/taskchain/internal/task/repositoryimpl"
	"github.com/taskchain/taskchain/internal/user"
	userrepo "github.com/taskchain/taskchain/internal/user/repositoryimpl"
	"github.com/taskchain/taskchain/pkg/cerr"
	"github.com/taskchain/taskchain/pkg/storage"
)

type serviceFixture struct {
	svc   *recurrence.Service
	tasks task.Repository
	tpls  recurrence.Repository
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	tasks := taskrepo.NewYAMLRepository(s)
	tpls := recurrencerepo.NewYAMLRepository(s)
	users := userrepo.NewYAMLRepository(s)
	require.NoError(t, users.Create(context.Background(), &user.User{
		ID:       "u1",
		Name:     "tester",
		Timezone: "UTC",
	}))
	return &serviceFixture{
		svc:   recurrence.NewService(tpls, tasks, users),
		tasks: tasks,
		tpls:  tpls,
	}
}

func seedTemplate(t *testing.T, f *serviceFixture, tpl *recurrence.Template) {
	t.Helper()
	if tpl.ID == "" {
		tpl.ID = "r1"
	}
	tpl.UserID = "u1"
	tpl.ContextID = "c1"
	if tpl.Description == "" {
		tpl.Description = "weekly review"
	}
	require.NoError(t, f.tpls.Create(context.Background(), tpl))
}

func TestServiceIsDue(t *testing.T) {
	ctx := context.Background()
	asOf := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	t.Run("active template is due", func(t *testing.T) {
		f := newServiceFixture(t)
		seedTemplate(t, f, &recurrence.Template{Pattern: recurrence.PatternWeekly, Every: 1, Active: true})
		due, err := f.svc.IsDue(ctx, "r1", asOf)
		require.NoError(t, err)
		assert.True(t, due)
	})

	t.Run("inactive template is never due", func(t *testing.T) {
		f := newServiceFixture(t)
		seedTemplate(t, f, &recurrence.Template{Pattern: recurrence.PatternWeekly, Every: 1, Active: false})
		due, err := f.svc.IsDue(ctx, "r1", asOf)
		require.NoError(t, err)
		assert.False(t, due)
	})

	t.Run("series past its end date is not due", func(t *testing.T) {
		f := newServiceFixture(t)
		until := asOf.AddDate(0, 0, 3)
		seedTemplate(t, f, &recurrence.Template{Pattern: recurrence.PatternWeekly, Every: 1, Active: true, Until: &until})
		due, err := f.svc.IsDue(ctx, "r1", asOf)
		require.NoError(t, err)
		assert.False(t, due)
	})
}

func TestServiceActiveOccurrenceCount(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	seedTemplate(t, f, &recurrence.Template{Pattern: recurrence.PatternDaily, Every: 1, Active: true})

	mk := func(id string, st task.State) {
		tk := &task.Task{
			ID: id, UserID: "u1", ContextID: "c1",
			RecurrenceID: "r1", Description: "occurrence", State: st,
		}
		if st == task.StateCompleted {
			at := time.Now()
			tk.CompletedAt = &at
		}
		require.NoError(t, f.tasks.Create(ctx, tk))
	}
	mk("t1", task.StateCompleted)
	mk("t2", task.StateActive)
	mk("t3", task.StateDeferred)

	n, err := f.svc.ActiveOccurrenceCount(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestServiceMaterialize(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	seedTemplate(t, f, &recurrence.Template{Pattern: recurrence.PatternWeekly, Every: 2, Active: true})

	asOf := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	tk, err := f.svc.Materialize(ctx, "r1", asOf)
	require.NoError(t, err)
	assert.Equal(t, "weekly review", tk.Description)
	assert.Equal(t, "r1", tk.RecurrenceID)
	require.NotNil(t, tk.Due)
	assert.Equal(t, asOf.AddDate(0, 0, 14), *tk.Due)

	stored, err := f.tasks.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, stored.ID)
}

func TestServiceMaterializeEndedSeries(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	asOf := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	until := asOf.AddDate(0, 0, 1)
	seedTemplate(t, f, &recurrence.Template{Pattern: recurrence.PatternWeekly, Every: 1, Active: true, Until: &until})

	_, err := f.svc.Materialize(ctx, "r1", asOf)
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))
}

func TestTemplateNextOccurrence(t *testing.T) {
	after := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		pattern recurrence.Pattern
		every   int
		want    time.Time
	}{
		{recurrence.PatternDaily, 1, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)},
		{recurrence.PatternDaily, 3, time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)},
		{recurrence.PatternWeekly, 1, time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)},
		{recurrence.PatternMonthly, 1, time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)},
		{recurrence.PatternYearly, 1, time.Date(2027, 3, 10, 0, 0, 0, 0, time.UTC)},
		// A zero interval is treated as one.
		{recurrence.PatternDaily, 0, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		tpl := &recurrence.Template{Pattern: tt.pattern, Every: tt.every}
		got, ok := tpl.NextOccurrence(after, time.UTC)
		require.True(t, ok)
		assert.Equal(t, tt.want, got, "%s every %d", tt.pattern, tt.every)
	}
}
