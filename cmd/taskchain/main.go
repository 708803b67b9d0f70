package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
	"github.com/sourcegraph/conc/pool"

	server "github.com/taskchain/taskchain/internal"
	"github.com/taskchain/taskchain/internal/config"
	"github.com/taskchain/taskchain/internal/dependency"
	dependencyrepo "github.com/taskchain/taskchain/internal/dependency/repositoryimpl"
	"github.com/taskchain/taskchain/internal/eventbus"
	"github.com/taskchain/taskchain/internal/orchestrator"
	projectrepo "github.com/taskchain/taskchain/internal/project/repositoryimpl"
	"github.com/taskchain/taskchain/internal/recurrence"
	recurrencerepo "github.com/taskchain/taskchain/internal/recurrence/repositoryimpl"
	"github.com/taskchain/taskchain/internal/task"
	taskrepo "github.com/taskchain/taskchain/internal/task/repositoryimpl"
	taskctxrepo "github.com/taskchain/taskchain/internal/taskctx/repositoryimpl"
	userrepo "github.com/taskchain/taskchain/internal/user/repositoryimpl"
	"github.com/taskchain/taskchain/internal/watcher"
	"github.com/taskchain/taskchain/pkg/clog"
	"github.com/taskchain/taskchain/pkg/panicerr"
	"github.com/taskchain/taskchain/pkg/storage"
)

var (
	app = kingpin.New("taskchain", "Task tracker with dependency chains")

	serveCmd = app.Command("serve", "Start the HTTP server")

	addCmd      = app.Command("add", "Add a task")
	addDesc     = addCmd.Arg("description", "Task description").Required().String()
	addContext  = addCmd.Flag("context", "Context name").Short('c').Default("inbox").String()
	addProject  = addCmd.Flag("project", "Project name").Short('p').String()
	addShowFrom = addCmd.Flag("show-from", "Defer until date (YYYY-MM-DD)").String()
	addAfter    = addCmd.Flag("after", "Predecessor references").String()

	listCmd   = app.Command("list", "List tasks")
	listState = listCmd.Flag("state", "Filter by state").String()

	doneCmd = app.Command("done", "Toggle a task's completion")
	doneID  = doneCmd.Arg("id", "Task ID").Required().String()

	rmCmd = app.Command("rm", "Delete a task")
	rmID  = rmCmd.Arg("id", "Task ID").Required().String()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}
	setupLogger(env)

	deps, err := build(context.Background(), env)
	if err != nil {
		slog.Error("failed to set up", "error", err)
		os.Exit(1)
	}

	switch command {
	case serveCmd.FullCommand():
		err = runServe(env, deps)
	case addCmd.FullCommand():
		err = runAdd(deps)
	case listCmd.FullCommand():
		err = runList(deps)
	case doneCmd.FullCommand():
		err = runDone(deps)
	case rmCmd.FullCommand():
		err = runRm(deps)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogger(env *config.Env) {
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))
}

type deps struct {
	store  storage.Storage
	bus    *eventbus.Bus
	orch   *orchestrator.Orchestrator
	userID string
}

func build(ctx context.Context, env *config.Env) (*deps, error) {
	var store storage.Storage
	var err error
	switch env.StorageEnv.Type {
	case "s3":
		store, err = storage.NewS3Storage(ctx, env.StorageEnv.S3Bucket, env.StorageEnv.S3Prefix, env.StorageEnv.S3Region)
	default:
		store, err = storage.NewLocalStorage(env.StorageEnv.BaseDir)
	}
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	userRepo := userrepo.NewYAMLRepository(store)
	contextRepo := taskctxrepo.NewYAMLRepository(store)
	projectRepo := projectrepo.NewYAMLRepository(store)
	taskRepo := taskrepo.NewYAMLRepository(store)
	graph := dependency.NewGraph(dependencyrepo.NewYAMLRepository(store), taskRepo)
	recurrenceService := recurrence.NewService(recurrencerepo.NewYAMLRepository(store), taskRepo, userRepo)

	orch := orchestrator.New(userRepo, contextRepo, projectRepo, taskRepo, graph, recurrenceService, bus)
	u, err := orch.EnsureDefaultUser(ctx)
	if err != nil {
		return nil, err
	}
	return &deps{store: store, bus: bus, orch: orch, userID: u.ID}, nil
}

func runServe(env *config.Env, d *deps) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	srv := server.NewServer(env, d.orch, d.bus, d.userID)

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(panicerr.SafeContext(func(ctx context.Context) error {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}))
	if local, ok := d.store.(*storage.LocalStorage); ok {
		w := watcher.New(local.BaseDir(), d.bus)
		p.Go(panicerr.SafeContext(func(ctx context.Context) error {
			err := w.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}))
	}

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return p.Wait()
}

func runAdd(d *deps) error {
	ctx := context.Background()
	req := orchestrator.CreateTaskRequest{
		UserID:          d.userID,
		Description:     *addDesc,
		ContextName:     *addContext,
		ProjectName:     *addProject,
		PredecessorList: *addAfter,
	}
	if *addShowFrom != "" {
		day, err := time.ParseInLocation("2006-01-02", *addShowFrom, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --show-from: %w", err)
		}
		req.ShowFrom = &day
	}
	t, res, err := d.orch.CreateTask(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s (%s)\n", color.GreenString("added"), t.Description, t.ID)
	for _, spec := range res.FailedPredecessors {
		fmt.Printf("%s could not link %s\n", color.YellowString("warning:"), spec)
	}
	return nil
}

var stateColors = map[task.State]func(format string, a ...interface{}) string{
	task.StateActive:        color.GreenString,
	task.StateDeferred:      color.CyanString,
	task.StatePending:       color.YellowString,
	task.StateProjectHidden: color.MagentaString,
	task.StateCompleted:     color.HiBlackString,
}

func runList(d *deps) error {
	ctx := context.Background()
	f := task.Filter{}
	if *listState != "" {
		f.State = task.State(*listState)
		if !f.State.Valid() {
			return fmt.Errorf("unknown state %q", *listState)
		}
	}
	tasks, err := d.orch.ListTasks(ctx, d.userID, f)
	if err != nil {
		return err
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	for _, t := range tasks {
		paint := stateColors[t.State]
		if paint == nil {
			paint = fmt.Sprintf
		}
		fmt.Printf("%s  %s  %s\n", t.ID, paint("%-14s", t.State), t.Description)
	}
	return nil
}

func runDone(d *deps) error {
	t, res, err := d.orch.ToggleCompletion(context.Background(), d.userID, *doneID)
	if err != nil {
		return err
	}
	fmt.Printf("%s is now %s\n", t.Description, stateColors[t.State]("%s", t.State))
	for _, s := range res.Activated {
		fmt.Printf("  %s %s\n", color.GreenString("unblocked"), s.Description)
	}
	for _, s := range res.Blocked {
		fmt.Printf("  %s %s\n", color.YellowString("blocked"), s.Description)
	}
	if res.NewOccurrence != nil {
		fmt.Printf("  %s %s\n", color.CyanString("spawned"), res.NewOccurrence.Description)
	}
	return nil
}

func runRm(d *deps) error {
	res, err := d.orch.DeleteTask(context.Background(), d.userID, *rmID)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", color.RedString("deleted"), *rmID)
	if n := len(res.Activated); n > 0 {
		fmt.Printf("  %d successor(s) unblocked\n", n)
	}
	if res.NewOccurrence != nil {
		fmt.Printf("  %s %s\n", color.CyanString("spawned"), res.NewOccurrence.Description)
	}
	return nil
}
