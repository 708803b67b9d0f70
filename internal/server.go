package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/taskchain/taskchain/internal/config"
	"github.com/taskchain/taskchain/internal/dependency"
	"github.com/taskchain/taskchain/internal/eventbus"
	"github.com/taskchain/taskchain/internal/orchestrator"
	"github.com/taskchain/taskchain/internal/task"
	"github.com/taskchain/taskchain/pkg/cerr"
	"github.com/taskchain/taskchain/pkg/clog"
)

type Server struct {
	server *http.Server
	env    *config.Env
	orch   *orchestrator.Orchestrator
	bus    *eventbus.Bus
	userID string
}

func NewServer(env *config.Env, orch *orchestrator.Orchestrator, bus *eventbus.Bus, userID string) *Server {
	return &Server{
		env:    env,
		orch:   orch,
		bus:    bus,
		userID: userID,
	}
}

// ListenAndServe starts the HTTP server. The provided context is the base
// context of every request, so cancelling it also ends open event streams.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := s.routes()

	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr: addr,
		Handler: h2c.NewHandler(cors.New(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}).Handler(mux), &http2.Server{}),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	return s.server.ListenAndServe()
}

func (s *Server) routes() *http.ServeMux {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(
			clog.SlogChiMiddleware(),
			cerr.NewJSONResponseChiMiddleware(),
		)
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleCreateTask)
			r.Route("/{taskID}", func(r chi.Router) {
				r.Get("/", s.handleGetTask)
				r.Patch("/", s.handleUpdateTask)
				r.Delete("/", s.handleDeleteTask)
				r.Post("/toggle", s.handleToggleCompletion)
				r.Get("/predecessors", s.handleListPredecessors)
				r.Post("/predecessors", s.handleAddPredecessor)
				r.Delete("/predecessors/{predecessorID}", s.handleRemovePredecessor)
			})
		})
		r.Put("/projects/{projectID}/hidden", s.handleSetProjectHidden)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/events", http.HandlerFunc(s.handleEvents))
	mux.Handle("/api/", r)
	return mux
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// handleEvents streams bus events as server-sent events. It sits outside the
// JSON middleware because the response body is written incrementally.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	id, ch := s.bus.Subscribe(16)
	defer s.bus.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// domainError translates orchestrator errors into coded errors the JSON
// middleware knows how to render.
func domainError(err error) error {
	var verr *task.ValidationError
	if errors.As(err, &verr) {
		e := cerr.NewError(cerr.InvalidArgument, "validation failed", verr)
		for _, v := range verr.Violations {
			e.AddViolation(v.Field, v.Message)
		}
		return e
	}
	var terr *task.TransitionError
	if errors.As(err, &terr) {
		return cerr.NewError(cerr.FailedPrecondition, terr.Error(), terr)
	}
	var cycErr *dependency.CycleError
	if errors.As(err, &cycErr) {
		return cerr.NewError(cerr.FailedPrecondition, "dependency would create a cycle", cycErr)
	}
	return err
}

type taskResponse struct {
	ID           string     `json:"id"`
	ContextID    string     `json:"context_id"`
	ProjectID    string     `json:"project_id,omitempty"`
	RecurrenceID string     `json:"recurrence_id,omitempty"`
	Description  string     `json:"description"`
	Notes        string     `json:"notes,omitempty"`
	State        string     `json:"state"`
	ShowFrom     *time.Time `json:"show_from,omitempty"`
	Due          *time.Time `json:"due,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func toTaskResponse(t *task.Task) *taskResponse {
	return &taskResponse{
		ID:           t.ID,
		ContextID:    t.ContextID,
		ProjectID:    t.ProjectID,
		RecurrenceID: t.RecurrenceID,
		Description:  t.Description,
		Notes:        t.Notes,
		State:        t.State.String(),
		ShowFrom:     t.ShowFrom,
		Due:          t.Due,
		CompletedAt:  t.CompletedAt,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func toTaskResponses(tasks []*task.Task) []*taskResponse {
	out := make([]*taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResponse(t))
	}
	return out
}

type cascadeResponse struct {
	Activated          []*taskResponse `json:"activated,omitempty"`
	Blocked            []*taskResponse `json:"blocked,omitempty"`
	FailedPredecessors []string        `json:"failed_predecessors,omitempty"`
	NewOccurrence      *taskResponse   `json:"new_occurrence,omitempty"`
}

func toCascadeResponse(res *orchestrator.CascadeResult) *cascadeResponse {
	if res == nil {
		return nil
	}
	out := &cascadeResponse{
		Activated:          toTaskResponses(res.Activated),
		Blocked:            toTaskResponses(res.Blocked),
		FailedPredecessors: res.FailedPredecessors,
	}
	if res.NewOccurrence != nil {
		out.NewOccurrence = toTaskResponse(res.NewOccurrence)
	}
	return out
}
