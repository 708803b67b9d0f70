package internal

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taskchain/taskchain/internal/orchestrator"
	"github.com/taskchain/taskchain/internal/task"
	"github.com/taskchain/taskchain/pkg/cerr"
)

type createTaskBody struct {
	Description     string     `json:"description"`
	Notes           string     `json:"notes"`
	Context         string     `json:"context"`
	Project         string     `json:"project"`
	ShowFrom        *time.Time `json:"show_from"`
	Due             *time.Time `json:"due"`
	PredecessorList string     `json:"predecessor_list"`
	RecurrenceID    string     `json:"recurrence_id"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body createTaskBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	t, res, err := s.orch.CreateTask(ctx, orchestrator.CreateTaskRequest{
		UserID:          s.userID,
		Description:     body.Description,
		Notes:           body.Notes,
		ContextName:     body.Context,
		ProjectName:     body.Project,
		ShowFrom:        body.ShowFrom,
		Due:             body.Due,
		PredecessorList: body.PredecessorList,
		RecurrenceID:    body.RecurrenceID,
	})
	if err != nil {
		cerr.SetJSONError(ctx, domainError(err))
		return
	}
	cerr.SetJSONStatus(ctx, http.StatusCreated)
	cerr.SetJSONResponse(ctx, struct {
		Task    *taskResponse    `json:"task"`
		Cascade *cascadeResponse `json:"cascade,omitempty"`
	}{toTaskResponse(t), toCascadeResponse(res)})
}

type updateTaskBody struct {
	Description     *string    `json:"description"`
	Notes           *string    `json:"notes"`
	Context         *string    `json:"context"`
	Project         *string    `json:"project"`
	Done            *bool      `json:"done"`
	ShowFrom        *time.Time `json:"show_from"`
	Due             *time.Time `json:"due"`
	PredecessorList *string    `json:"predecessor_list"`
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body updateTaskBody
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&raw); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	merged, err := json.Marshal(raw)
	if err == nil {
		err = json.Unmarshal(merged, &body)
	}
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}

	// Nullable date fields: presence in the body means "set", a JSON null
	// clears the stored value.
	_, setShowFrom := raw["show_from"]
	_, setDue := raw["due"]

	t, res, err := s.orch.UpdateTask(ctx, orchestrator.UpdateTaskRequest{
		UserID:          s.userID,
		ID:              chi.URLParam(r, "taskID"),
		Description:     body.Description,
		Notes:           body.Notes,
		ContextName:     body.Context,
		ProjectName:     body.Project,
		Done:            body.Done,
		ShowFrom:        body.ShowFrom,
		SetShowFrom:     setShowFrom,
		Due:             body.Due,
		SetDue:          setDue,
		PredecessorList: body.PredecessorList,
	})
	if err != nil {
		cerr.SetJSONError(ctx, domainError(err))
		return
	}
	cerr.SetJSONResponse(ctx, struct {
		Task    *taskResponse    `json:"task"`
		Cascade *cascadeResponse `json:"cascade,omitempty"`
	}{toTaskResponse(t), toCascadeResponse(res)})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.orch.GetTask(ctx, s.userID, chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.SetJSONError(ctx, domainError(err))
		return
	}
	cerr.SetJSONResponse(ctx, toTaskResponse(t))
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	f := task.Filter{
		ContextID: q.Get("context_id"),
		ProjectID: q.Get("project_id"),
		State:     task.State(q.Get("state")),
	}
	if f.State != "" && !f.State.Valid() {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "unknown state", nil)
		return
	}
	tasks, err := s.orch.ListTasks(ctx, s.userID, f)
	if err != nil {
		cerr.SetJSONError(ctx, domainError(err))
		return
	}
	cerr.SetJSONResponse(ctx, struct {
		Tasks []*taskResponse `json:"tasks"`
	}{toTaskResponses(tasks)})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := s.orch.DeleteTask(ctx, s.userID, chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.SetJSONError(ctx, domainError(err))
		return
	}
	cerr.SetJSONResponse(ctx, struct {
		Cascade *cascadeResponse `json:"cascade,omitempty"`
	}{toCascadeResponse(res)})
}

func (s *Server) handleToggleCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, res, err := s.orch.ToggleCompletion(ctx, s.userID, chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.SetJSONError(ctx, domainError(err))
		return
	}
	cerr.SetJSONResponse(ctx, struct {
		Task    *taskResponse    `json:"task"`
		Cascade *cascadeResponse `json:"cascade,omitempty"`
	}{toTaskResponse(t), toCascadeResponse(res)})
}

func (s *Server) handleListPredecessors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	preds, err := s.orch.PredecessorsOf(ctx, s.userID, chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.SetJSONError(ctx, domainError(err))
		return
	}
	cerr.SetJSONResponse(ctx, struct {
		Predecessors []*taskResponse `json:"predecessors"`
	}{toTaskResponses(preds)})
}

func (s *Server) handleAddPredecessor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body struct {
		PredecessorID string `json:"predecessor_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	t, err := s.orch.AddPredecessor(ctx, s.userID, chi.URLParam(r, "taskID"), body.PredecessorID)
	if err != nil {
		cerr.SetJSONError(ctx, domainError(err))
		return
	}
	cerr.SetJSONResponse(ctx, toTaskResponse(t))
}

func (s *Server) handleRemovePredecessor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.orch.RemovePredecessor(ctx, s.userID, chi.URLParam(r, "taskID"), chi.URLParam(r, "predecessorID"))
	if err != nil {
		cerr.SetJSONError(ctx, domainError(err))
		return
	}
	cerr.SetJSONResponse(ctx, toTaskResponse(t))
}

func (s *Server) handleSetProjectHidden(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body struct {
		Hidden bool `json:"hidden"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	changed, err := s.orch.SetProjectHidden(ctx, s.userID, chi.URLParam(r, "projectID"), body.Hidden)
	if err != nil {
		cerr.SetJSONError(ctx, domainError(err))
		return
	}
	cerr.SetJSONResponse(ctx, struct {
		Changed []*taskResponse `json:"changed"`
	}{toTaskResponses(changed)})
}
