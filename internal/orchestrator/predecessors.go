package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/taskchain/taskchain/internal/dependency"
	"github.com/taskchain/taskchain/internal/task"
	"github.com/taskchain/taskchain/pkg/cerr"
)

// validate collects field violations plus, for a staged predecessor edit,
// resolvability and cycle screening of every reference. Violations are
// appended to verr so callers can seed their own; the returned error is
// reserved for infrastructure failures.
func (o *Orchestrator) validate(ctx context.Context, t *task.Task, verr *task.ValidationError) error {
	t.CollectFieldViolations(verr)
	if edit := t.StagedPredecessorEdit(); edit != nil {
		for _, spec := range edit.Specs {
			ref, ok := task.ParseSpec(spec)
			if !ok {
				verr.Add("predecessors", fmt.Sprintf("could not find task for %s", spec))
				continue
			}
			dep, err := o.resolveSpec(ctx, t.UserID, ref)
			if err != nil {
				if cerr.IsCode(err, cerr.NotFound) {
					verr.Add("predecessors", fmt.Sprintf("could not find task for %s", spec))
					continue
				}
				return err
			}
			cycle, err := o.graph.WouldCreateCycle(ctx, dep.ID, t.ID)
			if err != nil {
				return err
			}
			if cycle {
				verr.Add("predecessors", fmt.Sprintf("dependency on %s would create a cycle", spec))
			}
		}
	}
	return nil
}

// predecessorSpecs renders the current predecessor list as references, in
// graph listing order.
func (o *Orchestrator) predecessorSpecs(ctx context.Context, t *task.Task) ([]string, error) {
	preds, err := o.graph.PredecessorsOf(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	specs := make([]string, 0, len(preds))
	for _, p := range preds {
		spec, err := o.specificationOf(ctx, p)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// applyPredecessorEdit diffs the staged reference set against the stored
// edges and applies removals first, then additions. A rejected addition is
// recorded in res without rolling back what already succeeded.
func (o *Orchestrator) applyPredecessorEdit(ctx context.Context, t *task.Task, res *CascadeResult) error {
	edit := t.StagedPredecessorEdit()
	if edit == nil {
		return nil
	}
	defer t.ClearPredecessorEdit()

	currentSpecs, err := o.predecessorSpecs(ctx, t)
	if err != nil {
		return err
	}
	current := make(map[string]bool, len(currentSpecs))
	for _, s := range currentSpecs {
		current[s] = true
	}
	staged := make(map[string]bool, len(edit.Specs))
	for _, s := range edit.Specs {
		staged[s] = true
	}

	for _, spec := range currentSpecs {
		if staged[spec] {
			continue
		}
		ref, ok := task.ParseSpec(spec)
		if !ok {
			continue
		}
		pred, err := o.resolveSpec(ctx, t.UserID, ref)
		if err != nil {
			if cerr.IsCode(err, cerr.NotFound) {
				continue
			}
			return err
		}
		if err := o.graph.RemoveEdge(ctx, pred.ID, t.ID); err != nil {
			return err
		}
	}

	for _, spec := range edit.Specs {
		if current[spec] {
			continue
		}
		ref, ok := task.ParseSpec(spec)
		if !ok {
			res.FailedPredecessors = append(res.FailedPredecessors, spec)
			continue
		}
		pred, err := o.resolveSpec(ctx, t.UserID, ref)
		if err != nil {
			if cerr.IsCode(err, cerr.NotFound) {
				res.FailedPredecessors = append(res.FailedPredecessors, spec)
				continue
			}
			return err
		}
		if err := o.graph.AddEdge(ctx, pred.ID, t.ID); err != nil {
			var cycErr *dependency.CycleError
			if errors.As(err, &cycErr) {
				res.FailedPredecessors = append(res.FailedPredecessors, spec)
				continue
			}
			return err
		}
	}

	o.logPredecessorDiff(ctx, t, currentSpecs, edit.Specs)
	return nil
}

func (o *Orchestrator) logPredecessorDiff(ctx context.Context, t *task.Task, before, after []string) {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(strings.Join(before, "\n")),
		B:        difflib.SplitLines(strings.Join(after, "\n")),
		FromFile: "before",
		ToFile:   "after",
		Context:  1,
	})
	if err != nil || diff == "" {
		return
	}
	slog.DebugContext(ctx, "predecessor list changed",
		slog.String("task_id", t.ID),
		slog.String("diff", diff),
	)
}
