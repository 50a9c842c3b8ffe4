package flows

import (
	"context"
	"net/url"
)

// GetFunc issues a GET with query and decodes a 2xx answer into out.
type GetFunc func(ctx context.Context, op, path string, query url.Values, out any) error

type ListEvents struct {
	List string
}

type ListMetrics struct {
	Success int
	Failure int
}

type ListDeps struct {
	Path  string
	Query url.Values
	Get   GetFunc

	Observers
	Metrics ListMetrics
	Events  ListEvents
}

// RunListFeedback fetches one page of stored feedback into out.
func RunListFeedback(ctx context.Context, out any, deps ListDeps) error {
	normalizeObservers(&deps.Observers)
	if err := deps.Get(ctx, "list_feedback", deps.Path, deps.Query, out); err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		deps.Logger.WarnContext(ctx, "list feedback failed", "error", err)
		deps.EmitAudit(ctx, deps.Events.List, false, "", err, nil)
		return err
	}
	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.List, true, "", nil, func() map[string]string {
		return map[string]string{
			"page": deps.Query.Get("page"),
			"size": deps.Query.Get("size"),
		}
	})
	return nil
}
