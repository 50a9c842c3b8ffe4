package goFeedback

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/MrEthical07/goFeedback/internal/flows"
)

const (
	defaultListPage = 1
	defaultListSize = 5
	maxListSize     = 100
)

// SortDirection orders a feedback listing.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

var allowedSortKeys = map[string]struct{}{
	"created_at": {},
	"rating":     {},
	"first_name": {},
	"last_name":  {},
}

// ListQuery selects one page of stored feedback. Zero values take the
// defaults: page 1, size 5, newest first.
type ListQuery struct {
	Page          int
	Size          int
	SortBy        string
	SortDirection SortDirection
}

// FeedbackRecord is one stored feedback row as returned by the backend.
type FeedbackRecord struct {
	ID        int       `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Mobile    string    `json:"mobile,omitempty"`
	Rating    float64   `json:"rating"`
	Feedback  string    `json:"feedback"`
	Editable  bool      `json:"editable"`
	CreatedAt time.Time `json:"created_at"`
}

// FeedbackPage is one page of a listing.
type FeedbackPage struct {
	Items []FeedbackRecord `json:"items"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Size  int              `json:"size"`
	Pages int              `json:"pages"`
}

// Normalize fills defaults and rejects out-of-range values.
func (q ListQuery) Normalize() (ListQuery, error) {
	if q.Page == 0 {
		q.Page = defaultListPage
	}
	if q.Size == 0 {
		q.Size = defaultListSize
	}
	if q.SortBy == "" {
		q.SortBy = "created_at"
	}
	if q.SortDirection == "" {
		q.SortDirection = SortDesc
	}

	if q.Page < 1 {
		return ListQuery{}, fmt.Errorf("%w: page must be >= 1", ErrInvalidListQuery)
	}
	if q.Size < 1 || q.Size > maxListSize {
		return ListQuery{}, fmt.Errorf("%w: size must be between 1 and %d", ErrInvalidListQuery, maxListSize)
	}
	if _, ok := allowedSortKeys[q.SortBy]; !ok {
		return ListQuery{}, fmt.Errorf("%w: unknown sort key %q", ErrInvalidListQuery, q.SortBy)
	}
	if q.SortDirection != SortAsc && q.SortDirection != SortDesc {
		return ListQuery{}, fmt.Errorf("%w: sort direction must be asc or desc", ErrInvalidListQuery)
	}
	return q, nil
}

func (q ListQuery) values() url.Values {
	return url.Values{
		"page":           {strconv.Itoa(q.Page)},
		"size":           {strconv.Itoa(q.Size)},
		"sort_by":        {q.SortBy},
		"sort_direction": {string(q.SortDirection)},
	}
}

// ListFeedback fetches one page of stored feedback. Backend failures wrap
// ErrBackendUnavailable or ErrBackendRejected.
func (c *Client) ListFeedback(ctx context.Context, q ListQuery) (FeedbackPage, error) {
	if c == nil || c.backend == nil {
		return FeedbackPage{}, ErrClientNotReady
	}
	q, err := q.Normalize()
	if err != nil {
		return FeedbackPage{}, err
	}

	var page FeedbackPage
	err = flows.RunListFeedback(ctx, &page, flows.ListDeps{
		Path:      c.config.Backend.FeedbackPath,
		Query:     q.values(),
		Get:       c.backend.GetJSON,
		Observers: c.observers(),
		Metrics: flows.ListMetrics{
			Success: int(MetricListSuccess),
			Failure: int(MetricListFailure),
		},
		Events: flows.ListEvents{
			List: auditEventFeedbackList,
		},
	})
	if err != nil {
		return FeedbackPage{}, backendError(err)
	}
	if page.Items == nil {
		page.Items = []FeedbackRecord{}
	}
	return page, nil
}
