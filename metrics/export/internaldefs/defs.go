package internaldefs

import (
	goFeedback "github.com/MrEthical07/goFeedback"
)

const namePrefix = "gofeedback_"

// Label is one name="value" pair on a series.
type Label struct {
	Name  string
	Value string
}

// Series binds one client counter to the labels it is exported under.
type Series struct {
	ID     goFeedback.MetricID
	Labels []Label
}

// Family is one exported metric name. Every series in a family carries the
// same label names.
type Family struct {
	Name   string
	Help   string
	Series []Series
}

func outcome(id goFeedback.MetricID, value string) Series {
	return Series{ID: id, Labels: []Label{{Name: "outcome", Value: value}}}
}

// CounterFamilies groups the client's counters by the user-visible operation
// they describe. Outcome, path and reason labels replace per-outcome names.
var CounterFamilies = []Family{
	{
		Name: namePrefix + "link_requests_total",
		Help: "Magic link requests by outcome.",
		Series: []Series{
			outcome(goFeedback.MetricLinkRequested, "sent"),
			outcome(goFeedback.MetricLinkRequestFailed, "failed"),
		},
	},
	{
		Name: namePrefix + "link_validations_total",
		Help: "Magic link validation calls by outcome.",
		Series: []Series{
			outcome(goFeedback.MetricValidateSuccess, "success"),
			outcome(goFeedback.MetricValidateInvalid, "invalid"),
			outcome(goFeedback.MetricValidateTransportError, "transport"),
		},
	},
	{
		Name: namePrefix + "session_evaluations_skipped_total",
		Help: "Session evaluations that did not apply a new validation result.",
		Series: []Series{
			{ID: goFeedback.MetricEvaluateDeduped, Labels: []Label{{Name: "reason", Value: "deduped"}}},
			{ID: goFeedback.MetricStaleResultDiscarded, Labels: []Label{{Name: "reason", Value: "stale"}}},
		},
	},
	{
		Name: namePrefix + "submissions_accepted_total",
		Help: "Feedback submissions the backend accepted, by authorization path.",
		Series: []Series{
			{ID: goFeedback.MetricSubmitCaptchaSuccess, Labels: []Label{{Name: "path", Value: "captcha"}}},
			{ID: goFeedback.MetricSubmitMagicLinkSuccess, Labels: []Label{{Name: "path", Value: "magic_link"}}},
		},
	},
	{
		Name: namePrefix + "submissions_refused_total",
		Help: "Feedback submissions that were not accepted.",
		Series: []Series{
			{ID: goFeedback.MetricSubmitDuplicate, Labels: []Label{{Name: "reason", Value: "duplicate"}}},
			{ID: goFeedback.MetricSubmitFailure, Labels: []Label{{Name: "reason", Value: "failed"}}},
		},
	},
	{
		Name:   namePrefix + "links_consumed_total",
		Help:   "Single-use magic links spent by an accepted submission.",
		Series: []Series{{ID: goFeedback.MetricTokenConsumed}},
	},
	{
		Name: namePrefix + "feedback_listings_total",
		Help: "Admin feedback listings by outcome.",
		Series: []Series{
			outcome(goFeedback.MetricListSuccess, "success"),
			outcome(goFeedback.MetricListFailure, "failed"),
		},
	},
	{
		Name: namePrefix + "tickets_total",
		Help: "Authorization tickets by outcome.",
		Series: []Series{
			outcome(goFeedback.MetricTicketIssued, "issued"),
			outcome(goFeedback.MetricTicketRejected, "rejected"),
		},
	},
}

// DurationFamily is the single latency histogram; the operation label picks
// the client histogram.
var DurationFamily = Family{
	Name: namePrefix + "operation_duration_seconds",
	Help: "Backend round-trip duration of magic link validations and feedback submissions.",
	Series: []Series{
		{ID: goFeedback.MetricValidateLatency, Labels: []Label{{Name: "operation", Value: "validate"}}},
		{ID: goFeedback.MetricSubmitLatency, Labels: []Label{{Name: "operation", Value: "submit"}}},
	},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = namePrefix + "audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Audit events dropped due to dispatcher backpressure."

// BucketBounds are the "le" values of the client's latency buckets.
var BucketBounds = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// Cumulative turns a snapshot's per-bucket counts into cumulative "le"
// counts. Missing buckets count as zero.
func Cumulative(raw []uint64) []uint64 {
	out := make([]uint64, len(BucketBounds))
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
