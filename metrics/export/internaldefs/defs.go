// Package internaldefs holds the shared metric naming table used by every
// exporter, so the Prometheus and OTel bridges can never disagree on names
// or bucket bounds.
package internaldefs

import (
	"github.com/pairmint/pairmint"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   pairmint.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   pairmint.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: pairmint.MetricIssueSuccess, Name: "pairmint_issue_success_total", Help: "Successfully minted token pairs."},
	{ID: pairmint.MetricIssueFailure, Name: "pairmint_issue_failure_total", Help: "Failed pair issuance attempts."},
	{ID: pairmint.MetricRotateSuccess, Name: "pairmint_rotate_success_total", Help: "Successful rotations."},
	{ID: pairmint.MetricRotateRejected, Name: "pairmint_rotate_rejected_total", Help: "Rejected rotation attempts."},
	{ID: pairmint.MetricRotateReuseDetected, Name: "pairmint_rotate_reuse_detected_total", Help: "Rotations rejected because the refresh token was already used."},
	{ID: pairmint.MetricRotateBindingMismatch, Name: "pairmint_rotate_binding_mismatch_total", Help: "Rotations rejected because the pair was not bound together."},
	{ID: pairmint.MetricVerifySuccess, Name: "pairmint_verify_success_total", Help: "Successful access token verifications."},
	{ID: pairmint.MetricVerifyFailure, Name: "pairmint_verify_failure_total", Help: "Failed access token verifications."},
	{ID: pairmint.MetricTokenRevoked, Name: "pairmint_token_revoked_total", Help: "Single refresh token revocations."},
	{ID: pairmint.MetricOwnerRevoked, Name: "pairmint_owner_revoked_total", Help: "Revoke-all-for-owner operations."},
}

var HistogramDefs = []HistogramDef{
	{ID: pairmint.MetricRotateLatency, Name: "pairmint_rotate_latency_seconds", Help: "Rotation latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, as rendered in
// Prometheus le labels. Must stay in sync with the engine's bucketing.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix gives each bound an identifier-safe spelling for
// backends that reject label syntax in instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count. A missing histogram (latency disabled) becomes all zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus histograms require.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
