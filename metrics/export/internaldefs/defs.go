package internaldefs

import (
	goSession "github.com/moneysab/goSession"
)

// CounterDef names one session counter for exporters.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one latency histogram for exporters.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "gosession_audit_dropped_total"

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Completed logins."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Logins that ended unauthenticated."},
	{ID: goSession.MetricProfileFetchFailure, Name: "gosession_profile_fetch_failure_total", Help: "Failed profile loads."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Refresh calls that succeeded."},
	{ID: goSession.MetricRefreshFailure, Name: "gosession_refresh_failure_total", Help: "Refresh calls that failed."},
	{ID: goSession.MetricRefreshJoined, Name: "gosession_refresh_joined_total", Help: "Callers that shared an in-flight refresh."},
	{ID: goSession.MetricPeriodicRefreshFailure, Name: "gosession_periodic_refresh_failure_total", Help: "Failed periodic refresh ticks."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "Logouts that cleared local state."},
	{ID: goSession.MetricSignOutFailure, Name: "gosession_sign_out_failure_total", Help: "Server sign-out calls that failed."},
	{ID: goSession.MetricUnauthorizedResponse, Name: "gosession_unauthorized_response_total", Help: "401 responses seen by the request authorizer."},
	{ID: goSession.MetricRetryAfterRefresh, Name: "gosession_retry_after_refresh_total", Help: "Requests replayed after a refresh."},
	{ID: goSession.MetricForbiddenResponse, Name: "gosession_forbidden_response_total", Help: "403 responses seen by the request authorizer."},
	{ID: goSession.MetricGateAllowed, Name: "gosession_gate_allowed_total", Help: "Gate checks that allowed navigation."},
	{ID: goSession.MetricGateDeniedLogin, Name: "gosession_gate_denied_login_total", Help: "Gate checks redirected to login."},
	{ID: goSession.MetricGateDeniedRole, Name: "gosession_gate_denied_role_total", Help: "Gate checks redirected to the landing page."},
	{ID: goSession.MetricUploadFallback, Name: "gosession_upload_fallback_total", Help: "Fallbacks between upload strategies."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricRefreshLatency, Name: "gosession_refresh_latency_seconds", Help: "Refresh call latency."},
}

// HistogramBounds are the upper bounds of the finite buckets in seconds, in
// the order goSession records them. The last recorded bucket is +Inf.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten buckets into separate instruments.
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

// NormalizeBuckets pads or truncates raw to the eight recorded buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
