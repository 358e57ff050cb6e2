package sluice

// Outcome is the result tag returned by every stream and connection
// operation. The set of values is closed; each operation documents the
// subset it can return.
type Outcome string

const (
	Success      Outcome = "success"
	SuccessDrain Outcome = "success-drain"

	FailedDestroyed      Outcome = "failed-destroyed"
	FailedWritableEnded  Outcome = "failed-writable-ended"
	FailedReadableEnded  Outcome = "failed-readable-ended"
	FailedHeadersNotSent Outcome = "failed-headers-not-sent"
	FailedHeadersSent    Outcome = "failed-headers-sent"
	FailedPaused         Outcome = "failed-paused"
	FailedNotPaused      Outcome = "failed-not-paused"

	FailedNoFurtherAction Outcome = "failed-no-further-action"
	FailedDirectory       Outcome = "failed-directory"
	FailedUnknownStats    Outcome = "failed-unknown-stats"
	FailedStatsNotFound   Outcome = "failed-stats-not-found"
)

// OK reports whether the outcome is Success or SuccessDrain.
func (o Outcome) OK() bool {
	return o == Success || o == SuccessDrain
}

// Gone reports whether the outcome means the writable side can no longer
// carry anything: the stream was destroyed or already ended.
func (o Outcome) Gone() bool {
	return o == FailedDestroyed || o == FailedWritableEnded
}

func (o Outcome) String() string {
	return string(o)
}
