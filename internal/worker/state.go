package worker

// AttemptState describes where one execution attempt of a job's command is
// in its lifecycle.
type AttemptState int

const (
	// AttemptStateUnknown is the zero value for functions that return a
	// (possibly absent) AttemptState.
	AttemptStateUnknown AttemptState = iota

	// AttemptStateSpawning indicates the child process is being launched.
	AttemptStateSpawning

	// AttemptStateRunning indicates the child process has started and has
	// not yet exited or timed out.
	AttemptStateRunning

	// AttemptStateSucceeded indicates the child exited with code zero.
	AttemptStateSucceeded

	// AttemptStateFailed indicates the child exited with a non-zero code.
	AttemptStateFailed

	// AttemptStateTimedOut indicates the configured wall-clock timeout
	// elapsed and the child was forcibly terminated. Counts as a failed
	// attempt for retry purposes.
	AttemptStateTimedOut

	// AttemptStateKilled indicates the child died by signal rather than
	// exiting normally.
	AttemptStateKilled
)

// NOTE: This slice needs to be kept in sync with any changes to the
// AttemptState values.
var attemptStates = []string{
	"Unknown",
	"Spawning",
	"Running",
	"Succeeded",
	"Failed",
	"TimedOut",
	"Killed",
}

func (s AttemptState) String() string {
	if int(s) < 0 || int(s) >= len(attemptStates) {
		return attemptStates[0]
	}

	return attemptStates[s]
}
