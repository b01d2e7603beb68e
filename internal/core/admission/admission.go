// Package admission provides the pure startability decision for job
// submissions. This is part of the Functional Core - all functions are pure
// with no I/O; the shell fetches the backend state and hands it in.
package admission

import "fmt"

// =============================================================================
// Observation
// =============================================================================

// BuildState is what the backend reports about the most recent build of a
// job type.
type BuildState struct {
	// Building is true while the build is still executing.
	Building bool

	// Result is the terminal result code, empty until the build finishes.
	Result string
}

// Observation is the backend state the decision is made against.
type Observation struct {
	// QueuedJobs are the job names currently waiting in the backend queue.
	QueuedJobs []string

	// LastBuild is the most recent build of the job type under decision,
	// nil when the backend has no history for it.
	LastBuild *BuildState
}

// =============================================================================
// Decision
// =============================================================================

// Decision is the outcome of an admission check. It is transient and never
// persisted.
type Decision struct {
	Startable bool
	Reason    string
}

// =============================================================================
// Decision Algorithm
// =============================================================================

// Decide determines whether a new build of jobType may be submitted.
//
// The rules, in order:
//  1. A queued trigger with the same job name blocks submission
//     (duplicate-submission guard).
//  2. No build history at all is startable; absence is not a blocker.
//  3. A build still in progress blocks submission.
//  4. A finished build whose result has not been cleared blocks submission.
//     Nothing in this service clears it; that is the job's own cleanup.
//  5. Otherwise the job is startable.
func Decide(jobType string, obs Observation) Decision {
	for _, name := range obs.QueuedJobs {
		if name == jobType {
			return Decision{
				Startable: false,
				Reason:    fmt.Sprintf("a trigger for %q is already queued", jobType),
			}
		}
	}

	if obs.LastBuild == nil {
		return Decision{
			Startable: true,
			Reason:    "no build history",
		}
	}

	if obs.LastBuild.Building {
		return Decision{
			Startable: false,
			Reason:    "the last build is still in progress",
		}
	}

	if obs.LastBuild.Result != "" {
		return Decision{
			Startable: false,
			Reason:    fmt.Sprintf("the last build finished with result %q and has not been cleared", obs.LastBuild.Result),
		}
	}

	return Decision{
		Startable: true,
		Reason:    "no active or uncleared build",
	}
}
