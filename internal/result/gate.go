// Package result serves the engine-maintained exam results: the time-gated
// student view, the administrative overwrite path and per-exam leaderboards.
package result

import (
	"time"

	"exam-system/internal/identity"
)

// State is the outcome of the visibility gate for one read.
type State string

const (
	Hidden  State = "HIDDEN"
	Visible State = "VISIBLE"
)

// Gate evaluates, at read time, whether a reader may see results of an exam
// whose release time is showAt. Nothing about the outcome is stored.
func Gate(reader identity.Identity, showAt *time.Time, now time.Time) State {
	if !reader.IsStudent() || showAt == nil || !now.Before(*showAt) {
		return Visible
	}
	return Hidden
}
