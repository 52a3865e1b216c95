package domain

import "go.trai.ch/zerr"

// StageState is the lifecycle state of an artifact being staged.
type StageState string

const (
	// StageUnbuilt means the build engine has not produced the artifact yet.
	StageUnbuilt StageState = "unbuilt"
	// StageBuilt means the artifact exists at its source path.
	StageBuilt StageState = "built"
	// StageNormalized means the archive metadata has been rewritten.
	StageNormalized StageState = "normalized"
	// StageStaged means the artifact is in place at its destination.
	StageStaged StageState = "staged"
	// StageFailed means a step failed; the whole stage must be re-run.
	StageFailed StageState = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s StageState) IsTerminal() bool {
	return s == StageStaged || s == StageFailed
}

// Transition validates a move from s to next and returns next.
func (s StageState) Transition(next StageState) (StageState, error) {
	if !s.allows(next) {
		err := zerr.With(zerr.Wrap(ErrInvalidStateTransition, "staging step out of order"), "from", string(s))
		return s, zerr.With(err, "to", string(next))
	}
	return next, nil
}

func (s StageState) allows(next StageState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StageFailed {
		return true
	}
	switch s {
	case StageUnbuilt:
		return next == StageBuilt
	case StageBuilt:
		return next == StageNormalized
	case StageNormalized:
		return next == StageStaged
	default:
		return false
	}
}
