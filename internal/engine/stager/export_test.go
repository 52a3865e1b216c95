package stager

import "time"

// SetNow replaces the clock used for StagedAt.
func SetNow(s *Stager, now func() time.Time) {
	s.now = now
}
