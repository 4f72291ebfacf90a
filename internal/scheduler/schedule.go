package scheduler

import "time"

// Phase names the scheduling phase derived from time since first deployment.
type Phase string

const (
	PhaseEarly  Phase = "early"
	PhaseSteady Phase = "steady"
)

// Schedule holds the phased interval settings.
type Schedule struct {
	Phase1Duration time.Duration
	Phase1Interval time.Duration
	Phase2Interval time.Duration
}

// NextWake returns how long to wait before the next run and the phase now
// falls in. During the early phase the wait never overshoots the phase end
// by more than a second, so the first steady-state interval starts on time.
func NextWake(now, firstDeploy time.Time, s Schedule) (time.Duration, Phase) {
	elapsed := now.Sub(firstDeploy)
	if elapsed < s.Phase1Duration {
		remaining := s.Phase1Duration - elapsed
		return min(s.Phase1Interval, remaining+time.Second), PhaseEarly
	}
	return s.Phase2Interval, PhaseSteady
}
