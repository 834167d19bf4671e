package orchestrator

import (
	"fmt"
	"strings"
)

// criticalFlagPrefix marks a risk flag that forces the run to continue.
const criticalFlagPrefix = "CRITICAL_"

// terminationCheck applies the fixed arithmetic termination rule to the
// responses of the phase just validated. It is the single authority for
// stopping a run.
//
//	if phase_count >= max_phases: terminate
//	continue if avg_confidence < threshold or critical_flags > 0
func terminationCheck(responses []AgentResponse, threshold float64, executedPhases, maxPhases int) (terminate bool, reason string) {
	if executedPhases >= maxPhases {
		return true, fmt.Sprintf("phase budget reached (%d/%d)", executedPhases, maxPhases)
	}

	var sum float64
	critical := 0
	for _, r := range responses {
		sum += r.Confidence
		for _, flag := range r.RiskFlags {
			if strings.HasPrefix(flag, criticalFlagPrefix) {
				critical++
			}
		}
	}
	avg := 0.0
	if len(responses) > 0 {
		avg = sum / float64(len(responses))
	}

	if critical > 0 {
		return false, fmt.Sprintf("%d critical risk flags present", critical)
	}
	if avg < threshold {
		return false, fmt.Sprintf("avg confidence %.3f below threshold %.3f", avg, threshold)
	}
	return true, fmt.Sprintf("avg confidence %.3f meets threshold %.3f, no critical flags", avg, threshold)
}
