package reporter

import (
	"fmt"
	"math"
	"time"

	"trainbot/pkg/chatfmt"
)

// progressLine renders "label: P% | cur / total [| took: d]".
func progressLine(label string, cur, total int, took time.Duration) string {
	pct := 0
	if total > 0 {
		pct = int(math.Round(float64(cur) / float64(total) * 100))
	}
	s := fmt.Sprintf("%s: %d%% | %d / %d", label, pct, cur, total)
	if took > 0 {
		s += " | took: " + chatfmt.Took(took)
	}
	return s
}

func resultsFooter(globalStep int, runName string) string {
	return fmt.Sprintf("Global step: %d | Run: %s", globalStep, runName)
}
