package report

import (
	"fmt"

	"github.com/logrusorgru/aurora"
)

// ProgressLine formats a colored training progress line: episode counter,
// windowed average reward and food, and the current exploration rate.
func ProgressLine(episode, total, window int, avgReward, avgFood, epsilon float64) string {
	return fmt.Sprintf("%s - avg reward (last %d): %s, avg food: %s, epsilon: %s",
		aurora.White(fmt.Sprintf("episode %d/%d", episode, total)),
		window,
		aurora.Green(fmt.Sprintf("%.2f", avgReward)),
		aurora.Blue(fmt.Sprintf("%.1f", avgFood)),
		aurora.Yellow(fmt.Sprintf("%.3f", epsilon)),
	)
}

// SummaryLines formats an evaluation summary block.
func SummaryLines(avgReward, avgLength, avgFood, successRate float64) []string {
	return []string{
		fmt.Sprintf("  average reward:  %s", aurora.Green(fmt.Sprintf("%.2f", avgReward))),
		fmt.Sprintf("  average length:  %s", aurora.White(fmt.Sprintf("%.1f", avgLength))),
		fmt.Sprintf("  average food:    %s", aurora.Blue(fmt.Sprintf("%.1f", avgFood))),
		fmt.Sprintf("  success rate:    %s", aurora.Yellow(fmt.Sprintf("%.1f%%", successRate*100))),
	}
}
