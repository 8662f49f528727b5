// Package progress runs the simulated "processing" step shown before the
// result view.
package progress

import (
	"fmt"
	"math"

	"video-upscaler/internal/domain"
)

// Messages are the status lines shown as progress advances.
var Messages = []string{
	"Initializing upload...",
	"Analyzing video frames...",
	"Enhancing texture details...",
	"Reducing noise artifacts...",
	"Upscaling resolution...",
	"Interpolating frames...",
	"Color correcting...",
	"Encoding final output...",
	"Finalizing file...",
}

// CompleteMessage replaces the status line once progress reaches 100.
const CompleteMessage = "Complete!"

// MaxIncrement bounds the progress added by one tick.
const MaxIncrement = 2.0

// totalSeconds is the ETA at zero progress.
const totalSeconds = 90.0

// Initial returns the state shown when processing starts.
func Initial() domain.ProcessingState {
	return domain.ProcessingState{
		Progress:               0,
		StatusMessage:          Messages[0],
		EstimatedTimeRemaining: FormatClock(totalSeconds),
	}
}

// Tick advances prev by increment, clamped to [0, MaxIncrement].
func Tick(prev domain.ProcessingState, increment float64) domain.ProcessingState {
	if prev.IsComplete {
		return prev
	}
	increment = math.Max(0, math.Min(MaxIncrement, increment))
	p := prev.Progress + increment
	if p >= 100 {
		return domain.ProcessingState{
			Progress:               100,
			StatusMessage:          CompleteMessage,
			EstimatedTimeRemaining: "00:00",
			IsComplete:             true,
		}
	}

	idx := int(math.Floor(p / 100 * float64(len(Messages))))
	if idx > len(Messages)-1 {
		idx = len(Messages) - 1
	}
	return domain.ProcessingState{
		Progress:               p,
		StatusMessage:          Messages[idx],
		EstimatedTimeRemaining: FormatClock(math.Max(0, totalSeconds-p*0.9)),
	}
}

// FormatClock renders seconds as MM:SS, dropping fractions.
func FormatClock(seconds float64) string {
	total := int(math.Max(0, seconds))
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
