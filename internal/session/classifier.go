package session

import (
	"time"

	"github.com/asheshgoplani/claude-watch/internal/claudelog"
)

// DefaultQuietThreshold is the minimum silence before a live session with
// no in-flight tool counts as Idle rather than Waiting.
const DefaultQuietThreshold = 3 * time.Second

// Classify derives a live session's status from process liveness and the
// log tail summary. It is a pure function of its arguments: identical
// inputs always yield the identical status.
//
// Priority order, first match wins:
//  1. process gone: StatusGone (session dropped this cycle)
//  2. tail unavailable: Waiting (process exists, internals unobservable)
//  3. recent assistant message: Thinking
//  4. recent tool invocation: Processing
//  5. recent prompt or tool result: Thinking (assistant has work queued)
//  6. quiet for the threshold with no tool in flight: Idle
//  7. otherwise: Waiting
//
// Local slash commands and interrupted requests never count as queued
// work, so they fall through to Idle/Waiting by recency.
func Classify(processAlive bool, tail *claudelog.TailSummary, now time.Time, quiet time.Duration) Status {
	if !processAlive {
		return StatusGone
	}
	if tail == nil {
		return StatusWaiting
	}
	if quiet <= 0 {
		quiet = DefaultQuietThreshold
	}

	recent := now.Sub(tail.Timestamp) < quiet

	if recent {
		switch tail.Kind {
		case claudelog.KindAssistantMessage:
			return StatusThinking
		case claudelog.KindToolUse:
			return StatusProcessing
		case claudelog.KindUserPrompt, claudelog.KindToolResult:
			return StatusThinking
		default:
			return StatusWaiting
		}
	}

	if !tail.ToolInFlight {
		return StatusIdle
	}
	return StatusWaiting
}
