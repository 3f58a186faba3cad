package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/prompt"
)

// Slot describes one requested target awaiting its result.
type Slot struct {
	ID      string
	Name    string
	Started time.Time
}

// Outcome is a final result for the slot at Index.
type Outcome struct {
	Index  int
	Result prompt.Result
}

// Observer is told about every slot as soon as its result is final.
type Observer func(index int, result prompt.Result)

// Collect gathers one result per slot. When ctx ends first, every slot still
// pending is recorded as a timeout (or canceled when the caller gave up) and
// anything arriving afterwards is ignored. Results come back in slot order.
func Collect(ctx context.Context, slots []Slot, results <-chan Outcome, observe Observer, now func() time.Time) []prompt.Result {
	out := make([]prompt.Result, len(slots))
	done := make([]bool, len(slots))
	remaining := len(slots)

	accept := func(o Outcome) {
		if o.Index < 0 || o.Index >= len(slots) || done[o.Index] {
			return
		}
		out[o.Index] = o.Result
		done[o.Index] = true
		remaining--
		if observe != nil {
			observe(o.Index, o.Result)
		}
	}

	for remaining > 0 {
		select {
		case o := <-results:
			accept(o)
		case <-ctx.Done():
			// Results already buffered made it before the deadline.
			for drained := false; !drained && remaining > 0; {
				select {
				case o := <-results:
					accept(o)
				default:
					drained = true
				}
			}

			at := now()
			for i, slot := range slots {
				if done[i] {
					continue
				}
				accept(Outcome{Index: i, Result: expired(ctx.Err(), slot, at)})
			}
			return out
		}
	}
	return out
}

func expired(cause error, slot Slot, at time.Time) prompt.Result {
	took := at.Sub(slot.Started)
	if errors.Is(cause, context.Canceled) {
		return prompt.Failure(slot.ID, slot.Name, prompt.ReasonCanceled, "request canceled", at, took)
	}
	return prompt.Timeout(slot.ID, slot.Name, fmt.Sprintf("no response after %s", took.Round(time.Millisecond)), at, took)
}
