// Package slots places scheduled posts onto an account's daily posting times.
package slots

import (
	"fmt"
	"sort"
	"time"
)

// Resolver walks an account's posting times to find the next free slot.
type Resolver struct {
	times []slotTime
	loc   *time.Location
}

type slotTime struct {
	hour   int
	minute int
}

// NewResolver parses HH:MM posting times. At least one time is required.
func NewResolver(postTimes []string, loc *time.Location) (*Resolver, error) {
	if len(postTimes) == 0 {
		return nil, fmt.Errorf("at least one posting time required")
	}
	if loc == nil {
		loc = time.Local
	}
	times := make([]slotTime, 0, len(postTimes))
	for _, raw := range postTimes {
		var hour, minute int
		if _, err := fmt.Sscanf(raw, "%d:%d", &hour, &minute); err != nil {
			return nil, fmt.Errorf("parse posting time %q: %w", raw, err)
		}
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			return nil, fmt.Errorf("posting time %q out of range", raw)
		}
		times = append(times, slotTime{hour: hour, minute: minute})
	}
	sort.Slice(times, func(i, j int) bool {
		if times[i].hour != times[j].hour {
			return times[i].hour < times[j].hour
		}
		return times[i].minute < times[j].minute
	})
	return &Resolver{times: times, loc: loc}, nil
}

// NextSlot returns the first posting time strictly after the given instant.
// Chaining calls with the returned value walks successive slots.
func (r *Resolver) NextSlot(after time.Time) time.Time {
	after = after.In(r.loc)
	for _, st := range r.times {
		candidate := time.Date(after.Year(), after.Month(), after.Day(), st.hour, st.minute, 0, 0, r.loc)
		if candidate.After(after) {
			return candidate
		}
	}
	// All of today's slots have passed; take the first slot tomorrow.
	first := r.times[0]
	next := after.AddDate(0, 0, 1)
	return time.Date(next.Year(), next.Month(), next.Day(), first.hour, first.minute, 0, 0, r.loc)
}
