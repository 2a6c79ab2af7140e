package db

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// OccupancySummary describes how much of a window someone was present.
type OccupancySummary struct {
	From        time.Time     `json:"from"`
	To          time.Time     `json:"to"`
	Occupancy   float64       `json:"occupancy"`
	Present     time.Duration `json:"present_ns"`
	Arrivals    int           `json:"arrivals"`
	Transitions int           `json:"transitions"`
}

// OccupancyBucket is the occupied fraction of one slice of a window.
type OccupancyBucket struct {
	Start     time.Time `json:"start"`
	Occupancy float64   `json:"occupancy"`
}

// OccupancySummary reports presence over [from, to). The state at from is
// taken from the last event before the window; absence is assumed when
// there is none.
func (db *DB) OccupancySummary(from, to time.Time) (OccupancySummary, error) {
	if !to.After(from) {
		return OccupancySummary{}, fmt.Errorf("invalid window: %v is not after %v", to, from)
	}
	initial, events, err := db.window(from, to)
	if err != nil {
		return OccupancySummary{}, err
	}
	return summarize(initial, events, from, to), nil
}

// OccupancySeries splits [from, to) into buckets of the given width and
// reports the occupied fraction of each.
func (db *DB) OccupancySeries(from, to time.Time, width time.Duration) ([]OccupancyBucket, error) {
	if width <= 0 || !to.After(from) {
		return nil, fmt.Errorf("invalid series window %v..%v step %v", from, to, width)
	}
	initial, events, err := db.window(from, to)
	if err != nil {
		return nil, err
	}

	buckets := []OccupancyBucket{}
	state := initial
	i := 0
	for start := from; start.Before(to); start = start.Add(width) {
		end := start.Add(width)
		if end.After(to) {
			end = to
		}
		var inBucket []PresenceEvent
		for i < len(events) && events[i].Timestamp.Before(end) {
			inBucket = append(inBucket, events[i])
			i++
		}
		s := summarize(state, inBucket, start, end)
		buckets = append(buckets, OccupancyBucket{Start: start, Occupancy: s.Occupancy})
		if n := len(inBucket); n > 0 {
			state = inBucket[n-1].Present
		}
	}
	return buckets, nil
}

func (db *DB) window(from, to time.Time) (bool, []PresenceEvent, error) {
	last, ok, err := db.LastPresenceBefore(from)
	if err != nil {
		return false, nil, err
	}
	events, err := db.PresenceEventsBetween(from, to)
	if err != nil {
		return false, nil, err
	}
	return ok && last.Present, events, nil
}

// summarize folds ordered events into a duration-weighted occupancy.
func summarize(initial bool, events []PresenceEvent, from, to time.Time) OccupancySummary {
	s := OccupancySummary{From: from, To: to}

	var values, weights []float64
	state := initial
	cursor := from
	add := func(until time.Time) {
		d := until.Sub(cursor)
		if d <= 0 {
			return
		}
		values = append(values, indicator(state))
		weights = append(weights, d.Seconds())
		if state {
			s.Present += d
		}
		cursor = until
	}

	for _, e := range events {
		add(e.Timestamp)
		if e.Present != state {
			s.Transitions++
			if e.Present {
				s.Arrivals++
			}
		}
		state = e.Present
	}
	add(to)

	if len(values) > 0 {
		if m := stat.Mean(values, weights); !math.IsNaN(m) {
			s.Occupancy = m
		}
	}
	return s
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
