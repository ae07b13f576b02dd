package flights

import (
	"sort"
	"time"

	"github.com/skylens/skylens/pkg/opensky"
)

const (
	// trajectorySamples is the maximum number of points served per flight
	trajectorySamples = 6

	// sampleSpacing is the ideal gap between consecutive samples
	sampleSpacing = 3 * time.Minute

	// maxPointAge drops stale waypoints before sampling
	maxPointAge = time.Hour
)

// SampleTrajectory reduces a raw track to at most six points roughly
// three minutes apart covering the most recent fifteen minutes. Points
// older than an hour are discarded first; the newest surviving point
// anchors the window and always appears in the output. The result is
// ascending by timestamp and never nil.
func SampleTrajectory(path []opensky.TrackPoint, now time.Time) []TrajectoryPoint {
	cutoff := now.Add(-maxPointAge).UnixMilli()

	points := make([]TrajectoryPoint, 0, len(path))
	for _, wp := range path {
		ts := wp.Time * 1000
		if ts <= 0 || ts < cutoff {
			continue
		}
		points = append(points, TrajectoryPoint{
			Timestamp: ts,
			Latitude:  wp.Latitude,
			Longitude: wp.Longitude,
			Altitude:  wp.Altitude,
		})
	}
	if len(points) == 0 {
		return []TrajectoryPoint{}
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })

	latest := points[len(points)-1].Timestamp
	spacing := sampleSpacing.Milliseconds()
	earliest := latest - int64(trajectorySamples-1)*spacing

	selected := make([]TrajectoryPoint, 0, trajectorySamples)
	for i := 0; i < trajectorySamples; i++ {
		target := latest - int64(trajectorySamples-1-i)*spacing

		var best *TrajectoryPoint
		var bestDiff int64
		for idx := range points {
			p := &points[idx]
			if p.Timestamp < earliest {
				continue
			}
			diff := p.Timestamp - target
			if diff < 0 {
				diff = -diff
			}
			if best == nil || diff < bestDiff {
				best = p
				bestDiff = diff
			}
		}
		if best != nil {
			selected = append(selected, *best)
		}
	}

	// One point can win several slots; keep its earliest selection.
	seen := make(map[int64]bool, len(selected))
	out := make([]TrajectoryPoint, 0, len(selected))
	for _, p := range selected {
		if seen[p.Timestamp] {
			continue
		}
		seen[p.Timestamp] = true
		out = append(out, p)
	}

	if !seen[latest] {
		out = append(out, points[len(points)-1])
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}
