// Package scoring normalizes raw game metrics into comparable scores.
package scoring

import "math"

// LiteracyScore converts a trivia correct/answered pair into a 0-100
// score, rounded to one decimal. Zero answered yields zero.
func LiteracyScore(correct, answered int) float64 {
	if answered <= 0 {
		return 0
	}
	ratio := float64(correct) / float64(answered)
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	return math.Round(ratio*1000) / 10
}

// PlayerProfile is a normalized player-type breakdown: scores sum to 1
// (within rounding) and Dominant names the strongest type.
type PlayerProfile struct {
	Scores   map[string]float64 `json:"scores"`
	Dominant string             `json:"dominant"`
}

// PlayerTypes normalizes per-type accumulators onto a unit simplex.
// Negative accumulators are clamped to zero; an all-zero input yields
// an empty profile.
func PlayerTypes(raw map[string]float64) PlayerProfile {
	total := 0.0
	for _, v := range raw {
		if v > 0 {
			total += v
		}
	}
	if total == 0 {
		return PlayerProfile{Scores: map[string]float64{}}
	}

	profile := PlayerProfile{Scores: make(map[string]float64, len(raw))}
	best := -1.0
	for k, v := range raw {
		if v < 0 {
			v = 0
		}
		score := math.Round(v/total*1000) / 1000
		profile.Scores[k] = score
		if score > best || (score == best && k < profile.Dominant) {
			best = score
			profile.Dominant = k
		}
	}
	return profile
}
