package indicators

import "math"

// Direction classifies consecutive MA values.
type Direction string

const (
	Up   Direction = "Up"
	Down Direction = "Down"
	Flat Direction = "Flat"
)

// ClassifyDirection applies the absolute flat-threshold tie-break: ties
// are decided by |prev-curr| against the threshold, not by sign.
func ClassifyDirection(prev, curr, flatThreshold float64) Direction {
	if math.Abs(prev-curr) <= flatThreshold {
		return Flat
	}
	if prev < curr {
		return Up
	}
	return Down
}

// TurnType is the short-MA turn classification.
type TurnType string

const (
	TurnUp   TurnType = "TurnUp"
	TurnDown TurnType = "TurnDown"
	TurnNone TurnType = "-"
)

const turnHysteresis = 1e-4

// ClassifyTurn needs three consecutive MA values (ma[i-2], ma[i-1],
// ma[i]) to detect a Down-to-Up or Up-to-Down flip in the first
// difference, with a fixed 1e-4 hysteresis band on each diff.
func ClassifyTurn(maPrev2, maPrev1, maCurr float64) TurnType {
	currDiff := maCurr - maPrev1
	prevDiff := maPrev1 - maPrev2

	currSign := signWithHysteresis(currDiff)
	prevSign := signWithHysteresis(prevDiff)

	if prevSign < 0 && currSign > 0 {
		return TurnUp
	}
	if prevSign > 0 && currSign < 0 {
		return TurnDown
	}
	return TurnNone
}

// signWithHysteresis returns -1, 0, or +1 using the 1e-4 hysteresis band.
func signWithHysteresis(diff float64) int {
	if diff > turnHysteresis {
		return 1
	}
	if diff < -turnHysteresis {
		return -1
	}
	return 0
}

// ConvergenceType classifies the sign of a MACD-separation delta.
type ConvergenceType string

const (
	Divergence ConvergenceType = "divergence"
	Convergence ConvergenceType = "convergence"
	Neutral     ConvergenceType = "neutral"
)

// ClassifyConvergence compares the current separation to the previous
// one: growing separation is divergence, shrinking is convergence.
func ClassifyConvergence(curr, prev float64) ConvergenceType {
	switch {
	case curr > prev:
		return Divergence
	case curr < prev:
		return Convergence
	default:
		return Neutral
	}
}

// ShortForm renders a ConvergenceType as the single-letter code used in
// the long-convergence status field (D/C/N); the long form uses the same
// letters and Neutral also maps to "N".
func (c ConvergenceType) ShortForm() string {
	switch c {
	case Divergence:
		return "D"
	case Convergence:
		return "C"
	default:
		return "N"
	}
}
