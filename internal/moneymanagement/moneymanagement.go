// Package moneymanagement implements the two stake-sizing policies a lot
// can run under — fixed stake and Martingale progression — plus the
// lot-level stop conditions that end a session.
package moneymanagement

// Mode selects how a symbol's stake is sized after each settlement.
type Mode string

const (
	ModeFix        Mode = "fix"
	ModeMartingale Mode = "martingale"
)

// ladder is the fixed Martingale progression; the index saturates at the
// last entry rather than growing without bound.
var ladder = []float64{1, 2, 6, 18, 54, 162, 384, 800, 1600}

// LadderValue returns the stake at a ladder index, clamped to the last
// rung.
func LadderValue(index int) float64 {
	if index < 0 {
		index = 0
	}
	if index >= len(ladder) {
		index = len(ladder) - 1
	}
	return ladder[index]
}

// LadderLen reports how many rungs the progression has.
func LadderLen() int { return len(ladder) }

// Tracker holds one lot's money-management state: accumulated profit,
// win count, and a per-symbol Martingale ladder index.
type Tracker struct {
	Mode          Mode
	InitialStake  float64
	TargetProfit  float64
	TargetWin     int
	GrandProfit   float64
	WinCount      int
	TradeCount    int
	ladderIndex   map[string]int
}

// NewTracker constructs a Tracker for a fresh lot.
func NewTracker(mode Mode, initialStake, targetProfit float64, targetWin int) *Tracker {
	return &Tracker{
		Mode:         mode,
		InitialStake: initialStake,
		TargetProfit: targetProfit,
		TargetWin:    targetWin,
		ladderIndex:  make(map[string]int),
	}
}

// Stake computes the stake for a symbol's next trade under the current
// mode.
func (t *Tracker) Stake(symbol string) float64 {
	if t.Mode == ModeMartingale {
		return LadderValue(t.ladderIndex[symbol])
	}
	return t.InitialStake
}

// Settle folds in a trade's outcome: updates balance-affecting totals and
// advances or resets the symbol's Martingale ladder index.
func (t *Tracker) Settle(symbol string, profit float64) (isWin bool) {
	isWin = profit > 0
	t.GrandProfit += profit
	t.TradeCount++
	if isWin {
		t.WinCount++
	}

	if t.Mode == ModeMartingale {
		if isWin {
			t.ladderIndex[symbol] = 0
		} else {
			idx := t.ladderIndex[symbol] + 1
			if idx >= LadderLen() {
				idx = LadderLen() - 1
			}
			t.ladderIndex[symbol] = idx
		}
	}
	return isWin
}

// StopReason names why a lot stopped, or empty while still active.
type StopReason string

const (
	StopNone             StopReason = ""
	StopUser             StopReason = "user"
	StopTargetProfitHit  StopReason = "target_profit_hit"
	StopTargetWinHit     StopReason = "target_win_hit"
	StopUpstreamFailure  StopReason = "upstream_failure"
)

// CheckStop reports whether the lot's configured stop condition has been
// reached: fix mode stops on grand profit, martingale mode stops on win
// count.
func (t *Tracker) CheckStop() StopReason {
	switch t.Mode {
	case ModeFix:
		if t.GrandProfit >= t.TargetProfit {
			return StopTargetProfitHit
		}
	case ModeMartingale:
		if t.WinCount >= t.TargetWin {
			return StopTargetWinHit
		}
	}
	return StopNone
}
