// Package regs implements the pure register-math helpers shared by the
// hashchain command channel: baud-rate divisor calculation, per-job
// work-delay budgeting, the PLL frequency table, and ticket-mask
// derivation.
package regs

import (
	"fmt"

	"github.com/rrybarczyk/braiins/internal/errs"
)

// MaxBaudRateDriftPct is the maximum relative error tolerated between
// the requested baud rate and the rate a given divisor actually
// produces, grounded on bosminer's 5% drift check in utils.rs.
const MaxBaudRateDriftPct = 5.0

// BaudDivisor computes the UART baud-rate divisor for a chain's command
// channel, following bosminer's calc_baud_clock_div: round-half-up of
// the ratio between the base clock (after its fixed pre-divider) and
// the target baud rate, then subtract one register offset.
//
//	divisor = round(baseClockHz / (baseClockDiv * baudRate)) - 1
//
// round-half-up is implemented as bosminer does it, via integer
// arithmetic scaled by 10, to avoid floating-point rounding surprises
// at the 0.5 boundary.
func BaudDivisor(baudRate uint64, baseClockHz uint64, baseClockDiv uint64) (uint64, error) {
	if baudRate == 0 {
		return 0, errs.New(errs.BaudRate, "BaudDivisor", fmt.Errorf("baud rate must be non-zero"))
	}
	if baseClockDiv == 0 {
		return 0, errs.New(errs.BaudRate, "BaudDivisor", fmt.Errorf("base clock divider must be non-zero"))
	}

	denom := baseClockDiv * baudRate
	divisor := (10*baseClockHz/denom + 5) / 10
	if divisor == 0 {
		return 0, errs.New(errs.BaudRate, "BaudDivisor", fmt.Errorf("requested baud rate %d too high for base clock %d", baudRate, baseClockHz))
	}
	divisor--

	actual := baseClockHz / (baseClockDiv * (divisor + 1))
	drift := driftPct(baudRate, actual)
	if drift > MaxBaudRateDriftPct {
		return 0, errs.New(errs.BaudRate, "BaudDivisor", fmt.Errorf(
			"requested baud %d differs from achievable %d by %.2f%%, exceeds %.2f%% tolerance",
			baudRate, actual, drift, MaxBaudRateDriftPct))
	}
	return divisor, nil
}

func driftPct(requested, actual uint64) float64 {
	if requested == 0 {
		return 0
	}
	diff := int64(requested) - int64(actual)
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) / float64(requested) * 100.0
}
