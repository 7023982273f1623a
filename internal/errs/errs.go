// Package errs defines the error taxonomy shared by every component:
// a small set of sentinel classes plus the helpers used to recognize
// them in errors bubbled up from the event bus or exchange.
package errs

import (
	"errors"
	"strings"
)

// Sentinel error classes. Wrap with fmt.Errorf("...: %w", ErrX) at the
// point of detection so errors.Is keeps working up the call stack.
var (
	// ErrTransientIO covers network timeouts, bus disconnects, and
	// exchange 5xx/429 responses. Recovery is a local retry with a
	// small delay; it must never propagate to a guard/intent abort.
	ErrTransientIO = errors.New("transient io error")

	// ErrProtocolGap is ingest-only: a nonce gap unhealable within
	// grace. Recovery is OutOfSync -> re-snapshot.
	ErrProtocolGap = errors.New("protocol gap")

	// ErrPrecisionMismatch: amount exceeds the decimals the exchange
	// will accept. Recovery is truncate-and-retry with the bounded
	// decimal fallback walk, caching the accepted value on success.
	ErrPrecisionMismatch = errors.New("precision mismatch")

	// ErrGuardBlock: intent rejected by a risk guard. No recovery;
	// log and acknowledge.
	ErrGuardBlock = errors.New("guard block")

	// ErrMalformedInput: undecodable payload or missing required
	// fields. Recovery is log, emit an error record, and acknowledge.
	ErrMalformedInput = errors.New("malformed input")

	// ErrTerminal: credential misconfiguration or persistent
	// rejection. Recovery is to log and stop the specific component;
	// peers are not affected.
	ErrTerminal = errors.New("terminal error")
)

// IsBusyGroup reports whether err is Redis's "group already exists"
// response to XGROUP CREATE — the bus's ensure_group tie-break succeeds
// silently on this rather than treating it as a failure.
func IsBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

// IsNoGroup reports whether err is Redis's "no such consumer group"
// response to XREADGROUP — the caller should re-create the group and
// retry rather than treating this as terminal.
func IsNoGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "NOGROUP")
}

// PrecisionDecimals extracts N from an exchange error of the form
// "...with N decimal digits..." as used by Bitvavo's amount-precision
// rejection. Returns (0, false) if the message doesn't match.
func PrecisionDecimals(msg string) (int, bool) {
	const marker = "with "
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return 0, false
	}
	rest := msg[idx+len(marker):]
	end := strings.IndexByte(rest, ' ')
	if end < 0 {
		return 0, false
	}
	digits := rest[:end]
	n := 0
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	if !strings.Contains(rest, "decimal digit") {
		return 0, false
	}
	return n, true
}
