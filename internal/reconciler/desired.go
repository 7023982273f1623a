// Package reconciler is the supervision half of component G: it reads
// the desired market set from the bus, filters out majors/stables/fiat
// bases, caps concurrency, assigns each surviving market a unique
// metrics port, and starts/stops/restarts one guard child process per
// market to match.
//
// Grounded on original_source/tools/guard_reconciler.py throughout
// (_ordered_desired, _filter_denied/GUARD_DENY_BASES,
// _assign_ports/_is_port_free/_read_current_port, env-file writing,
// Prometheus gauge/counter names), with systemd unit supervision
// replaced by direct os/exec child-process management: the reconciler
// binary is itself the process boundary here, so there's no unit file
// layer to templatize.
package reconciler

import (
	"context"
	"sort"
	"strings"

	"bitvavo-trading-core/internal/bus"
)

// DefaultDenyBases mirrors GUARD_DENY_BASES's default CSV.
var DefaultDenyBases = []string{
	"BTC", "ETH", "BNB", "ADA", "SOL", "XRP", "USDT", "USDC", "EUR", "USD", "DAI", "TUSD", "FDUSD", "EURS", "USDE",
}

// DenySet builds a base-asset deny set from a CSV list.
func DenySet(csv []string) map[string]bool {
	deny := make(map[string]bool, len(csv))
	for _, s := range csv {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			deny[s] = true
		}
	}
	return deny
}

// FilterDenied keeps only -EUR markets and drops any whose base asset
// (the part before the first '-') is in deny, or is EUR/USD outright.
// With an empty deny set, markets is returned unchanged.
func FilterDenied(markets []string, deny map[string]bool) []string {
	if len(deny) == 0 {
		return markets
	}
	out := make([]string, 0, len(markets))
	for _, m := range markets {
		if !strings.HasSuffix(strings.ToUpper(strings.TrimSpace(m)), "-EUR") {
			continue
		}
		base := strings.ToUpper(strings.TrimSpace(strings.SplitN(m, "-", 2)[0]))
		if base == "" || deny[base] || base == "EUR" || base == "USD" {
			continue
		}
		out = append(out, m)
	}
	return out
}

const (
	keyActiveSet  = "ai:active_markets"
	keyActiveList = "ai:active_markets:list"
	keyGuardActive = "guard:active_markets"
)

// OrderedDesired reads the desired market set, preferring the ordered
// list (intersected with the set for staleness-safety) and falling
// back to the sorted set when no list exists — exactly
// _ordered_desired's precedence.
func OrderedDesired(ctx context.Context, b *bus.Bus) ([]string, error) {
	list, err := b.LRange(ctx, keyActiveList, 0, -1)
	if err != nil {
		return nil, err
	}
	members, err := b.SMembers(ctx, keyActiveSet)
	if err != nil {
		return nil, err
	}

	if len(list) > 0 {
		inSet := make(map[string]bool, len(members))
		for _, m := range members {
			inSet[m] = true
		}
		out := make([]string, 0, len(list))
		for _, m := range list {
			if inSet[m] {
				out = append(out, m)
			}
		}
		return out, nil
	}

	sort.Strings(members)
	return members, nil
}

// PublishActive overwrites guard:active_markets with current — the
// reconciler's status-report-back step.
func PublishActive(ctx context.Context, b *bus.Bus, current []string) error {
	if err := b.Delete(ctx, keyGuardActive); err != nil {
		return err
	}
	if len(current) == 0 {
		return nil
	}
	values := make([]interface{}, len(current))
	for i, m := range current {
		values[i] = m
	}
	return b.RPush(ctx, keyGuardActive, values...)
}
