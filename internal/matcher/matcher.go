// Package matcher builds enriched references for a single observation and
// evaluates them against the active mask set.
package matcher

import (
	"maskwatch/internal/mask"
	"maskwatch/internal/maskset"
	"maskwatch/internal/observer"
	"maskwatch/internal/ring"
)

// toMaskEvent translates the observer's trigger event into the mask
// package's header-encoding event.
func toMaskEvent(e observer.Event) mask.Event {
	if e == observer.EventNick {
		return mask.EventNick
	}
	return mask.EventConnect
}

// References builds the 1 or 2 enriched reference strings for one
// observation: one against Host, plus a second against IP when IP is known
// and differs from Host.
func References(nick string, u *observer.User, event observer.Event) []string {
	ev := toMaskEvent(event)
	refs := []string{mask.Reference(u.HasAccount(), u.Secure, ev, nick, u.Ident, u.Host, u.Real)}
	if u.HasIP() && u.IP != u.Host {
		refs = append(refs, mask.Reference(u.HasAccount(), u.Secure, ev, nick, u.Ident, u.IP, u.Real))
	}
	return refs
}

// Check builds the enriched references for (nick, u, event), records them
// as one group in recent, and returns the ascending-id list of active mask
// ids with at least one matching reference. Per reference/predicate pair,
// matching stops at the first reference that matches (the predicate either
// matches the observation or it doesn't; a second differing reference is
// only evaluated when the first one misses).
func Check(nick string, u *observer.User, event observer.Event, set *maskset.Set, recent *ring.Ring) []uint64 {
	refs := References(nick, u, event)
	recent.Push(ring.Group{Nick: nick, Refs: refs})

	var matched []uint64
	set.Each(func(e maskset.Entry) bool {
		for _, ref := range refs {
			if e.Compile.Match(ref) {
				matched = append(matched, e.Row.ID)
				break
			}
		}
		return true
	})
	return matched
}
