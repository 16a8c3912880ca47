package mask

import "fmt"

// Event is the kind of client lifecycle observation being matched.
type Event int

// Supported events.
const (
	EventConnect Event = iota
	EventNick
)

// header renders the three boolean flags-header positions as fixed-width
// digits: account-present, secure, event-is-connect. Digits (rather than
// letter case) keep the header immune to a mask's case-insensitive flag,
// which must only affect the body match, never the header assertion.
func header(hasAccount, secure bool, event Event) string {
	return fmt.Sprintf("%d%d%d", boolDigit(hasAccount), boolDigit(secure), boolDigit(event == EventConnect))
}

func boolDigit(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Reference builds the enriched reference string a compiled predicate is
// matched against: a one-line flags header, then "\n", then the canonical
// "nick!ident@host real-name" line.
func Reference(hasAccount, secure bool, event Event, nick, ident, host, real string) string {
	return header(hasAccount, secure, event) + "\n" + nick + "!" + ident + "@" + host + " " + real
}
