// Package identity correlates out-of-band WHOIS-style responses back to
// the observer's user table and nick-change queue.
package identity

import "maskwatch/internal/observer"

// Checker is invoked when END-OF-WHOIS pops a nick-change entry whose
// ShouldCheck was true: it runs the nick-event mask check directly,
// bypassing the debounced pending-check queue (per spec §4.F, a
// nick-triggered check fires synchronously off the whois response, not
// off the connect debounce timer).
type Checker func(nick string, u *observer.User, event observer.Event)

// Enricher applies ACCOUNT/SECURE/END-OF-WHOIS response lines to the
// observer's user table.
type Enricher struct {
	pipeline *observer.Pipeline
	check    Checker
}

// New returns an Enricher that reads/writes through pipeline and invokes
// check for any nick-change whois correlated at END-OF-WHOIS time.
func New(pipeline *observer.Pipeline, check Checker) *Enricher {
	return &Enricher{pipeline: pipeline, check: check}
}

// Account records that nick has authenticated as account.
func (e *Enricher) Account(nick, account string) {
	if u, ok := e.pipeline.Users().Get(nick); ok {
		u.Account = account
	}
}

// Secure marks nick as connected over a secure transport.
func (e *Enricher) Secure(nick string) {
	if u, ok := e.pipeline.Users().Get(nick); ok {
		u.Secure = true
	}
}

// EndOfWhois pops the front nick-change whois entry if it matches nick,
// and — if ShouldCheck was set and the user is still connected — invokes
// the checker. A user that disconnected between rename and whois response
// is silently dropped (Connected was cleared by Table.Exit, or the table
// no longer holds the nick).
func (e *Enricher) EndOfWhois(nick string) {
	entry, ok := e.pipeline.PopNickWhois(nick)
	if !ok || !entry.ShouldCheck {
		return
	}
	if u, stillConnected := e.pipeline.Users().Get(nick); stillConnected && u.Connected {
		e.check(nick, u, observer.EventNick)
	}
}
