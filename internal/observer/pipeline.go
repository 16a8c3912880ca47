package observer

import (
	"regexp"
	"strings"
)

// Event distinguishes why a mask check was requested.
type Event int

// Supported trigger events.
const (
	EventConnect Event = iota
	EventNick
)

// PendingCheck is one queued (enqueue_time, nick, snapshot) entry, drained
// by the scheduler after a debounce delay.
type PendingCheck struct {
	EnqueuedAt int64
	Nick       string
	User       *User
	Event      Event
}

// IdentityQuerier issues an out-of-band identity query (a WHOIS) for nick.
// Set via Pipeline.OnIdentityQuery; nil means no query is issued (tests
// that don't care about the outbound side can leave it unset).
type IdentityQuerier func(nick string)

// Pipeline applies the three operator-configured regular expressions to
// every inbound server line not otherwise handled by the transport, and
// maintains the users table plus the pending-check and nick-change-whois
// queues that result.
type Pipeline struct {
	cliconn *regexp.Regexp // groups: nick, user, host, real, optional ip
	cliexit *regexp.Regexp // group: nick
	clinick *regexp.Regexp // groups: old, new

	users   *Table
	pending []PendingCheck

	// NickWhois records, in arrival order, which nick a subsequent
	// END-OF-WHOIS should correlate to and whether a check should fire.
	NickWhois []NickWhoisEntry

	queryIdentity IdentityQuerier
}

// NickWhoisEntry correlates an out-of-band identity response to a pending
// rename check. User is the snapshot as of the rename, to be checked
// directly (not via the debounced pending-check queue) once END-OF-WHOIS
// pops this entry and ShouldCheck is true.
type NickWhoisEntry struct {
	Nick        string
	User        *User
	ShouldCheck bool
}

// NewPipeline compiles the three configured patterns. Returns an error if
// any fails to compile — a configuration error, not a mask error.
func NewPipeline(cliconn, cliexit, clinick string) (*Pipeline, error) {
	cc, err := regexp.Compile(cliconn)
	if err != nil {
		return nil, err
	}
	ce, err := regexp.Compile(cliexit)
	if err != nil {
		return nil, err
	}
	cn, err := regexp.Compile(clinick)
	if err != nil {
		return nil, err
	}
	return &Pipeline{cliconn: cc, cliexit: ce, clinick: cn, users: NewTable()}, nil
}

// Users exposes the live nick table for the matcher and command dispatcher.
func (p *Pipeline) Users() *Table { return p.users }

// OnIdentityQuery registers the callback used to issue the out-of-band
// identity query (§4.E/§4.F) fired on cliconn and clinick.
func (p *Pipeline) OnIdentityQuery(fn IdentityQuerier) { p.queryIdentity = fn }

// TakePending drains and returns all pending checks accumulated so far.
func (p *Pipeline) TakePending() []PendingCheck {
	out := p.pending
	p.pending = nil
	return out
}

// namedGroup returns the named capture from a regex match, or "" if the
// regex has no such group or it did not participate in the match.
func namedGroup(re *regexp.Regexp, match []string, name string) string {
	for i, n := range re.SubexpNames() {
		if n == name && i < len(match) {
			return match[i]
		}
	}
	return ""
}

// Line feeds one raw server line through cliconn/cliexit/clinick in turn.
// now is the current unix time, used to timestamp a resulting pending
// check. Returns true if the line matched one of the three patterns.
func (p *Pipeline) Line(line string, now int64) bool {
	if m := p.cliconn.FindStringSubmatch(line); m != nil {
		p.onConnect(m, now)
		return true
	}
	if m := p.cliexit.FindStringSubmatch(line); m != nil {
		p.onExit(m)
		return true
	}
	if m := p.clinick.FindStringSubmatch(line); m != nil {
		p.onNick(m)
		return true
	}
	return false
}

func (p *Pipeline) onConnect(m []string, now int64) {
	nick := namedGroup(p.cliconn, m, "nick")
	ip := namedGroup(p.cliconn, m, "ip")
	if ip == "0" {
		ip = ""
	}
	u := &User{
		Ident:     namedGroup(p.cliconn, m, "user"),
		Host:      namedGroup(p.cliconn, m, "host"),
		Real:      namedGroup(p.cliconn, m, "real"),
		IP:        ip,
		Connected: true,
	}
	p.users.Connect(nick, u)
	p.pending = append(p.pending, PendingCheck{EnqueuedAt: now, Nick: nick, User: u, Event: EventConnect})
	if p.queryIdentity != nil {
		p.queryIdentity(nick)
	}
}

func (p *Pipeline) onExit(m []string) {
	nick := namedGroup(p.cliexit, m, "nick")
	p.users.Exit(nick)
}

func (p *Pipeline) onNick(m []string) {
	old := namedGroup(p.clinick, m, "old")
	newNick := namedGroup(p.clinick, m, "new")

	u, ok := p.users.Rename(old, newNick)
	if !ok {
		return
	}

	// UID-form nicks (forced-resv or collision recovery) start with a
	// digit and must not re-trigger matching.
	shouldCheck := !startsWithDigit(newNick)
	p.NickWhois = append(p.NickWhois, NickWhoisEntry{Nick: newNick, User: u, ShouldCheck: shouldCheck})
	if p.queryIdentity != nil {
		p.queryIdentity(newNick)
	}
}

// PopNickWhois removes and returns the front nick-change whois entry if its
// Nick matches nick, per 4.F's "front of queue equals this nick" rule.
func (p *Pipeline) PopNickWhois(nick string) (NickWhoisEntry, bool) {
	if len(p.NickWhois) == 0 || p.NickWhois[0].Nick != nick {
		return NickWhoisEntry{}, false
	}
	entry := p.NickWhois[0]
	p.NickWhois = p.NickWhois[1:]
	return entry, true
}

func startsWithDigit(s string) bool {
	if s == "" {
		return false
	}
	return strings.IndexByte("0123456789", s[0]) != -1
}
