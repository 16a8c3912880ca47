// Package observer tracks connected clients and turns raw server
// notification lines into connect/exit/nick-change events for the
// matcher.
package observer

// User is a per-connection snapshot, keyed by current nickname in the
// owning Table. Only the single engine actor mutates a User's fields;
// other components read the pointer they were handed.
type User struct {
	Ident     string
	Host      string
	Real      string
	IP        string // empty means unknown/spoofed ("0" on the wire)
	Account   string // empty means no authenticated account yet
	Secure    bool
	Connected bool
}

// HasIP reports whether ip is known (not the "0" spoof placeholder).
func (u *User) HasIP() bool { return u.IP != "" }

// HasAccount reports whether an authenticated account has been established.
func (u *User) HasAccount() bool { return u.Account != "" }

// Table is the live nick -> User map. Not safe for concurrent use; owned
// by the single engine actor (see spec §5).
type Table struct {
	byNick map[string]*User
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{byNick: make(map[string]*User)}
}

// Connect creates and stores a new User for nick, replacing any existing
// entry under that nick.
func (t *Table) Connect(nick string, u *User) {
	t.byNick[nick] = u
}

// Get returns the User for nick, if connected.
func (t *Table) Get(nick string) (*User, bool) {
	u, ok := t.byNick[nick]
	return u, ok
}

// Exit removes nick from the table and marks the snapshot disconnected so a
// pending check that fires late is dropped rather than acted on.
func (t *Table) Exit(nick string) {
	if u, ok := t.byNick[nick]; ok {
		u.Connected = false
		delete(t.byNick, nick)
	}
}

// Rename moves the User record from old to new, clearing Account (identity
// must be re-established under the new nick). Returns the moved User and
// whether old was present.
func (t *Table) Rename(old, new string) (*User, bool) {
	u, ok := t.byNick[old]
	if !ok {
		return nil, false
	}
	delete(t.byNick, old)
	u.Account = ""
	t.byNick[new] = u
	return u, true
}
