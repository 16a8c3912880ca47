package store

import "maskwatch/internal/mask"

// Actor identifies who/what performed a catalog mutation, for the Change
// log. Source is a full "nick!user@host" string (or the bot's own, for
// system-driven mutations such as scheduler expiry); Oper is the operator
// nickname/account when the mutation came from an operator command, empty
// otherwise.
type Actor struct {
	Source string
	Oper   string
}

// Mask is a catalog row.
type Mask struct {
	ID        uint64
	Raw       string
	Type      mask.Type
	Enabled   bool
	Reason    string
	Hits      uint64
	LastHit   int64 // unix seconds; zero means "never hit"
	Expire    int64 // positive=absolute deadline, negative=offset from LastHit, zero=never
	HasExpire bool
}

// Change is one append-only audit row against a mask id.
type Change struct {
	MaskID      uint64
	ActorSource string
	ActorOper   string
	Timestamp   int64
	Description string
}

// Reason is a (alias -> text) template row.
type Reason struct {
	Alias string
	Text  string
}
