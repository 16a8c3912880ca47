// Package command implements the operator private-message command
// dispatcher: PM-to-self detection, operator verification, lookup against
// the fixed command set, and the GETMASK/ADDMASK/... handlers.
package command

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"maskwatch/internal/mask"
	"maskwatch/internal/maskset"
	"maskwatch/internal/ring"
	"maskwatch/internal/store"
)

// ErrUsage marks a handler error as a usage error: the reply includes the
// error text followed by every registered usage string for the command,
// rather than just the error text.
var ErrUsage = errors.New("command: usage error")

// usageError wraps a message as a usage error.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }
func (e *usageError) Unwrap() error { return ErrUsage }

// Usagef builds a usage error with a formatted message.
func Usagef(format string, args ...interface{}) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// Context bundles the engine state a command handler needs.
type Context struct {
	Catalog        *store.Catalog
	Set            *maskset.Set
	Recent         *ring.Ring
	Compiled       *mask.CompileCache // compile cache for TESTMASK/COMPILEMASK dry runs
	BanCmdTemplate string
}

// Reply is what a dispatched command produces.
type Reply struct {
	Notices   []string // NOTICE lines sent back to the caller
	Broadcast string    // non-empty: also log this line to the main channel
}

// Handler implements one command's behavior. actor identifies the
// operator issuing the command (for the Change log); now is the current
// time; args is everything after the command word, unparsed.
type Handler func(ctx *Context, actor store.Actor, now time.Time, args string) (Reply, error)

type commandDef struct {
	usage   []string
	handler Handler
}

var registry = map[string]commandDef{
	"getmask":     {usage: []string{"GETMASK <id> [-all]"}, handler: handleGetMask},
	"addmask":     {usage: []string{"ADDMASK <mask> <reason>"}, handler: handleAddMask},
	"togglemask":  {usage: []string{"TOGGLEMASK <id>"}, handler: handleToggleMask},
	"setmask":     {usage: []string{"SETMASK <id> [+duration|~duration] [<type>]"}, handler: handleSetMask},
	"listmask":    {usage: []string{"LISTMASK"}, handler: handleListMask},
	"addreason":   {usage: []string{"ADDREASON <alias> <text>"}, handler: handleAddReason},
	"delreason":   {usage: []string{"DELREASON <alias>"}, handler: handleDelReason},
	"listreason":  {usage: []string{"LISTREASON"}, handler: handleListReason},
	"testmask":    {usage: []string{"TESTMASK <mask> [-all]"}, handler: handleTestMask},
	"compilemask": {usage: []string{"COMPILEMASK <mask>"}, handler: handleCompileMask},
}

var operatorLineRe = regexp.MustCompile(`^is opered as (\S+)(?:,|$)`)

// ParseOperName extracts the oper name from a WHOIS-OPERATOR response line,
// per the synchronous identity query §4.K uses to verify command senders.
func ParseOperName(line string) (string, bool) {
	m := operatorLineRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Split lower-cases the first whitespace-separated word of text (the
// command) and returns it alongside the remainder (the argument string,
// with leading whitespace trimmed).
func Split(text string) (cmd, args string) {
	text = strings.TrimSpace(text)
	i := strings.IndexAny(text, " \t")
	if i == -1 {
		return strings.ToLower(text), ""
	}
	return strings.ToLower(text[:i]), strings.TrimSpace(text[i+1:])
}

// Dispatch looks up and runs the command named by text's first word.
// isOperator must already have been established by the caller's
// synchronous identity query (§4.K); a non-operator caller must never
// reach Dispatch; unknown commands reply with a NOTICE, not silence.
func Dispatch(ctx *Context, actor store.Actor, now time.Time, text string) Reply {
	cmd, args := Split(text)
	def, ok := registry[cmd]
	if !ok {
		return Reply{Notices: []string{fmt.Sprintf("%s is not a valid command", strings.ToUpper(cmd))}}
	}

	reply, err := def.handler(ctx, actor, now, args)
	if err == nil {
		return reply
	}

	if errors.Is(err, ErrUsage) {
		notices := append([]string{err.Error()}, def.usage...)
		return Reply{Notices: notices}
	}
	return Reply{Notices: []string{err.Error()}}
}

// splitN splits args on whitespace into n-1 leading fields plus a free-form
// remainder (n fields in all), for handlers whose last
// argument may contain spaces (reason text, mask bodies with spaces, etc).
func splitN(args string, n int) []string {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return nil
	}
	if n <= 0 || len(fields) <= n {
		return fields
	}
	// Re-join everything from field n-1 onward out of the original
	// string so embedded whitespace in the final argument is preserved.
	idx := 0
	for i := 0; i < n-1; i++ {
		idx = strings.Index(args[idx:], fields[i]) + idx + len(fields[i])
	}
	rest := strings.TrimSpace(args[idx:])
	out := append([]string{}, fields[:n-1]...)
	out = append(out, rest)
	return out
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid mask id %q", s)
	}
	return id, nil
}
