package ircclient

import "strings"

// Line is one parsed server-to-client protocol line.
type Line struct {
	Raw     string
	Source  string
	Command string
	Params  []string
}

// parseLine splits a raw, CRLF-stripped protocol line into its source,
// command and parameter list, per the standard ":source CMD p1 p2 :trailing"
// grammar. Tags (the leading "@..." segment) are stripped, not retained —
// nothing this client consumes needs them.
func parseLine(raw string) Line {
	line := Line{Raw: raw}
	rest := raw

	if strings.HasPrefix(rest, "@") {
		if i := strings.IndexByte(rest, ' '); i != -1 {
			rest = rest[i+1:]
		} else {
			rest = ""
		}
	}

	if strings.HasPrefix(rest, ":") {
		if i := strings.IndexByte(rest, ' '); i != -1 {
			line.Source = rest[1:i]
			rest = rest[i+1:]
		} else {
			line.Source = rest[1:]
			rest = ""
		}
	}

	for rest != "" {
		if rest[0] == ':' {
			line.Params = append(line.Params, rest[1:])
			break
		}
		i := strings.IndexByte(rest, ' ')
		if i == -1 {
			line.Params = append(line.Params, rest)
			break
		}
		line.Params = append(line.Params, rest[:i])
		rest = rest[i+1:]
	}

	if len(line.Params) > 0 {
		line.Command = strings.ToUpper(line.Params[0])
		line.Params = line.Params[1:]
	}
	return line
}

// buildLine renders command and params into a raw protocol line, trailing
// the last parameter with ':' if it is empty, starts with ':', or contains
// a space — the standard "needs a trailing colon" cases.
func buildLine(command string, params ...string) string {
	var b strings.Builder
	b.WriteString(command)
	for i, p := range params {
		b.WriteByte(' ')
		last := i == len(params)-1
		if last && needsTrailing(p) {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}
	return b.String()
}

func needsTrailing(p string) bool {
	return p == "" || p[0] == ':' || strings.ContainsRune(p, ' ')
}

// Nick returns the nickname portion of a "nick!user@host" source, or the
// whole source if it carries no '!'.
func Nick(source string) string {
	if i := strings.IndexByte(source, '!'); i != -1 {
		return source[:i]
	}
	return source
}
