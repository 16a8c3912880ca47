package mask

import (
	"regexp"
	"strings"
)

// Compiled is a mask source string compiled into a single regex predicate
// over an enriched Reference string.
type Compiled struct {
	Raw     string
	Flags   string
	Pattern *regexp.Regexp
}

// Match reports whether ref (an enriched Reference) satisfies the mask.
func (c *Compiled) Match(ref string) bool {
	return c.Pattern.MatchString(ref)
}

const delimiters = `/"'%`

// Compile parses and compiles a mask source string of the form
// "<delim>body<delim><flags>" into a Compiled predicate.
func Compile(raw string) (*Compiled, error) {
	if raw == "" {
		return nil, ErrEmptyMask
	}

	delim := raw[0]
	if !strings.ContainsRune(delimiters, rune(delim)) {
		return nil, ErrInvalidDelimiter
	}

	end := findUnescaped(raw, delim)
	if end == -1 {
		return nil, ErrUnterminatedMask
	}

	body := raw[1:end]
	sflags := raw[end+1:]
	if body == "" {
		return nil, ErrEmptyMask
	}

	var caseInsensitive, anchorStart, anchorEnd bool
	var requireAccount, requireSecure *bool
	matchNick := false

	for _, f := range sflags {
		switch f {
		case 'i':
			caseInsensitive = true
		case '^':
			anchorStart = true
		case '$':
			anchorEnd = true
		case 'A':
			v := false
			requireAccount = &v
		case 'a':
			v := true
			requireAccount = &v
		case 'Z':
			v := false
			requireSecure = &v
		case 'z':
			v := true
			requireSecure = &v
		case 'N':
			matchNick = true
		default:
			// Unknown flag characters are tolerated for forward
			// compatibility; they must not alter existing semantics.
		}
	}

	bodyPattern, err := bodyToRegex(delim, body, anchorStart, anchorEnd)
	if err != nil {
		return nil, err
	}

	prefix := "(?m)"
	if caseInsensitive {
		prefix = "(?mi)"
	}

	headerPattern := headerPosition(requireAccount, "0", "1") +
		headerPosition(requireSecure, "0", "1") +
		headerPosition(nickWildcard(matchNick), "1", "0")

	full := prefix + "^" + headerPattern + "\n.*" + bodyPattern

	re, err := regexp.Compile(full)
	if err != nil {
		return nil, &RegexError{Err: err}
	}

	return &Compiled{Raw: raw, Flags: sflags, Pattern: re}, nil
}

// nickWildcard translates the "match nick-change events too" flag into the
// tri-state used by headerPosition: nil (wildcard) when N is set, otherwise
// a pointer to false meaning "require the default (connect) value" — hence
// Compile passes headerPosition the digits swapped ("1" for false), since the
// connect event is encoded as 1.
func nickWildcard(matchNick bool) *bool {
	if matchNick {
		return nil
	}
	v := false
	return &v
}

// headerPosition returns the regex fragment for one header digit: a literal
// digit if a requirement is set, or "." (wildcard) if require is nil.
// falseDigit/trueDigit are the digits used for the false/true requirement.
func headerPosition(require *bool, falseDigit, trueDigit string) string {
	if require == nil {
		return "."
	}
	if *require {
		return trueDigit
	}
	return falseDigit
}

// bodyToRegex turns the mask body into a regex fragment per the delimiter's
// semantics: "/" bodies are used as-is (already a regex), quote/apostrophe
// bodies are literal strings (regex-escaped), and "%" bodies are shell-style
// globs translated to regex. Literal and glob bodies honor the ^/$ anchor
// flags; "/" bodies rely on the caller's own anchors under multiline mode.
func bodyToRegex(delim byte, body string, anchorStart, anchorEnd bool) (string, error) {
	switch delim {
	case '/':
		if _, err := regexp.Compile(body); err != nil {
			return "", &RegexError{Err: err}
		}
		return body, nil
	case '"', '\'':
		literal := regexp.QuoteMeta(unescape(body, rune(delim)))
		return anchor(literal, anchorStart, anchorEnd), nil
	case '%':
		glob := globToRegex(unescape(body, rune(delim)))
		return anchor(glob, anchorStart, anchorEnd), nil
	default:
		return "", ErrInvalidDelimiter
	}
}

func anchor(pattern string, start, end bool) string {
	if start {
		pattern = "^" + pattern
	}
	if end {
		pattern = pattern + "$"
	}
	return pattern
}

// globToRegex translates a shell-style glob (`*` and `?` wildcards, all else
// literal) into an equivalent regex fragment.
func globToRegex(glob string) string {
	var b strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

// unescape removes backslash-escapes of char from s.
func unescape(s string, char rune) string {
	var b strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '\\' && i+1 < len(runes) && runes[i+1] == char {
			b.WriteRune(char)
			i++
		} else {
			b.WriteRune(runes[i])
		}
	}
	return b.String()
}

// findUnescaped returns the index of the next unescaped occurrence of
// rune(delim) in s starting after position 0, or -1 if none is found.
// Mirrors the original implementation's escape-aware scan.
func findUnescaped(s string, delim byte) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case delim:
			return i
		}
	}
	return -1
}
