package command

import (
	"fmt"
	"regexp"
	"strconv"
)

var durationRe = regexp.MustCompile(`^(?:(\d+)w)?(?:(\d+)d)?(?:(\d+)h)?(?:(\d+)m)?$`)

// ParseDuration parses the SETMASK duration grammar
// "(\d+w)?(\d+d)?(\d+h)?(\d+m)?" into a second count. An all-empty match
// (the empty string, or a string with none of the four components) is
// rejected as invalid rather than silently returning zero.
func ParseDuration(s string) (int64, error) {
	m := durationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("command: invalid duration %q", s)
	}
	if m[1] == "" && m[2] == "" && m[3] == "" && m[4] == "" {
		return 0, fmt.Errorf("command: empty duration %q", s)
	}

	var total int64
	units := [4]int64{7 * 24 * 3600, 24 * 3600, 3600, 60}
	for i, g := range m[1:] {
		if g == "" {
			continue
		}
		n, err := strconv.ParseInt(g, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("command: invalid duration component %q: %w", g, err)
		}
		total += n * units[i]
	}
	return total, nil
}

// ExpireSpec parses a SETMASK expire argument of the form "+DURATION" or
// "~DURATION" into the store's (expire, hasExpire) representation: a
// leading "+" yields an absolute deadline now+duration; a leading "~"
// yields a negative offset -duration, meaning "duration after last_hit".
func ExpireSpec(arg string, now int64) (expire int64, hasExpire bool, err error) {
	if arg == "" {
		return 0, false, nil
	}
	switch arg[0] {
	case '+':
		d, err := ParseDuration(arg[1:])
		if err != nil {
			return 0, false, err
		}
		return now + d, true, nil
	case '~':
		d, err := ParseDuration(arg[1:])
		if err != nil {
			return 0, false, err
		}
		return -d, true, nil
	default:
		return 0, false, fmt.Errorf("command: expire spec must start with + or ~, got %q", arg)
	}
}
