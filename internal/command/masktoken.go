package command

import (
	"fmt"
	"strings"
)

const maskDelimiters = `/"'%`

// ExtractMaskToken splits args into its leading mask literal
// ("<D>body<D><flags>", where D may be escaped inside body per §4.A) and
// the remainder, trimmed. Unlike a whitespace split, this respects
// delimiter bodies that themselves contain spaces.
func ExtractMaskToken(args string) (token, rest string, err error) {
	args = strings.TrimLeft(args, " \t")
	if args == "" {
		return "", "", fmt.Errorf("command: missing mask")
	}
	if !strings.ContainsRune(maskDelimiters, rune(args[0])) {
		return "", "", fmt.Errorf("command: mask must start with one of %s", maskDelimiters)
	}

	delim := args[0]
	end := -1
	for i := 1; i < len(args); i++ {
		switch args[i] {
		case '\\':
			i++
		case delim:
			end = i
		}
		if end != -1 {
			break
		}
	}
	if end == -1 {
		return "", "", fmt.Errorf("command: unterminated mask delimiter")
	}

	i := end + 1
	for i < len(args) && args[i] != ' ' && args[i] != '\t' {
		i++
	}
	return args[:i], strings.TrimSpace(args[i:]), nil
}
