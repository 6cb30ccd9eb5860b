package commands

import "strings"

// Tokenize splits a command line on whitespace, respecting double- and
// single-quoted runs. Quotes are stripped; their contents are kept verbatim.
// An empty quoted pair ("" or '') yields an empty-string argument (P9).
func Tokenize(line string) []string {
	var tokens []string
	var cur strings.Builder
	inToken := false
	var quote rune

	flush := func() {
		if inToken {
			tokens = append(tokens, cur.String())
			cur.Reset()
			inToken = false
		}
	}

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if quote != 0 {
			if r == quote {
				quote = 0
				inToken = true // even "" must produce a token
				continue
			}
			cur.WriteRune(r)
			continue
		}

		switch {
		case r == '"' || r == '\'':
			quote = r
			inToken = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			flush()
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	flush()

	return tokens
}

// ParseCommand splits a message into its command name (without the leading
// slash) and its arguments. ok is false when text does not start with '/'.
func ParseCommand(text string) (name string, args []string, ok bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return "", nil, false
	}
	tokens := Tokenize(trimmed[1:])
	if len(tokens) == 0 {
		return "", nil, false
	}
	return tokens[0], tokens[1:], true
}
