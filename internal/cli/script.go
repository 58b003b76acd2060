package cli

import "strings"

// SplitScript splits a SQL script into statements on ';'. Semicolons inside
// single- or double-quoted text and "--" line comments do not split. Blank
// statements are dropped and surrounding whitespace is trimmed.
func SplitScript(script string) []string {
	var (
		out     []string
		cur     strings.Builder
		quote   rune
		comment bool
	)

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case comment:
			if r == '\n' {
				comment = false
			}
			cur.WriteRune(r)
		case quote != 0:
			cur.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
			cur.WriteRune(r)
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			comment = true
			cur.WriteRune(r)
		case r == ';':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()

	return out
}
