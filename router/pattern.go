package router

import (
	"regexp"
	"strings"
)

// finalizePattern rewrites route.pattern per spec §4.1.3 and compiles it,
// populating compiledPattern, tokens, startWith and startSegment.
func finalizePattern(r *Route) error {
	// startWith/startSegment are dispatch.go's fast-reject key, checked
	// against rx.PathInfo before the prefix is stripped (dispatch.go steps
	// a/b run ahead of step c), so they're derived from the pattern with
	// only its "^" anchor implied — prefix still included — matching
	// route.c:1496-1545's finalizePattern. Only the regex itself compiles
	// against the prefix-stripped text, since prefix stripping happens
	// before the stripped path is matched against it.
	r.startWith, r.startSegment = leadingLiteral(r.pattern)

	src := r.pattern
	if r.prefix != "" && strings.HasPrefix(src, r.prefix) {
		src = src[len(r.prefix):]
	}
	rewritten, tokens := rewritePattern(src)
	anchored := "^" + rewritten
	re, err := regexp.Compile(anchored)
	if err != nil {
		return err
	}
	r.compiledPattern = re
	r.tokens = tokens
	return nil
}

// rewritePattern applies the §4.1.3 grammar: \{ \~ become literal { ~,
// (~PAT~) becomes (?:PAT)?, {name} becomes ([^/]*), {name=PAT} becomes
// (PAT), each named group appended to tokens in order.
func rewritePattern(src string) (string, []string) {
	var out strings.Builder
	var tokens []string
	i := 0
	for i < len(src) {
		switch {
		case strings.HasPrefix(src[i:], `\{`):
			out.WriteByte('{')
			i += 2
		case strings.HasPrefix(src[i:], `\~`):
			out.WriteByte('~')
			i += 2
		case strings.HasPrefix(src[i:], "(~"):
			end := strings.Index(src[i+2:], "~)")
			if end < 0 {
				out.WriteString(src[i:])
				i = len(src)
				continue
			}
			inner := src[i+2 : i+2+end]
			rewrittenInner, innerTokens := rewritePattern(inner)
			out.WriteString("(?:")
			out.WriteString(rewrittenInner)
			out.WriteString(")?")
			tokens = append(tokens, innerTokens...)
			i += 2 + end + 2
		case src[i] == '{':
			end := strings.IndexByte(src[i:], '}')
			if end < 0 {
				out.WriteByte(src[i])
				i++
				continue
			}
			body := src[i+1 : i+end]
			name, pat, hasPat := strings.Cut(body, "=")
			if hasPat {
				out.WriteByte('(')
				out.WriteString(pat)
				out.WriteByte(')')
			} else {
				out.WriteString(`([^/]*)`)
			}
			tokens = append(tokens, name)
			i += end + 1
		default:
			out.WriteByte(src[i])
			i++
		}
	}
	return out.String(), tokens
}

// leadingLiteral returns the longest leading literal run of src (stopping
// at the first regex metacharacter or template token) and its first path
// segment, used as the fast-reject key (spec §4.1.3, §4.1.2 step a-b).
func leadingLiteral(src string) (literal, segment string) {
	const meta = `\.+*?()[]{}|^$`
	i := 0
	for i < len(src) {
		c := src[i]
		if strings.ContainsRune(meta, rune(c)) {
			break
		}
		i++
	}
	literal = src[:i]
	if slash := strings.IndexByte(literal[minInt(1, len(literal)):], '/'); slash >= 0 {
		segment = literal[:slash+minInt(1, len(literal))]
	} else {
		segment = literal
	}
	return literal, segment
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// buildTemplate derives the inbound-link template in parallel with the
// regex (spec §4.1.3): metacharacters are erased, {name} becomes ${name},
// (~...~) is elided entirely.
func buildTemplate(src string) string {
	var out strings.Builder
	i := 0
	for i < len(src) {
		switch {
		case strings.HasPrefix(src[i:], "(~"):
			end := strings.Index(src[i+2:], "~)")
			if end < 0 {
				i = len(src)
				continue
			}
			i += 2 + end + 2
		case src[i] == '{':
			end := strings.IndexByte(src[i:], '}')
			if end < 0 {
				i++
				continue
			}
			body := src[i+1 : i+end]
			name, _, _ := strings.Cut(body, "=")
			out.WriteString("${")
			out.WriteString(name)
			out.WriteByte('}')
			i += end + 1
		case strings.ContainsRune(`\.+*?()[]|^$`, rune(src[i])):
			i++
		default:
			out.WriteByte(src[i])
			i++
		}
	}
	return out.String()
}
