package router

import (
	"net/url"
	"strings"
)

// expandTemplate runs the two-pass substitution from spec §4.1.7 against
// str: first pattern tokens ($0.. $9, $&, $', $`) from the current route's
// regex match, then request tokens (${category:name=default}). A leading
// unescaped "~" expands to the route's prefix (or "/").
func expandTemplate(ctx *dispatchState, route *Route, str string) string {
	if strings.HasPrefix(str, "~") {
		prefix := route.prefix
		if prefix == "" && !strings.HasPrefix(str, "~/") {
			prefix = "/"
		}
		str = prefix + str[1:]
	}
	str = expandPatternTokens(str, ctx.matchSubject, ctx.matchResult)
	str = expandRequestTokens(ctx, str)
	return str
}

// expandPatternTokens substitutes $0..$9 (numbered capture groups), $&
// (whole match) $' / $` (text after/before the match) against subject and
// the regex match indices in result (index pairs, as returned by
// FindStringSubmatchIndex).
func expandPatternTokens(str, subject string, result []int) string {
	if result == nil {
		return str
	}
	group := func(n int) string {
		i := n * 2
		if i+1 >= len(result) || result[i] < 0 {
			return ""
		}
		return subject[result[i]:result[i+1]]
	}
	var out strings.Builder
	for i := 0; i < len(str); i++ {
		if str[i] != '$' || i+1 >= len(str) {
			out.WriteByte(str[i])
			continue
		}
		next := str[i+1]
		switch {
		case next >= '0' && next <= '9':
			out.WriteString(group(int(next - '0')))
			i++
		case next == '&':
			out.WriteString(group(0))
			i++
		case next == '\'':
			if len(result) >= 2 && result[1] >= 0 {
				out.WriteString(subject[result[1]:])
			}
			i++
		case next == '`':
			if len(result) >= 2 && result[0] >= 0 {
				out.WriteString(subject[:result[0]])
			}
			i++
		default:
			out.WriteByte(str[i])
		}
	}
	return out.String()
}

// expandRequestTokens substitutes ${category:name=default} tokens (spec
// §4.1.7): header, param, request:<field>, ssl:<field>.
func expandRequestTokens(ctx *dispatchState, str string) string {
	var out strings.Builder
	i := 0
	for i < len(str) {
		if str[i] != '$' || i+1 >= len(str) || str[i+1] != '{' {
			out.WriteByte(str[i])
			i++
			continue
		}
		end := strings.IndexByte(str[i:], '}')
		if end < 0 {
			out.WriteString(str[i:])
			break
		}
		token := str[i+2 : i+end]
		out.WriteString(resolveRequestToken(ctx, token))
		i += end + 1
	}
	return out.String()
}

func resolveRequestToken(ctx *dispatchState, token string) string {
	category, rest, hasCategory := strings.Cut(token, ":")
	if !hasCategory {
		// Bare "{name}" route token (already captured); also allow bare
		// "${name}" as a param lookup for convenience.
		return lookupWithDefault(ctx.rx.Params, token)
	}
	name, def, _ := strings.Cut(rest, "=")

	switch category {
	case "header":
		if v := ctx.rx.Header.Get(name); v != "" {
			return v
		}
		return def
	case "param":
		return lookupWithDefault(ctx.rx.Params, name, def)
	case "request":
		return requestField(ctx, name, def)
	case "ssl":
		return sslField(ctx, name, def)
	default:
		return def
	}
}

func lookupWithDefault(m map[string]string, key string, def ...string) string {
	if v, ok := m[key]; ok {
		return v
	}
	if len(def) > 0 {
		return def[0]
	}
	return ""
}

func requestField(ctx *dispatchState, name, def string) string {
	rx := ctx.rx
	switch name {
	case "clientAddress":
		return orDefault(rx.ClientAddr, def)
	case "filename":
		return orDefault(rx.filename, def)
	case "method":
		return orDefault(rx.Method, def)
	case "pathInfo":
		return orDefault(rx.PathInfo, def)
	case "scheme":
		return orDefault(rx.Scheme, def)
	case "uri":
		return orDefault(rx.PathInfo, def)
	case "error":
		return orDefault(rx.ErrorMsg, def)
	case "language":
		return orDefault(rx.Language, def)
	case "languageDir":
		return orDefault(rx.LanguageDir, def)
	case "scriptName":
		return orDefault(ctx.route.prefix, def)
	case "query":
		return orDefault(ctx.rawQuery, def)
	case "reference":
		u := url.URL{Scheme: rx.Scheme, Host: rx.Authority, Path: rx.PathInfo, RawQuery: ctx.rawQuery}
		return orDefault(u.String(), def)
	default:
		return def
	}
}

func sslField(ctx *dispatchState, name, def string) string {
	if !ctx.rx.TLS {
		return def
	}
	switch name {
	case "enabled":
		return "true"
	default:
		return def
	}
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
