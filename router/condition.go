package router

import (
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/embedthis/httpcore/auth"
)

// ConditionResult is the outcome of evaluating a single condition (spec
// §4.1.4): Ok lets matching continue, Reject fails this route, Reroute
// restarts route selection from the top.
type ConditionResult int

const (
	CondOK ConditionResult = iota
	CondReject
	CondReroute
)

// Condition is a named, ordered check attached to a route (spec §4.1.4).
type Condition struct {
	Name string
	Args []string
	Not  bool

	// regex caches the compiled pattern of a "match NAME PATTERN"
	// condition; populated at configuration time by NewMatchCondition.
	regex *regexp.Regexp
}

// NewMatchCondition builds a "match NAME PATTERN" condition (spec §4.1.4);
// PATTERN is compiled eagerly so a bad pattern surfaces as the regexp
// compile error at setup time rather than at dispatch.
func NewMatchCondition(name, pattern string, not bool) (*Condition, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &Condition{Name: "match", Args: []string{name, pattern}, Not: not, regex: re}, nil
}

// evalCondition runs one condition against the in-progress match, per the
// table in spec §4.1.4.
func evalCondition(ctx *dispatchState, route *Route, c *Condition) (ConditionResult, error) {
	res, err := evalConditionRaw(ctx, route, c)
	if err != nil {
		return CondReject, err
	}
	if c.Not {
		switch res {
		case CondOK:
			return CondReject, nil
		case CondReject:
			return CondOK, nil
		}
	}
	return res, nil
}

func evalConditionRaw(ctx *dispatchState, route *Route, c *Condition) (ConditionResult, error) {
	switch c.Name {
	case "allowDeny":
		if route.Auth.AllowDenyCheck(ctx.rx.ClientAddr) {
			return CondOK, nil
		}
		return CondReject, nil

	case "auth":
		return evalAuthCondition(ctx, route, false)

	case "unauthorized":
		return evalAuthCondition(ctx, route, true)

	case "directory":
		path := expandTemplate(ctx, route, strings.Join(c.Args, " "))
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			return CondReject, nil
		}
		return CondOK, nil

	case "exists":
		path := expandTemplate(ctx, route, strings.Join(c.Args, " "))
		if _, err := os.Stat(path); err != nil {
			return CondReject, nil
		}
		return CondOK, nil

	case "match":
		if len(c.Args) < 2 || c.regex == nil {
			return CondReject, fmt.Errorf("router: malformed match condition")
		}
		value := expandTemplate(ctx, route, c.Args[0])
		if c.regex.MatchString(value) {
			return CondOK, nil
		}
		return CondReject, nil

	case "secure":
		if !ctx.rx.TLS {
			return CondReject, nil
		}
		if len(c.Args) > 0 {
			maxAge, err := strconv.Atoi(c.Args[0])
			if err == nil {
				hsts := fmt.Sprintf("max-age=%d", maxAge)
				if maxAge < 0 {
					hsts = fmt.Sprintf("max-age=%d; includeSubDomains", -maxAge)
				}
				ctx.responseHeader().Set("Strict-Transport-Security", hsts)
			}
		}
		return CondOK, nil

	default:
		return CondReject, fmt.Errorf("router: unknown condition %q", c.Name)
	}
}

// evalAuthCondition implements both "auth" and its mirror "unauthorized"
// (spec §4.1.4). unauthorized succeeds iff the caller is NOT
// authenticated, guarding the login page itself.
func evalAuthCondition(ctx *dispatchState, route *Route, wantUnauthenticated bool) (ConditionResult, error) {
	a := route.Auth
	authenticated := ctx.rx.Username != ""

	if wantUnauthenticated {
		if authenticated {
			return CondReject, nil
		}
		return CondOK, nil
	}

	if a.Type == auth.TypeNone && len(a.RequiredAbilities()) == 0 {
		return CondOK, nil
	}

	if !authenticated {
		creds, ok := a.ParseCredentials(ctx.httpRequest())
		if !ok {
			if ctx.responseWriter() != nil {
				a.AskLogin(ctx.responseWriter(), ctx.httpRequest(), ctx.rx.PathInfo)
			}
			return CondReject, nil
		}
		var u *auth.User
		var err error
		if creds.Digest != nil {
			if !a.VerifyDigest(ctx.rx.Method, creds.Digest, creds.Username) {
				err = auth.ErrBadPassword
			} else {
				u, _ = a.User(creds.Username)
			}
		} else {
			u, err = a.Login(creds.Username, creds.Password)
		}
		if err != nil || u == nil {
			if ctx.responseWriter() != nil {
				a.AskLogin(ctx.responseWriter(), ctx.httpRequest(), ctx.rx.PathInfo)
			}
			return CondReject, nil
		}
		ctx.rx.Username = u.Name
	}

	if !a.CanUser(ctx.rx.Username, requiredAbilitiesArg(route)) {
		if ctx.responseWriter() != nil {
			http.Error(ctx.responseWriter(), "Forbidden", http.StatusForbidden)
		}
		return CondReject, nil
	}
	return CondOK, nil
}

func requiredAbilitiesArg(route *Route) string {
	required := route.Auth.RequiredAbilities()
	if len(required) == 0 {
		return ""
	}
	toks := make([]string, 0, len(required))
	for k := range required {
		toks = append(toks, k)
	}
	return strings.Join(toks, ",")
}
