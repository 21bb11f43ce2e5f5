package router

import (
	"html"
	"net/http"
	"strconv"
	"strings"
)

// applyTarget runs the route's terminal target rule (spec §4.1.6). Any
// non-OK return rejects the route and matching continues with the next
// candidate (spec §4.1.2 step j).
func applyTarget(ctx *dispatchState, route *Route) (ConditionResult, error) {
	switch route.targetRule {
	case TargetClose:
		ctx.rx.target = ""
		ctx.response.Finalized = true
		return CondOK, nil

	case TargetRedirect:
		status := route.responseStatus
		if status == 0 {
			status = http.StatusFound
		}
		uri := expandTemplate(ctx, route, route.targetArg)
		if ctx.w != nil {
			http.Redirect(ctx.w, ctx.r, uri, status)
		}
		ctx.response.Status = status
		ctx.response.Finalized = true
		return CondOK, nil

	case TargetWrite:
		arg := route.targetArg
		raw := false
		if strings.HasPrefix(arg, "-r ") {
			raw = true
			arg = arg[3:]
		}
		status := route.responseStatus
		if status == 0 {
			status = http.StatusOK
		}
		msg := expandTemplate(ctx, route, arg)
		if !raw {
			msg = html.EscapeString(msg)
		}
		if ctx.w != nil {
			ctx.w.WriteHeader(status)
			ctx.w.Write([]byte(msg))
		}
		ctx.response.Status = status
		ctx.response.Body = []byte(msg)
		ctx.response.Finalized = true
		return CondOK, nil

	case TargetRun:
		ctx.rx.target = expandTemplate(ctx, route, route.targetArg)
		return CondOK, nil

	default:
		return CondReject, nil
	}
}

// parseResponseStatus is a small helper for configuration-time parsing of
// "STATUS MSG"-style target arguments (spec §4.1.6 write/redirect
// grammar), splitting off a leading integer status code if present.
func parseResponseStatus(arg string) (status int, rest string) {
	fields := strings.SplitN(arg, " ", 2)
	if len(fields) == 0 {
		return 0, arg
	}
	if n, err := strconv.Atoi(fields[0]); err == nil {
		if len(fields) > 1 {
			return n, fields[1]
		}
		return n, ""
	}
	return 0, arg
}
