package router

import (
	"os/exec"
	"strings"

	"github.com/embedthis/httpcore/internal/log"
)

// Update is a named, ordered state-modifying operation run after a
// route's conditions all pass (spec §4.1.5).
type Update struct {
	Name string
	Args []string
}

// UpdateResult mirrors ConditionResult: updates may also reroute (spec
// §4.1.5 "lang" can rewrite rx.path_info and is commonly paired with a
// reroute to re-match against the rewritten path).
type UpdateResult int

const (
	UpdateOK UpdateResult = iota
	UpdateReroute
)

func runUpdate(ctx *dispatchState, route *Route, u *Update) (UpdateResult, error) {
	switch u.Name {
	case "param":
		if len(u.Args) < 2 {
			return UpdateOK, nil
		}
		name := u.Args[0]
		value := expandTemplate(ctx, route, strings.Join(u.Args[1:], " "))
		ctx.rx.Params[name] = value
		return UpdateOK, nil

	case "cmd":
		cmdline := expandTemplate(ctx, route, strings.Join(u.Args, " "))
		runCommand(ctx, cmdline)
		return UpdateOK, nil

	case "lang":
		return runLangUpdate(ctx, route)

	default:
		log.Default().WithField("update", u.Name).Warn("router: unknown update")
		return UpdateOK, nil
	}
}

// runCommand executes an external command, recording any failure in
// rx.ErrorMsg without aborting the request (spec §4.1.5, §4.1.9: "update
// command failure: recorded in conn.error_msg, request continues").
func runCommand(ctx *dispatchState, cmdline string) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return
	}
	cmd := exec.Command(fields[0], fields[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		ctx.rx.ErrorMsg = strings.TrimSpace(string(out)) + ": " + err.Error()
		log.Default().WithFields(log.Fields{"cmd": cmdline, "err": err}).Warn("router: update command failed")
	}
}

// runLangUpdate selects a language from Accept-Language against
// route.Languages and, when the language has a suffix, rewrites
// rx.PathInfo to insert ".suffix" before the extension, or to append it
// when the path has none (spec §4.1.5). There is no option to place the
// suffix after the extension.
func runLangUpdate(ctx *dispatchState, route *Route) (UpdateResult, error) {
	if len(route.Languages) == 0 {
		return UpdateOK, nil
	}
	accept := ctx.rx.Header.Get("Accept-Language")
	lang := pickLanguage(accept, route.Languages, route.DefaultLanguage())
	if lang == "" {
		return UpdateOK, nil
	}
	def, ok := route.Languages[lang]
	if !ok {
		return UpdateOK, nil
	}
	ctx.rx.Language = lang
	ctx.rx.LanguageDir = def.Path
	if def.Suffix != "" {
		ctx.rx.PathInfo = insertSuffix(ctx.rx.PathInfo, def.Suffix)
		return UpdateReroute, nil
	}
	return UpdateOK, nil
}

// pickLanguage parses a simple Accept-Language header (ignoring q-value
// ordering nuance beyond first-listed-wins) and returns the first tag
// with a matching route.Languages entry, else def.
func pickLanguage(accept string, langs map[string]*Language, def string) string {
	for _, part := range strings.Split(accept, ",") {
		tag, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		tag = strings.ToLower(strings.TrimSpace(tag))
		if _, ok := langs[tag]; ok {
			return tag
		}
		if short, _, ok := strings.Cut(tag, "-"); ok {
			if _, ok := langs[short]; ok {
				return short
			}
		}
	}
	return def
}

func insertSuffix(path, suffix string) string {
	dot := strings.LastIndexByte(path, '.')
	slash := strings.LastIndexByte(path, '/')
	if dot > slash {
		return path[:dot] + "." + suffix + path[dot:]
	}
	return path + "." + suffix
}
