package templating

import (
	"errors"
	"html"
	"strings"

	"github.com/nikolalohinski/gonja/v2/exec"
)

// customFilters returns the filters registered on top of the engine's
// builtins. Names follow the platform's conventions, including the
// single-letter escape alias carried over from its Ruby ancestry.
func customFilters() *exec.FilterSet {
	return exec.NewFilterSet(map[string]exec.FilterFunction{
		"escape":  filterEscape,
		"h":       filterEscape,
		"boolean": filterBoolean,
		"default": filterDefault,
	})
}

// filterEscape replaces HTML-special characters in the input with their
// entity references.
func filterEscape(_ *exec.Evaluator, in *exec.Value, _ *exec.VarArgs) *exec.Value {
	return exec.AsValue(html.EscapeString(in.String()))
}

// filterBoolean coerces strings and numbers into a boolean. Recognized
// string spellings convert, numbers compare against zero, booleans pass
// through, and anything else coerces to nil so conditionals treat it as
// absent rather than erroring.
func filterBoolean(_ *exec.Evaluator, in *exec.Value, _ *exec.VarArgs) *exec.Value {
	switch {
	case in == nil || in.IsNil():
		return exec.AsValue(nil)
	case in.IsBool():
		return in
	case in.IsString():
		switch strings.ToLower(strings.TrimSpace(in.String())) {
		case "true", "1", "yes", "on":
			return exec.AsValue(true)
		case "false", "0", "no", "off":
			return exec.AsValue(false)
		}
		return exec.AsValue(nil)
	case in.IsInteger():
		return exec.AsValue(in.Integer() != 0)
	case in.IsFloat():
		return exec.AsValue(in.Float() != 0)
	default:
		return exec.AsValue(nil)
	}
}

// filterDefault substitutes a fallback for missing input. It shadows the
// builtin deliberately: content attributes are stored as empty strings when
// unset, so an empty string counts as missing here.
func filterDefault(_ *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
	if params == nil || len(params.Args) == 0 {
		return exec.AsValue(exec.ErrInvalidCall(errors.New("default requires a fallback argument")))
	}
	if in == nil || in.IsNil() || (in.IsString() && in.String() == "") {
		return params.Args[0]
	}
	return in
}
