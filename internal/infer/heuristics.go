package infer

import (
	"strings"

	"github.com/roach88/ferrule/internal/ir"
)

// nameRule guesses a type from the shape of a name. These are the only
// name-based guesses in the translator, and they apply only when the
// policy enables them and no structural evidence typed the name.
type nameRule struct {
	desc  string
	match func(n string) bool
	typ   *ir.Type
}

var nameRules = []nameRule{
	{"is_/has_ prefix", prefix("is_", "has_", "should_", "can_"), ir.Bool},
	{"count suffix", suffix("count", "_len", "_index", "_idx", "_size", "_num"), ir.Int},
	{"counter name", exact("n", "i", "j", "k", "idx", "count", "total", "index"), ir.Int},
	{"ratio suffix", suffix("_ratio", "_rate", "_pct", "_avg", "_mean"), ir.Float},
	{"text suffix", suffix("_name", "_path", "_text", "_str", "_msg", "_label"), ir.Str},
	{"text name", exact("name", "path", "text", "message", "msg", "line", "word", "label", "s"), ir.Str},
	{"plural of text", suffix("names", "lines", "words", "paths"), ir.SeqOf(ir.Str)},
}

func prefix(ps ...string) func(string) bool {
	return func(n string) bool {
		for _, p := range ps {
			if strings.HasPrefix(n, p) {
				return true
			}
		}
		return false
	}
}

func suffix(ss ...string) func(string) bool {
	return func(n string) bool {
		for _, s := range ss {
			if strings.HasSuffix(n, s) {
				return true
			}
		}
		return false
	}
}

func exact(ns ...string) func(string) bool {
	return func(n string) bool {
		for _, x := range ns {
			if n == x {
				return true
			}
		}
		return false
	}
}

// guessByName returns the first rule matching n.
func guessByName(n string) (*ir.Type, string, bool) {
	n = strings.ToLower(n)
	for _, r := range nameRules {
		if r.match(n) {
			return r.typ, r.desc, true
		}
	}
	return nil, "", false
}
