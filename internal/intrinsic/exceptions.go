package intrinsic

import "sort"

// exceptionParents is the built-in exception hierarchy. The root,
// Exception, has no parent.
var exceptionParents = map[string]string{
	"Exception":           "",
	"ArithmeticError":     "Exception",
	"ZeroDivisionError":   "ArithmeticError",
	"OverflowError":       "ArithmeticError",
	"LookupError":         "Exception",
	"KeyError":            "LookupError",
	"IndexError":          "LookupError",
	"ValueError":          "Exception",
	"TypeError":           "Exception",
	"RuntimeError":        "Exception",
	"NotImplementedError": "RuntimeError",
	"AssertionError":      "Exception",
	"OSError":             "Exception",
	"FileNotFoundError":   "OSError",
	"PermissionError":     "OSError",
}

// IsException reports whether name is a known exception kind.
func IsException(name string) bool {
	_, ok := exceptionParents[name]
	return ok
}

// ExceptionParent returns the parent kind, or "" for the root.
func ExceptionParent(name string) string {
	return exceptionParents[name]
}

// Subsumes reports whether a handler for kind catches an exception of
// kind raised.
func Subsumes(kind, raised string) bool {
	for k := raised; k != ""; k = exceptionParents[k] {
		if k == kind {
			return true
		}
	}
	return false
}

// ExceptionKinds returns every known kind with its parent, root first,
// then by name.
func ExceptionKinds() [][2]string {
	var out [][2]string
	var visit func(parent string)
	visit = func(parent string) {
		var children []string
		for k, p := range exceptionParents {
			if p == parent {
				children = append(children, k)
			}
		}
		sort.Strings(children)
		for _, c := range children {
			out = append(out, [2]string{c, parent})
			visit(c)
		}
	}
	visit("")
	return out
}
