package codegen

import (
	"fmt"
	"strings"

	"github.com/roach88/ferrule/internal/intrinsic"
)

// helper is a support function emitted only when generated code calls it.
type helper struct {
	name string
	deps []string
	src  string
}

var helpers = []helper{
	{name: "py_index", src: `fn py_index(i: i64, len: usize) -> usize {
    if i < 0 {
        (i + len as i64) as usize
    } else {
        i as usize
    }
}`},
	{name: "py_checked_index", deps: []string{"Exception"}, src: `fn py_checked_index(i: i64, len: usize) -> Result<usize, Exception> {
    let j = if i < 0 { i + len as i64 } else { i };
    if j < 0 || j >= len as i64 {
        return Err(Exception::new("IndexError", "list index out of range"));
    }
    Ok(j as usize)
}`},
	{name: "py_floordiv", src: `fn py_floordiv(a: i64, b: i64) -> i64 {
    let q = a / b;
    if a % b != 0 && ((a < 0) != (b < 0)) {
        q - 1
    } else {
        q
    }
}`},
	{name: "py_mod", src: `fn py_mod(a: i64, b: i64) -> i64 {
    let r = a % b;
    if r != 0 && ((r < 0) != (b < 0)) {
        r + b
    } else {
        r
    }
}`},
	{name: "py_fmod", src: `fn py_fmod(a: f64, b: f64) -> f64 {
    let r = a % b;
    if r != 0.0 && ((r < 0.0) != (b < 0.0)) {
        r + b
    } else {
        r
    }
}`},
	{name: "py_checked_floordiv", deps: []string{"Exception", "py_floordiv"}, src: `fn py_checked_floordiv(a: i64, b: i64) -> Result<i64, Exception> {
    if b == 0 {
        return Err(Exception::new("ZeroDivisionError", "integer division or modulo by zero"));
    }
    Ok(py_floordiv(a, b))
}`},
	{name: "py_checked_mod", deps: []string{"Exception", "py_mod"}, src: `fn py_checked_mod(a: i64, b: i64) -> Result<i64, Exception> {
    if b == 0 {
        return Err(Exception::new("ZeroDivisionError", "integer modulo by zero"));
    }
    Ok(py_mod(a, b))
}`},
	{name: "py_checked_div", deps: []string{"Exception"}, src: `fn py_checked_div(a: f64, b: f64) -> Result<f64, Exception> {
    if b == 0.0 {
        return Err(Exception::new("ZeroDivisionError", "division by zero"));
    }
    Ok(a / b)
}`},
	{name: "py_checked_ffloordiv", deps: []string{"Exception"}, src: `fn py_checked_ffloordiv(a: f64, b: f64) -> Result<f64, Exception> {
    if b == 0.0 {
        return Err(Exception::new("ZeroDivisionError", "float floor division by zero"));
    }
    Ok((a / b).floor())
}`},
	{name: "py_checked_fmod", deps: []string{"Exception", "py_fmod"}, src: `fn py_checked_fmod(a: f64, b: f64) -> Result<f64, Exception> {
    if b == 0.0 {
        return Err(Exception::new("ZeroDivisionError", "float modulo"));
    }
    Ok(py_fmod(a, b))
}`},
	{name: "py_range", src: `fn py_range(start: i64, stop: i64, step: i64) -> std::vec::IntoIter<i64> {
    assert!(step != 0, "range() arg 3 must not be zero");
    let mut out = Vec::new();
    let mut i = start;
    while (step > 0 && i < stop) || (step < 0 && i > stop) {
        out.push(i);
        i += step;
    }
    out.into_iter()
}`},
	{name: "py_bounds", src: `fn py_bounds(len: usize, start: Option<i64>, stop: Option<i64>) -> (usize, usize) {
    let n = len as i64;
    let clamp = |i: i64| -> i64 {
        let j = if i < 0 { i + n } else { i };
        j.max(0).min(n)
    };
    let a = start.map(clamp).unwrap_or(0);
    let b = stop.map(clamp).unwrap_or(n);
    (a as usize, b.max(a) as usize)
}`},
	{name: "py_slice", deps: []string{"py_bounds"}, src: `fn py_slice<T: Clone>(v: &[T], start: Option<i64>, stop: Option<i64>) -> Vec<T> {
    let (a, b) = py_bounds(v.len(), start, stop);
    v[a..b].to_vec()
}`},
	{name: "py_str_slice", deps: []string{"py_bounds"}, src: `fn py_str_slice(s: &str, start: Option<i64>, stop: Option<i64>) -> String {
    let chars: Vec<char> = s.chars().collect();
    let (a, b) = py_bounds(chars.len(), start, stop);
    chars[a..b].iter().collect()
}`},
	{name: "py_str_index", deps: []string{"py_index"}, src: `fn py_str_index(s: &str, i: i64) -> String {
    let n = s.chars().count();
    s.chars()
        .nth(py_index(i, n))
        .expect("string index out of range")
        .to_string()
}`},
	{name: "py_checked_str_index", deps: []string{"Exception"}, src: `fn py_checked_str_index(s: &str, i: i64) -> Result<String, Exception> {
    let n = s.chars().count() as i64;
    let j = if i < 0 { i + n } else { i };
    if j < 0 || j >= n {
        return Err(Exception::new("IndexError", "string index out of range"));
    }
    Ok(s.chars().nth(j as usize).unwrap().to_string())
}`},
	{name: "py_repeat", src: `fn py_repeat<T: Clone>(v: &[T], n: i64) -> Vec<T> {
    let mut out = Vec::with_capacity(v.len() * n.max(0) as usize);
    for _ in 0..n.max(0) {
        out.extend_from_slice(v);
    }
    out
}`},
}

const valueSource = `#[derive(Debug, Clone, PartialEq)]
pub enum Value {
    None,
    Bool(bool),
    Int(i64),
    Float(f64),
    Str(String),
    List(Vec<Value>),
    Dict(Vec<(Value, Value)>),
}

impl Value {
    pub fn truthy(&self) -> bool {
        match self {
            Value::None => false,
            Value::Bool(b) => *b,
            Value::Int(i) => *i != 0,
            Value::Float(f) => *f != 0.0,
            Value::Str(s) => !s.is_empty(),
            Value::List(v) => !v.is_empty(),
            Value::Dict(d) => !d.is_empty(),
        }
    }

    fn repr(&self) -> String {
        match self {
            Value::Str(s) => format!("'{}'", s),
            other => other.to_string(),
        }
    }
}

impl std::fmt::Display for Value {
    fn fmt(&self, f: &mut std::fmt::Formatter<'_>) -> std::fmt::Result {
        match self {
            Value::None => write!(f, "None"),
            Value::Bool(true) => write!(f, "True"),
            Value::Bool(false) => write!(f, "False"),
            Value::Int(i) => write!(f, "{}", i),
            Value::Float(x) => write!(f, "{:?}", x),
            Value::Str(s) => write!(f, "{}", s),
            Value::List(v) => {
                let items: Vec<String> = v.iter().map(Value::repr).collect();
                write!(f, "[{}]", items.join(", "))
            }
            Value::Dict(d) => {
                let items: Vec<String> = d
                    .iter()
                    .map(|(k, v)| format!("{}: {}", k.repr(), v.repr()))
                    .collect();
                write!(f, "{{{}}}", items.join(", "))
            }
        }
    }
}

impl From<()> for Value {
    fn from(_: ()) -> Self {
        Value::None
    }
}

impl From<bool> for Value {
    fn from(b: bool) -> Self {
        Value::Bool(b)
    }
}

impl From<i64> for Value {
    fn from(i: i64) -> Self {
        Value::Int(i)
    }
}

impl From<f64> for Value {
    fn from(x: f64) -> Self {
        Value::Float(x)
    }
}

impl From<String> for Value {
    fn from(s: String) -> Self {
        Value::Str(s)
    }
}

impl From<&str> for Value {
    fn from(s: &str) -> Self {
        Value::Str(s.to_string())
    }
}

impl<T: Into<Value>> From<Option<T>> for Value {
    fn from(o: Option<T>) -> Self {
        match o {
            Some(x) => x.into(),
            None => Value::None,
        }
    }
}

impl<T: Into<Value>> From<Vec<T>> for Value {
    fn from(v: Vec<T>) -> Self {
        Value::List(v.into_iter().map(Into::into).collect())
    }
}

impl<T: Into<Value>> From<std::collections::HashSet<T>> for Value {
    fn from(s: std::collections::HashSet<T>) -> Self {
        Value::List(s.into_iter().map(Into::into).collect())
    }
}

impl<K: Into<Value>, V: Into<Value>> From<std::collections::HashMap<K, V>> for Value {
    fn from(m: std::collections::HashMap<K, V>) -> Self {
        Value::Dict(m.into_iter().map(|(k, v)| (k.into(), v.into())).collect())
    }
}`

const exceptionSource = `#[derive(Debug, Clone, PartialEq)]
pub struct Exception {
    pub kind: &'static str,
    pub message: String,
}

impl Exception {
    pub fn new(kind: &'static str, message: impl Into<String>) -> Self {
        Exception {
            kind,
            message: message.into(),
        }
    }

    /// Reports whether this exception is of kind or derives from it.
    pub fn is(&self, kind: &str) -> bool {
        let mut k = self.kind;
        loop {
            if k == kind {
                return true;
            }
            match exception_parent(k) {
                Some(p) => k = p,
                None => return false,
            }
        }
    }
}

impl std::fmt::Display for Exception {
    fn fmt(&self, f: &mut std::fmt::Formatter<'_>) -> std::fmt::Result {
        f.write_str(&self.message)
    }
}`

// exceptionParentSource renders the hierarchy walk used by Exception::is.
func exceptionParentSource() string {
	var b strings.Builder
	b.WriteString("fn exception_parent(kind: &str) -> Option<&'static str> {\n    match kind {\n")
	for _, kp := range intrinsic.ExceptionKinds() {
		if kp[1] == "" {
			continue
		}
		fmt.Fprintf(&b, "        %q => Some(%q),\n", kp[0], kp[1])
	}
	b.WriteString("        _ => None,\n    }\n}")
	return b.String()
}

// prelude returns the support items body depends on, in a fixed order:
// the dynamic value type, the exception type, then helpers.
func prelude(body string) []string {
	need := make(map[string]bool)
	for _, h := range helpers {
		if strings.Contains(body, h.name+"(") {
			need[h.name] = true
		}
	}
	for changed := true; changed; {
		changed = false
		for _, h := range helpers {
			if !need[h.name] {
				continue
			}
			for _, d := range h.deps {
				if !need[d] {
					need[d] = true
					changed = true
				}
			}
		}
	}
	var out []string
	if mentions(body, "Value") {
		out = append(out, valueSource)
	}
	if need["Exception"] || mentions(body, "Exception") {
		out = append(out, exceptionSource, exceptionParentSource())
	}
	for _, h := range helpers {
		if need[h.name] {
			out = append(out, h.src)
		}
	}
	return out
}

// mentions reports whether word occurs in src as a whole identifier.
func mentions(src, word string) bool {
	for i := 0; ; {
		j := strings.Index(src[i:], word)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(word)
		if (start == 0 || !identByte(src[start-1])) && (end == len(src) || !identByte(src[end])) {
			return true
		}
		i = end
	}
}

func identByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
