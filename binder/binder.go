// Package binder recognizes the two accepted placeholder styles in raw SQL
// text — positional %s and named %(ident)s — validates their arity against
// caller-supplied parameters, and rewrites the text so a real SQL grammar
// can parse it without placeholder syntax ever reaching the tokenizer.
package binder

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kitfactory/mongosql/mdberr"
)

// Params is the caller-supplied parameter set: either a positional sequence
// or a named mapping. The two forms are mutually exclusive per statement.
type Params struct {
	Positional []any
	Named      map[string]any
}

// IsPositional reports whether the caller used the positional form. A zero
// Params (no placeholders at all) is treated as positional with zero
// arguments.
func (p Params) IsPositional() bool { return p.Named == nil }

// Marker is one recognized placeholder occurrence in the source text.
type Marker struct {
	// Sentinel is the literal text substituted into the rewritten SQL in
	// place of this marker, e.g. '\x00oqlph3\x00'.
	Sentinel string
	// Name is the identifier for a named marker, empty for positional.
	Name string
	// Index is the zero-based ordinal among markers of the same mode.
	Index int
}

// Bound is the result of binding: the rewritten SQL (safe to hand to a real
// SQL parser) plus the value each sentinel stands for, in source order.
type Bound struct {
	SQL     string
	Markers []Marker
	Values  []any
}

const sentinelPrefix = "\x00oqlph"
const sentinelSuffix = "\x00"

// Bind scans sql for placeholder markers outside string literals and
// comments, validates them against params, and returns the rewritten text
// plus the value each sentinel stands for.
func Bind(sql string, params Params) (*Bound, error) {
	markers, rewritten, err := scan(sql)
	if err != nil {
		return nil, err
	}
	if len(markers) == 0 {
		if supplied := len(params.Positional) + len(params.Named); supplied != 0 {
			return nil, mdberr.New(mdberr.E4, "statement has no placeholders but %d parameters were supplied", supplied)
		}
		return &Bound{SQL: rewritten}, nil
	}

	positional := markers[0].Name == ""
	for _, m := range markers {
		if (m.Name == "") != positional {
			return nil, mdberr.New(mdberr.E4, "cannot mix positional and named placeholders in one statement")
		}
	}

	values := make([]any, len(markers))
	if positional {
		if !params.IsPositional() {
			return nil, mdberr.New(mdberr.E4, "statement uses positional placeholders but named parameters were supplied")
		}
		if len(params.Positional) != len(markers) {
			return nil, mdberr.New(mdberr.E4, "expected %d positional parameters, got %d", len(markers), len(params.Positional))
		}
		for i, m := range markers {
			values[i] = params.Positional[m.Index]
		}
	} else {
		if params.IsPositional() {
			return nil, mdberr.New(mdberr.E4, "statement uses named placeholders but positional parameters were supplied")
		}
		want := map[string]bool{}
		for _, m := range markers {
			want[m.Name] = true
		}
		if len(want) != len(params.Named) {
			return nil, mdberr.New(mdberr.E4, "named parameter key set mismatch: statement wants %v, got %v", sortedKeys(want), sortedKeys(toSet(params.Named)))
		}
		for name := range want {
			if _, ok := params.Named[name]; !ok {
				return nil, mdberr.New(mdberr.E4, "missing named parameter %q", name)
			}
		}
		for i, m := range markers {
			values[i] = params.Named[m.Name]
		}
	}

	return &Bound{SQL: rewritten, Markers: markers, Values: values}, nil
}

func toSet(m map[string]any) map[string]bool {
	s := make(map[string]bool, len(m))
	for k := range m {
		s[k] = true
	}
	return s
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// scan walks sql once, skipping over quoted string literals and -- / /* */
// comments, and replaces every %s / %(ident)s occurrence with a sentinel
// string literal. It returns the markers in source order and the rewritten
// text.
func scan(sql string) ([]Marker, string, error) {
	var out strings.Builder
	var markers []Marker
	positionalIdx := 0
	namedIdx := 0

	i := 0
	n := len(sql)
	for i < n {
		c := sql[i]
		switch {
		case c == '\'' || c == '"':
			j := skipQuoted(sql, i, c)
			out.WriteString(sql[i:j])
			i = j
		case c == '-' && i+1 < n && sql[i+1] == '-':
			j := strings.IndexByte(sql[i:], '\n')
			if j < 0 {
				out.WriteString(sql[i:])
				i = n
			} else {
				out.WriteString(sql[i : i+j+1])
				i += j + 1
			}
		case c == '/' && i+1 < n && sql[i+1] == '*':
			j := strings.Index(sql[i:], "*/")
			if j < 0 {
				out.WriteString(sql[i:])
				i = n
			} else {
				out.WriteString(sql[i : i+j+2])
				i += j + 2
			}
		case c == '%' && i+1 < n && sql[i+1] == 's':
			sentinel := fmt.Sprintf("%s%d%s", sentinelPrefix, positionalIdx, sentinelSuffix)
			markers = append(markers, Marker{Sentinel: sentinel, Index: positionalIdx})
			out.WriteString("'")
			out.WriteString(sentinel)
			out.WriteString("'")
			positionalIdx++
			i += 2
		case c == '%' && i+1 < n && sql[i+1] == '(':
			name, end, ok := scanNamedMarker(sql, i)
			if !ok {
				out.WriteByte(c)
				i++
				continue
			}
			sentinel := fmt.Sprintf("%s%d%s", sentinelPrefix, namedIdx, sentinelSuffix)
			markers = append(markers, Marker{Sentinel: sentinel, Name: name, Index: namedIdx})
			out.WriteString("'")
			out.WriteString(sentinel)
			out.WriteString("'")
			namedIdx++
			i = end
		default:
			out.WriteByte(c)
			i++
		}
	}
	return markers, out.String(), nil
}

func skipQuoted(sql string, start int, quote byte) int {
	i := start + 1
	n := len(sql)
	for i < n {
		if sql[i] == '\\' && i+1 < n {
			i += 2
			continue
		}
		if sql[i] == quote {
			if i+1 < n && sql[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return n
}

// scanNamedMarker attempts to parse %(ident)s starting at sql[start]=='%'.
// Returns the identifier, the index just past the trailing 's', and whether
// a well-formed marker was found.
func scanNamedMarker(sql string, start int) (string, int, bool) {
	i := start + 2 // past "%("
	n := len(sql)
	identStart := i
	for i < n && sql[i] != ')' {
		r := rune(sql[i])
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return "", 0, false
		}
		i++
	}
	if i >= n || identStart == i {
		return "", 0, false
	}
	ident := sql[identStart:i]
	if i+1 >= n || sql[i+1] != 's' {
		return "", 0, false
	}
	return ident, i + 2, true
}
