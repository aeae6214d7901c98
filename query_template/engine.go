package query_template

import (
	"fmt"
	"regexp"
	"strings"
)

var varRegex = regexp.MustCompile(`\?(\w+)`)

// TemplateError is a defect in the caller: a named variable was not supplied
// or the positional arity is wrong. It is never retried or tolerated.
type TemplateError struct {
	Template string
	Msg      string
}

func (e *TemplateError) Error() string {
	return "template error: " + e.Msg
}

func (e *TemplateError) IsPermanent() bool {
	return true
}

// Positional substitutes each `?` in tpl, left to right, with the matching
// arg. Args are inserted verbatim and must already be escaped.
func Positional(tpl string, args ...string) (string, error) {
	n := strings.Count(tpl, "?")
	if n != len(args) {
		return "", &TemplateError{
			Template: tpl,
			Msg:      fmt.Sprintf("template has %d placeholders, got %d args", n, len(args)),
		}
	}
	var b strings.Builder
	b.Grow(len(tpl))
	i := 0
	for _, r := range tpl {
		if r == '?' {
			b.WriteString(args[i])
			i++
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), nil
}

// Named substitutes each `?identifier` in tpl from vars. Substituted values
// are not rescanned.
func Named(tpl string, vars map[string]string) (string, error) {
	var missing []string
	out := varRegex.ReplaceAllStringFunc(tpl, func(token string) string {
		name := token[1:]
		v, ok := vars[name]
		if !ok {
			missing = append(missing, token)
			return token
		}
		return v
	})
	if len(missing) > 0 {
		return "", &TemplateError{
			Template: tpl,
			Msg:      "context is missing " + strings.Join(missing, ", "),
		}
	}
	return out, nil
}

// MustPositional panics on a TemplateError. Use only with constant templates
// and a fixed number of args.
func MustPositional(tpl string, args ...string) string {
	s, err := Positional(tpl, args...)
	if err != nil {
		panic(err)
	}
	return s
}

// Ident quotes a PostgreSQL identifier.
func Ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// IdentBody escapes name for a template that already supplies the
// surrounding double quotes.
func IdentBody(name string) string {
	return strings.ReplaceAll(name, `"`, `""`)
}

// LiteralBody escapes s for use inside single quotes.
func LiteralBody(s string) string {
	return strings.ReplaceAll(s, `'`, `''`)
}
