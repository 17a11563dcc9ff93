package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/osteele/liquid"

	"github.com/ignite/notification-agent/internal/domain"
)

var (
	// blockRe matches {{ output }} (group 1) and {% tag args %} (groups 2, 3).
	blockRe      = regexp.MustCompile(`(?s)\{\{-?(.*?)-?\}\}|\{%-?\s*([a-zA-Z_]\w*)(.*?)-?%\}`)
	bracketKeyRe = regexp.MustCompile(`\[\s*(?:'([^']*)'|"([^"]*)")\s*\]`)
	indexRe      = regexp.MustCompile(`\[\s*-?\d+\s*\]`)
	stringRe     = regexp.MustCompile(`'[^']*'|"[^"]*"`)
	filterNameRe = regexp.MustCompile(`\|\s*[a-zA-Z_]\w*\s*:?`)
	identRe      = regexp.MustCompile(`[a-zA-Z_]\w*(?:\.[a-zA-Z_]\w*)*`)
	loopRe       = regexp.MustCompile(`^\s*([a-zA-Z_]\w*)\s+in\b(.*)$`)
	assignRe     = regexp.MustCompile(`^\s*([a-zA-Z_]\w*)\s*=(.*)$`)
)

var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "contains": true, "in": true,
	"reversed": true, "limit": true, "offset": true, "cols": true,
	"true": true, "false": true, "nil": true, "null": true, "empty": true, "blank": true,
	"forloop": true, "tablerowloop": true,
}

// tags whose arguments hold no variable references
var bareTags = map[string]bool{
	"else": true, "endif": true, "endunless": true, "endfor": true, "endcase": true,
	"endcapture": true, "endtablerow": true, "comment": true, "endcomment": true,
	"raw": true, "endraw": true, "break": true, "continue": true,
}

type compiledLocale struct {
	title *liquid.Template
	body  *liquid.Template
}

type compiledTemplate struct {
	tpl       *domain.Template
	locales   map[string]*compiledLocale
	actionURL *liquid.Template
}

// extractPaths returns the context paths src reads, in order of first
// appearance. Output expressions and tag arguments are both scanned;
// bracket access (user['nick']) is normalized to dotted form. Names bound
// inside the template by for, assign or capture are not context paths.
func extractPaths(src string) []string {
	locals := map[string]bool{}
	var out []string
	seen := map[string]bool{}

	add := func(expr string) {
		for _, p := range pathsIn(expr) {
			root := p
			if i := strings.IndexByte(p, '.'); i >= 0 {
				root = p[:i]
			}
			if locals[root] || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, m := range blockRe.FindAllStringSubmatch(src, -1) {
		if m[2] == "" {
			add(m[1])
			continue
		}
		tag, args := m[2], m[3]
		switch {
		case bareTags[tag]:
		case tag == "for" || tag == "tablerow":
			if lm := loopRe.FindStringSubmatch(args); lm != nil {
				add(lm[2])
				locals[lm[1]] = true
			}
		case tag == "assign":
			if am := assignRe.FindStringSubmatch(args); am != nil {
				add(am[2])
				locals[am[1]] = true
			}
		case tag == "capture":
			if id := identRe.FindString(args); id != "" {
				locals[id] = true
			}
		default:
			add(args)
		}
	}
	return out
}

// pathsIn lists the variable paths referenced by one Liquid expression.
func pathsIn(expr string) []string {
	expr = bracketKeyRe.ReplaceAllStringFunc(expr, func(s string) string {
		m := bracketKeyRe.FindStringSubmatch(s)
		return "." + m[1] + m[2]
	})
	expr = indexRe.ReplaceAllString(expr, "")
	expr = stringRe.ReplaceAllString(expr, " ")
	expr = filterNameRe.ReplaceAllString(expr, " ")

	var out []string
	for _, p := range identRe.FindAllString(expr, -1) {
		if keywords[p] {
			continue
		}
		for _, suffix := range []string{".size", ".first", ".last"} {
			p = strings.TrimSuffix(p, suffix)
		}
		out = append(out, p)
	}
	return out
}

// compile parses every locale once and checks referenced paths against the
// declared variables. Errors are *domain.ConfigurationError.
func compile(engine *liquid.Engine, t *domain.Template) (*compiledTemplate, error) {
	if len(t.Locales) == 0 {
		return nil, cfgErr(t.ID, "no locales")
	}
	ct := &compiledTemplate{tpl: t, locales: make(map[string]*compiledLocale, len(t.Locales))}

	for loc, content := range t.Locales {
		if err := checkDeclared(t, extractPaths(content.Title+"\n"+content.Body)); err != nil {
			return nil, err
		}
		title, err := parse(engine, t.ID, loc, "title", content.Title)
		if err != nil {
			return nil, err
		}
		body, err := parse(engine, t.ID, loc, "body", content.Body)
		if err != nil {
			return nil, err
		}
		ct.locales[loc] = &compiledLocale{title: title, body: body}
	}

	if t.ActionURL != "" {
		if err := checkDeclared(t, extractPaths(t.ActionURL)); err != nil {
			return nil, err
		}
		u, err := parse(engine, t.ID, "", "action_url", t.ActionURL)
		if err != nil {
			return nil, err
		}
		ct.actionURL = u
	}
	return ct, nil
}

func checkDeclared(t *domain.Template, paths []string) error {
	for _, p := range paths {
		if !t.Declares(p) {
			return cfgErr(t.ID, fmt.Sprintf("placeholder %q is not a declared variable", p))
		}
	}
	return nil
}

func parse(engine *liquid.Engine, id, locale, part, src string) (*liquid.Template, error) {
	tpl, err := engine.ParseString(src)
	if err != nil {
		return nil, cfgErr(id, fmt.Sprintf("%s %s: %v", locale, part, err))
	}
	return tpl, nil
}

func cfgErr(id, reason string) error {
	return &domain.ConfigurationError{Kind: "template", ID: id, Reason: reason}
}
