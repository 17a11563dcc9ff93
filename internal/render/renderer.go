// Package render produces localized notification content from templates.
package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/osteele/liquid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/ignite/notification-agent/internal/domain"
	"github.com/ignite/notification-agent/internal/pkg/ctxpath"
)

// Renderer compiles templates once and renders them per event.
type Renderer struct {
	source        TemplateSource
	engine        *liquid.Engine
	cache         *gocache.Cache
	defaultLocale string
}

// NewRenderer creates a Renderer. Compiled templates stay cached for ttl,
// so template edits are picked up within one TTL.
func NewRenderer(source TemplateSource, defaultLocale string, ttl time.Duration) *Renderer {
	if defaultLocale == "" {
		defaultLocale = "en"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	engine := liquid.NewEngine()
	engine.StrictVariables()
	registerFilters(engine)
	return &Renderer{
		source:        source,
		engine:        engine,
		cache:         gocache.New(ttl, 2*ttl),
		defaultLocale: defaultLocale,
	}
}

// Render resolves ref, picks the locale (falling back to the default), and
// substitutes context values. Every declared variable must resolve from
// vars, whether or not the chosen locale uses it; otherwise Render fails
// with *MissingVariableError and nothing is produced. The default filter
// only covers values that are present but empty.
func (r *Renderer) Render(ctx context.Context, ref domain.TemplateRef, locale string, vars map[string]any) (domain.Rendered, error) {
	ct, err := r.compiled(ctx, ref)
	if err != nil {
		return domain.Rendered{}, err
	}

	loc, cl := r.pickLocale(ct, locale)
	if cl == nil {
		return domain.Rendered{}, cfgErr(ct.tpl.ID, fmt.Sprintf("no content for locale %q or default %q", locale, r.defaultLocale))
	}
	for _, v := range ct.tpl.Variables {
		if !ctxpath.Has(vars, v) {
			return domain.Rendered{}, &MissingVariableError{TemplateID: ct.tpl.ID, Placeholder: v}
		}
	}

	bindings := liquid.Bindings(vars)
	if bindings == nil {
		bindings = liquid.Bindings{}
	}
	out := domain.Rendered{TemplateID: ct.tpl.ID, Locale: loc}
	if out.Title, err = renderPart(ct.tpl.ID, "title", cl.title, bindings); err != nil {
		return domain.Rendered{}, err
	}
	if out.Body, err = renderPart(ct.tpl.ID, "body", cl.body, bindings); err != nil {
		return domain.Rendered{}, err
	}
	if ct.actionURL != nil {
		if out.ActionURL, err = renderPart(ct.tpl.ID, "action url", ct.actionURL, bindings); err != nil {
			return domain.Rendered{}, err
		}
	}
	return out, nil
}

// renderPart renders one compiled part. The engine runs with strict
// variables, so an output expression that evaluates to nothing surfaces as
// *MissingVariableError instead of an empty substitution.
func renderPart(id, part string, tpl *liquid.Template, b liquid.Bindings) (string, error) {
	s, err := tpl.RenderString(b)
	if err != nil {
		if p, ok := undefinedVariable(err); ok {
			return "", &MissingVariableError{TemplateID: id, Placeholder: p}
		}
		return "", fmt.Errorf("render %s %s: %w", id, part, err)
	}
	return s, nil
}

// undefinedVariable recognizes the strict-variables failure and recovers
// the offending path from the error's source text.
func undefinedVariable(err error) (string, bool) {
	var src interface{ Cause() error }
	if !errors.As(err, &src) || src.Cause() == nil || src.Cause().Error() != "undefined variable" {
		return "", false
	}
	msg := err.Error()
	i := strings.LastIndex(msg, " in ")
	if i < 0 {
		return "", true
	}
	// nested output is reported against its enclosing tag
	text := msg[i+4:]
	if m := blockRe.FindStringSubmatch(text); m != nil && m[2] != "" {
		text = m[3]
	}
	if paths := pathsIn(strings.Trim(text, "{}- ")); len(paths) > 0 {
		return paths[0], true
	}
	return "", true
}

// Check resolves and compiles the template ref points at, leaving the
// result cached. The catalog calls this while loading rules so authoring
// defects surface before a rule is ever selected.
func (r *Renderer) Check(ctx context.Context, ref domain.TemplateRef) error {
	_, err := r.compiled(ctx, ref)
	return err
}

// Invalidate drops all compiled templates.
func (r *Renderer) Invalidate() {
	r.cache.Flush()
}

func (r *Renderer) compiled(ctx context.Context, ref domain.TemplateRef) (*compiledTemplate, error) {
	key := ref.CacheKey()
	if v, ok := r.cache.Get(key); ok {
		return v.(*compiledTemplate), nil
	}
	t, err := r.source.GetTemplate(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", key, err)
	}
	ct, err := compile(r.engine, t)
	if err != nil {
		return nil, err
	}
	r.cache.Set(key, ct, gocache.DefaultExpiration)
	return ct, nil
}

// pickLocale tries the exact locale, its base language ("pt-BR" → "pt"),
// then the default locale.
func (r *Renderer) pickLocale(ct *compiledTemplate, locale string) (string, *compiledLocale) {
	candidates := []string{locale}
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		candidates = append(candidates, locale[:i])
	}
	candidates = append(candidates, r.defaultLocale)
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if cl, ok := ct.locales[c]; ok {
			return c, cl
		}
	}
	return "", nil
}
