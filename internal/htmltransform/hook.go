package htmltransform

import (
	"context"

	"git.home.luguber.info/inful/devserver/internal/foundation/errors"
)

// HookContext describes the page being transformed.
type HookContext struct {
	// Path is the request path of the page, e.g. "/index.html".
	Path string
	// Filename is the file the page was read from.
	Filename string
}

// HookResult is what a hook hands back to the chain. A nil result leaves the
// document unchanged and contributes no tags.
type HookResult struct {
	html      string
	rewritten bool
	tags      []Tag
}

// Rewritten replaces the document with html and contributes tags.
func Rewritten(html string, tags ...Tag) *HookResult {
	return &HookResult{html: html, rewritten: true, tags: tags}
}

// TagsOnly keeps the document as it is and contributes tags.
func TagsOnly(tags ...Tag) *HookResult {
	return &HookResult{tags: tags}
}

// HTML returns the rewritten document and whether the hook rewrote it.
func (r *HookResult) HTML() (string, bool) { return r.html, r.rewritten }

// Tags returns the tags contributed by the hook.
func (r *HookResult) Tags() []Tag { return r.tags }

// Hook transforms an HTML document.
type Hook interface {
	TransformHTML(ctx context.Context, html string, hc *HookContext) (*HookResult, error)
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, html string, hc *HookContext) (*HookResult, error)

func (f HookFunc) TransformHTML(ctx context.Context, html string, hc *HookContext) (*HookResult, error) {
	return f(ctx, html, hc)
}

// Chain runs Pre, then Core, then Post. Hooks run one at a time; each sees
// the output of the previous one.
type Chain struct {
	Pre  []Hook
	Core Hook
	Post []Hook
}

// Hooks returns the hooks in execution order.
func (c *Chain) Hooks() []Hook {
	hooks := make([]Hook, 0, len(c.Pre)+len(c.Post)+1)
	hooks = append(hooks, c.Pre...)
	if c.Core != nil {
		hooks = append(hooks, c.Core)
	}
	return append(hooks, c.Post...)
}

// Run applies the chain to html and returns the final document together with
// every contributed tag in contribution order. The first hook error aborts
// the chain.
func (c *Chain) Run(ctx context.Context, html string, hc *HookContext) (string, []Tag, error) {
	var tags []Tag
	for i, h := range c.Hooks() {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		res, err := h.TransformHTML(ctx, html, hc)
		if err != nil {
			return "", nil, errors.WrapError(err, errors.CategoryHTML, "html transform hook failed").
				WithContext("hook", i).
				WithContext("path", hc.Path).
				Build()
		}
		if res == nil {
			continue
		}
		if out, ok := res.HTML(); ok {
			html = out
		}
		tags = append(tags, res.Tags()...)
	}
	return html, tags, nil
}
