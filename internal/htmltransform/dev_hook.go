package htmltransform

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"git.home.luguber.info/inful/devserver/internal/htmledit"
	"git.home.luguber.info/inful/devserver/internal/urlcanon"
)

// DefaultAssetAttrs lists the URL-bearing attributes rewritten against the
// base, per element. <script src> is handled separately.
var DefaultAssetAttrs = map[string][]string{
	"link":   {"href"},
	"video":  {"src", "poster"},
	"source": {"src", "srcset"},
	"img":    {"src", "srcset"},
	"image":  {"xlink:href", "href"},
	"use":    {"xlink:href", "href"},
}

// DevHook is the core dev-server HTML hook. It rebases root-relative asset
// URLs onto Base, turns inline module scripts into html-proxy imports and
// injects the client runtime script.
type DevHook struct {
	// Base is the public base path; it starts and ends with "/".
	Base string
	// ClientPath is the URL of the client runtime, e.g. "/@devserver/client".
	ClientPath string
	// AssetAttrs overrides DefaultAssetAttrs when non-nil.
	AssetAttrs map[string][]string
}

func (h *DevHook) base() string {
	if h.Base == "" {
		return "/"
	}
	return h.Base
}

func (h *DevHook) assetAttrs() map[string][]string {
	if h.AssetAttrs != nil {
		return h.AssetAttrs
	}
	return DefaultAssetAttrs
}

// rootRelative reports whether v is "/x" but not protocol-relative "//x".
func rootRelative(v string) bool {
	return strings.HasPrefix(v, "/") && !strings.HasPrefix(v, "//")
}

// rebase splices Base into the value as written, so the raw text decides.
func (h *DevHook) rebase(s *htmledit.Session, a Attr) error {
	if !a.HasValue || !rootRelative(a.RawValue) {
		return nil
	}
	v := h.base() + a.RawValue[1:]
	quoted := `"` + v + `"`
	if strings.Contains(v, `"`) {
		quoted = "'" + v + "'"
	}
	return s.Overwrite(a.ValueStart, a.ValueEnd, quoted)
}

// TransformHTML implements Hook.
func (h *DevHook) TransformHTML(_ context.Context, src string, hc *HookContext) (*HookResult, error) {
	s := htmledit.New(src)
	base := h.base()
	pagePath := strings.TrimPrefix(hc.Path, "/")
	moduleIndex := -1

	err := Traverse(src, func(el *Element) error {
		if el.Tag == "script" {
			isModule := el.IsModuleScript()
			if isModule {
				moduleIndex++
			}
			if srcAttr, ok := el.Attr("src"); ok {
				if err := h.rebase(s, srcAttr); err != nil {
					return err
				}
			} else if isModule {
				proxy := fmt.Sprintf(`<script type="module" src="%s%s?%s&index=%d.js"></script>`,
					base, pagePath, urlcanon.HTMLProxyQuery, moduleIndex)
				if err := s.Overwrite(el.Start, el.End, proxy); err != nil {
					return err
				}
			}
		}

		names, ok := h.assetAttrs()[el.Tag]
		if !ok {
			return nil
		}
		for _, a := range el.Attrs {
			if !slices.Contains(names, a.Name) {
				continue
			}
			if err := h.rebase(s, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	client := Tag{
		Name: "script",
		Attrs: []TagAttr{
			{Name: "type", Value: "module"},
			{Name: "src", Value: base + strings.TrimPrefix(h.ClientPath, "/")},
		},
		InjectTo: HeadPrepend,
	}
	return Rewritten(s.String(), client), nil
}
