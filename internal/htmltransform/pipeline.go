package htmltransform

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/devserver/internal/urlcanon"
)

// Pipeline turns a served HTML page into its dev form: the hook chain runs
// first, then collected tags are injected.
type Pipeline struct {
	Root  string
	Chain *Chain
}

// NewPipeline returns a pipeline with core as the core hook.
func NewPipeline(root string, core Hook, pre, post []Hook) *Pipeline {
	return &Pipeline{
		Root:  root,
		Chain: &Chain{Pre: pre, Core: core, Post: post},
	}
}

// FilenameFor maps a page url to the file it is served from. /@fs/ urls are
// absolute paths; every other url resolves under Root.
func (p *Pipeline) FilenameFor(url string) string {
	url = urlcanon.CleanURL(url)
	if strings.HasPrefix(url, urlcanon.FSPrefix) {
		return filepath.FromSlash(urlcanon.FSPathFromID(url))
	}
	return filepath.Join(p.Root, filepath.FromSlash(strings.TrimPrefix(path.Clean("/"+url), "/")))
}

// TransformIndexHTML runs the chain over html served at url.
func (p *Pipeline) TransformIndexHTML(ctx context.Context, url, html string) (string, error) {
	hc := &HookContext{Path: url, Filename: p.FilenameFor(url)}
	out, tags, err := p.Chain.Run(ctx, html, hc)
	if err != nil {
		return "", err
	}
	return InjectTags(out, tags)
}
