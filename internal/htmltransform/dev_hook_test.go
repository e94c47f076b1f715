package htmltransform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func runDevHook(t *testing.T, h *DevHook, path, src string) (string, []Tag) {
	t.Helper()
	res, err := h.TransformHTML(context.Background(), src, &HookContext{Path: path})
	require.NoError(t, err)
	out, ok := res.HTML()
	require.True(t, ok)
	return out, res.Tags()
}

func TestDevHook_InlineModulesBecomeProxies(t *testing.T) {
	h := &DevHook{Base: "/", ClientPath: "/@devserver/client"}
	src := `<body>` +
		`<script type="module">a()</script>` +
		`<script src="a.js"></script>` +
		`<script type="module">b()</script>` +
		`<script type="module">c()</script>` +
		`</body>`

	out, tags := runDevHook(t, h, "/index.html", src)

	require.Equal(t, `<body>`+
		`<script type="module" src="/index.html?html-proxy&index=0.js"></script>`+
		`<script src="a.js"></script>`+
		`<script type="module" src="/index.html?html-proxy&index=1.js"></script>`+
		`<script type="module" src="/index.html?html-proxy&index=2.js"></script>`+
		`</body>`, out)

	require.Len(t, tags, 1)
	require.Equal(t, HeadPrepend, tags[0].InjectTo)
	require.Equal(t, `<script type="module" src="/@devserver/client"></script>`, tags[0].String())
}

func TestDevHook_ModuleScriptWithSrcCountsTowardIndex(t *testing.T) {
	h := &DevHook{Base: "/"}
	src := `<script type="module" src="/main.js"></script><script type="module">x()</script>`
	out, _ := runDevHook(t, h, "/nested/page.html", src)
	require.Equal(t,
		`<script type="module" src="/main.js"></script>`+
			`<script type="module" src="/nested/page.html?html-proxy&index=1.js"></script>`, out)
}

func TestDevHook_RebasesAssets(t *testing.T) {
	h := &DevHook{Base: "/app/", ClientPath: "/@devserver/client"}
	src := `<img src="/logo.png" srcset="/a.png 1x">` +
		`<link rel="icon" href="//cdn.example.com/x.ico">` +
		`<video poster='/p.jpg' src="clip.mp4"></video>` +
		`<svg><use xlink:href="/sprite.svg#i"></use></svg>` +
		`<script type="module" src="/main.js"></script>` +
		`<a href="/not-an-asset">x</a>`

	out, tags := runDevHook(t, h, "/index.html", src)
	require.Equal(t, `<img src="/app/logo.png" srcset="/app/a.png 1x">`+
		`<link rel="icon" href="//cdn.example.com/x.ico">`+
		`<video poster="/app/p.jpg" src="clip.mp4"></video>`+
		`<svg><use xlink:href="/app/sprite.svg#i"></use></svg>`+
		`<script type="module" src="/app/main.js"></script>`+
		`<a href="/not-an-asset">x</a>`, out)
	require.Equal(t, `<script type="module" src="/app/@devserver/client"></script>`, tags[0].String())
}

func TestDevHook_RebaseChecksValueAsWritten(t *testing.T) {
	h := &DevHook{Base: "/app/"}
	src := `<img src="&#47;x.png"><img src="/y.png?a=1&amp;b=2">`
	out, _ := runDevHook(t, h, "/index.html", src)
	require.Equal(t, `<img src="&#47;x.png"><img src="/app/y.png?a=1&amp;b=2">`, out)
}

func TestDevHook_CustomAssetAttrs(t *testing.T) {
	h := &DevHook{Base: "/b/", AssetAttrs: map[string][]string{"a": {"href"}}}
	out, _ := runDevHook(t, h, "/index.html", `<a href="/x">x</a><img src="/y.png">`)
	require.Equal(t, `<a href="/b/x">x</a><img src="/y.png">`, out)
}

func TestDevHook_IgnoresCommentedScripts(t *testing.T) {
	h := &DevHook{Base: "/"}
	src := `<!-- <script type="module">old()</script> --><script type="module">x()</script>`
	out, _ := runDevHook(t, h, "/index.html", src)
	require.Equal(t,
		`<!-- <script type="module">old()</script> --><script type="module" src="/index.html?html-proxy&index=0.js"></script>`, out)
}
