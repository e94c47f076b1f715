// Package htmltransform rewrites served HTML pages for development.
//
// A page passes through a Chain of hooks (pre, core, post). Every hook sees
// the output of the one before it and may contribute Tags, which are injected
// at the end by InjectTags. The core DevHook rebases root-relative asset
// URLs, replaces inline module scripts with html-proxy imports and adds the
// client runtime script. Rewrites go through an htmledit.Session so byte
// offsets found by Traverse stay valid while edits are recorded.
package htmltransform
