package htmltransform

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Attr is one attribute of a start tag with its byte spans in the source.
// ValueStart/ValueEnd include the quotes of a quoted value.
type Attr struct {
	Name     string
	Value    string // entity-decoded value
	RawValue string // value text exactly as written, without quotes
	HasValue bool

	Start      int
	ValueStart int
	ValueEnd   int
}

// Element is an element start tag found during traversal. For raw-text
// elements (script, style, textarea, ...) End is the offset just past the
// matching end tag and Content holds the raw body; for everything else End is
// the end of the start tag.
type Element struct {
	Tag   string
	Attrs []Attr

	Start        int
	StartTagEnd  int
	End          int
	Content      string
	ContentStart int
}

// Attr returns the first attribute with the given (lower-case) name.
func (e *Element) Attr(name string) (Attr, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attr{}, false
}

// IsModuleScript reports whether e is a <script type="module">.
func (e *Element) IsModuleScript() bool {
	if e.Tag != "script" {
		return false
	}
	t, ok := e.Attr("type")
	return ok && t.HasValue && t.Value == "module"
}

// rawTextElements switch the tokenizer into raw-text mode until their end tag.
var rawTextElements = map[string]bool{
	"iframe": true, "noembed": true, "noframes": true, "noscript": true, "plaintext": true,
	"script": true, "style": true, "textarea": true, "title": true, "xmp": true,
}

type token struct {
	Type  html.TokenType
	Name  string
	Start int
	End   int
}

// scan tokenizes src and reports every token with its byte span. The spans of
// consecutive tokens are contiguous and cover src exactly.
func scan(src string, fn func(tok token, raw string) error) error {
	z := html.NewTokenizer(strings.NewReader(src))
	offset := 0
	for {
		tt := z.Next()
		raw := z.Raw()
		tok := token{Type: tt, Start: offset, End: offset + len(raw)}
		offset = tok.End
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return nil
			}
			return z.Err()
		}
		if tt == html.StartTagToken || tt == html.SelfClosingTagToken || tt == html.EndTagToken {
			name, _ := z.TagName()
			tok.Name = string(name)
		}
		if err := fn(tok, src[tok.Start:tok.End]); err != nil {
			return err
		}
	}
}

// Traverse visits every element of src in document order. Comments, doctype
// and raw text are skipped. A visit error stops the traversal and is returned.
func Traverse(src string, visit func(*Element) error) error {
	var pending *Element
	err := scan(src, func(tok token, raw string) error {
		switch tok.Type {
		case html.StartTagToken, html.SelfClosingTagToken:
			el := &Element{
				Tag:          tok.Name,
				Attrs:        parseAttrs(raw, tok.Start),
				Start:        tok.Start,
				StartTagEnd:  tok.End,
				End:          tok.End,
				ContentStart: tok.End,
			}
			if rawTextElements[el.Tag] {
				pending = el
				return nil
			}
			return visit(el)
		case html.TextToken:
			if pending != nil {
				pending.Content += raw
			}
		case html.EndTagToken:
			if pending != nil && tok.Name == pending.Tag {
				el := pending
				pending = nil
				el.End = tok.End
				return visit(el)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if pending != nil {
		// Unterminated raw-text element runs to the end of the document.
		pending.End = len(src)
		return visit(pending)
	}
	return nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// parseAttrs scans the raw text of a start tag and records attribute spans
// relative to base. It follows the tokenizer's attribute grammar.
func parseAttrs(raw string, base int) []Attr {
	n := len(raw)
	i := 1
	for i < n && !isSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' {
		i++
	}

	var attrs []Attr
	for {
		for i < n && (isSpace(raw[i]) || raw[i] == '/') {
			i++
		}
		if i >= n || raw[i] == '>' {
			return attrs
		}

		nameStart := i
		if raw[i] == '=' {
			i++
		}
		for i < n && !isSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' && raw[i] != '=' {
			i++
		}
		a := Attr{Name: strings.ToLower(raw[nameStart:i]), Start: base + nameStart}

		j := i
		for j < n && isSpace(raw[j]) {
			j++
		}
		if j < n && raw[j] == '=' {
			j++
			for j < n && isSpace(raw[j]) {
				j++
			}
			vs := j
			if j < n && (raw[j] == '"' || raw[j] == '\'') {
				q := raw[j]
				j++
				for j < n && raw[j] != q {
					j++
				}
				a.RawValue = raw[vs+1 : j]
				if j < n {
					j++
				}
			} else {
				for j < n && !isSpace(raw[j]) && raw[j] != '>' {
					j++
				}
				a.RawValue = raw[vs:j]
			}
			a.HasValue = true
			a.Value = html.UnescapeString(a.RawValue)
			a.ValueStart = base + vs
			a.ValueEnd = base + j
			i = j
		}
		attrs = append(attrs, a)
	}
}
