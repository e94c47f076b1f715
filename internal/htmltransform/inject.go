package htmltransform

import (
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/devserver/internal/htmledit"
)

// InjectTo names an injection point for a Tag.
type InjectTo string

const (
	HeadPrepend InjectTo = "head-prepend"
	Head        InjectTo = "head"
	BodyPrepend InjectTo = "body-prepend"
	Body        InjectTo = "body"
)

// TagAttr is one attribute of a Tag. Bool attributes render as the bare name.
type TagAttr struct {
	Name  string
	Value string
	Bool  bool
}

// Tag describes an element to inject into the document. Attributes render in
// order. An empty InjectTo means Head.
type Tag struct {
	Name     string
	Attrs    []TagAttr
	Text     string
	Children []Tag
	InjectTo InjectTo
}

var voidTags = map[string]bool{"link": true, "meta": true, "base": true}

// String serializes the tag.
func (t Tag) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t Tag) write(b *strings.Builder) {
	b.WriteByte('<')
	b.WriteString(t.Name)
	for _, a := range t.Attrs {
		b.WriteByte(' ')
		b.WriteString(a.Name)
		if a.Bool {
			continue
		}
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(a.Value))
		b.WriteByte('"')
	}
	b.WriteByte('>')
	if voidTags[t.Name] {
		return
	}
	b.WriteString(t.Text)
	for i, c := range t.Children {
		if i > 0 || t.Text != "" {
			b.WriteByte('\n')
		}
		c.write(b)
	}
	b.WriteString("</")
	b.WriteString(t.Name)
	b.WriteByte('>')
}

func serializeTags(tags []Tag) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = t.String()
	}
	return strings.Join(parts, "\n")
}

// landmarks are the document offsets the assembler anchors on. -1 means the
// landmark is absent.
type landmarks struct {
	doctypeEnd  int
	htmlOpenEnd int
	htmlClose   int
	headOpenEnd int
	headClose   int
	bodyOpenEnd int
	bodyClose   int
}

func findLandmarks(src string) (landmarks, error) {
	lm := landmarks{-1, -1, -1, -1, -1, -1, -1}
	set := func(p *int, v int) {
		if *p < 0 {
			*p = v
		}
	}
	inRaw := ""
	err := scan(src, func(tok token, _ string) error {
		if inRaw != "" {
			if tok.Type == html.EndTagToken && tok.Name == inRaw {
				inRaw = ""
			}
			return nil
		}
		switch tok.Type {
		case html.DoctypeToken:
			set(&lm.doctypeEnd, tok.End)
		case html.StartTagToken, html.SelfClosingTagToken:
			switch tok.Name {
			case "html":
				set(&lm.htmlOpenEnd, tok.End)
			case "head":
				set(&lm.headOpenEnd, tok.End)
			case "body":
				set(&lm.bodyOpenEnd, tok.End)
			default:
				if rawTextElements[tok.Name] {
					inRaw = tok.Name
				}
			}
		case html.EndTagToken:
			switch tok.Name {
			case "html":
				set(&lm.htmlClose, tok.Start)
			case "head":
				set(&lm.headClose, tok.Start)
			case "body":
				set(&lm.bodyClose, tok.Start)
			}
		}
		return nil
	})
	return lm, err
}

func firstOf(offsets ...int) int {
	for _, o := range offsets {
		if o >= 0 {
			return o
		}
	}
	return -1
}

// InjectTags places tags into src at their injection points:
//
//	head-prepend  after <head>, else after <html>, else after the doctype, else at the start
//	head          before </head>, else like head-prepend
//	body-prepend  after <body>, else before </html>, else at the end
//	body          before </body>, else before </html>, else at the end
//
// Tags sharing an injection point keep their order.
func InjectTags(src string, tags []Tag) (string, error) {
	if len(tags) == 0 {
		return src, nil
	}

	groups := map[InjectTo][]Tag{}
	for _, t := range tags {
		to := t.InjectTo
		if to == "" {
			to = Head
		}
		groups[to] = append(groups[to], t)
	}

	lm, err := findLandmarks(src)
	if err != nil {
		return "", err
	}

	s := htmledit.New(src)
	after := func(pos int, ts []Tag) error {
		if len(ts) == 0 {
			return nil
		}
		if pos < 0 {
			return s.Insert(0, serializeTags(ts)+"\n")
		}
		return s.Insert(pos, "\n"+serializeTags(ts))
	}
	before := func(pos int, ts []Tag) error {
		if len(ts) == 0 {
			return nil
		}
		if pos < 0 {
			s.Append("\n" + serializeTags(ts))
			return nil
		}
		return s.Insert(pos, serializeTags(ts)+"\n")
	}

	headStart := firstOf(lm.headOpenEnd, lm.htmlOpenEnd, lm.doctypeEnd)
	if err := after(headStart, groups[HeadPrepend]); err != nil {
		return "", err
	}
	if lm.headClose >= 0 {
		err = before(lm.headClose, groups[Head])
	} else {
		err = after(headStart, groups[Head])
	}
	if err != nil {
		return "", err
	}
	if lm.bodyOpenEnd >= 0 {
		err = after(lm.bodyOpenEnd, groups[BodyPrepend])
	} else {
		err = before(lm.htmlClose, groups[BodyPrepend])
	}
	if err != nil {
		return "", err
	}
	if err := before(firstOf(lm.bodyClose, lm.htmlClose), groups[Body]); err != nil {
		return "", err
	}
	return s.String(), nil
}
