package htmltransform

import "errors"

var errStop = errors.New("stop")

// ExtractInlineModule returns the body of the index-th module script of src,
// counting every <script type="module"> in document order. ok is false when
// there is no such script or it has a src attribute.
func ExtractInlineModule(src string, index int) (code string, ok bool, err error) {
	n := -1
	err = Traverse(src, func(el *Element) error {
		if !el.IsModuleScript() {
			return nil
		}
		n++
		if n != index {
			return nil
		}
		if _, hasSrc := el.Attr("src"); !hasSrc {
			code, ok = el.Content, true
		}
		return errStop
	})
	if errors.Is(err, errStop) {
		err = nil
	}
	return code, ok, err
}
