// Package templates holds the HTML components of the converter page.
//
// Every component is a pure function of a manuscript.View: rendering never
// touches the controller that produced the snapshot. Components live in
// converter.templ; run `templ generate` after editing it.
package templates

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/a-h/templ"
	"github.com/yuin/goldmark"

	"github.com/JonMunkholm/frondo/internal/manuscript"
)

// Element IDs the page script relies on.
const (
	ConverterElementID = "converter"
	DropZoneElementID  = "drop-zone"
)

// DropZoneClass returns the class list of the drop target for v. The busy
// look wins over the highlight.
func DropZoneClass(v manuscript.View) templ.CSSClasses {
	return templ.Classes(
		"drop-zone",
		templ.KV("is-highlighted", v.Highlighted()),
		templ.KV("is-busy", v.Busy()),
	)
}

// blockedImage replaces image sources that are neither inline images nor
// http(s) URLs.
const blockedImage templ.SafeURL = "about:invalid#blocked"

// ImageSource vets an image reference returned by the analysis service.
// templ.URL would reject the data: URIs the service usually sends, so
// inline images are allowed here and everything else goes through it.
func ImageSource(src string) templ.SafeURL {
	s := strings.TrimSpace(src)
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "data:image/"):
		return templ.SafeURL(s)
	case strings.HasPrefix(lower, "https://"), strings.HasPrefix(lower, "http://"):
		return templ.URL(s)
	}
	return blockedImage
}

func fileLabel(f manuscript.FileMeta) string {
	label := f.Name
	if f.Width > 0 && f.Height > 0 {
		label += fmt.Sprintf(" (%dx%d)", f.Width, f.Height)
	}
	return label
}

// tipsHTML renders the guidance markdown once. goldmark escapes raw HTML
// by default, so the output is safe to write unescaped.
var tipsHTML = sync.OnceValues(func() (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert(manuscript.TipsMarkdown, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
})
