// Package views renders the marketing page as templ components. The page is
// a pure function of the site content, the gallery catalog and one visitor's
// contact and lightbox state.
//
// The *_templ.go files are generated from the .templ sources with
// `templ generate`; edit the .templ files, never the output.
package views

import (
	"net/url"

	"github.com/dcmarble/stonesite/internal/contact"
	"github.com/dcmarble/stonesite/internal/gallery"
	"github.com/dcmarble/stonesite/internal/site"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	SuccessBanner = "✅ Message sent successfully! We'll get back to you soon."
	ErrorBanner   = "❌ Failed to send message. Please try again or call us directly."

	SendLabel    = "Send Message"
	SendingLabel = "Sending..."
)

// Anchors are the page sections in navigation order.
var Anchors = []string{"home", "about", "services", "gallery", "contact"}

var titleCaser = cases.Title(language.English)

// NavLabel turns a section anchor into its navigation label.
func NavLabel(anchor string) string {
	return titleCaser.String(anchor)
}

// PageData is everything one render of the page needs.
type PageData struct {
	Content *site.Content
	Images  []gallery.Image
	Contact contact.Snapshot
	// Selected is the image shown in the lightbox; empty when closed.
	Selected string
}

func (d PageData) content() *site.Content {
	if d.Content == nil {
		return site.Default()
	}
	return d.Content
}

// OpenURL is the link that opens src in the lightbox.
func OpenURL(src string) string {
	return "/gallery/open?" + url.Values{"image": {src}}.Encode()
}
