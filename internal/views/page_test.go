package views

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/a-h/templ"
	"github.com/dcmarble/stonesite/internal/contact"
	"github.com/dcmarble/stonesite/internal/gallery"
	"github.com/dcmarble/stonesite/internal/site"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func render(t *testing.T, c templ.Component) *html.Node {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(context.Background(), &buf))
	doc, err := html.Parse(&buf)
	require.NoError(t, err)
	return doc
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func byTag(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Data == tag }
}

func byID(id string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		v, _ := attr(n, "id")
		return v == id
	}
}

func byName(name string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		v, _ := attr(n, "name")
		return v == name
	}
}

func text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func one(t *testing.T, doc *html.Node, match func(*html.Node) bool) *html.Node {
	t.Helper()
	nodes := findAll(doc, match)
	require.Len(t, nodes, 1)
	return nodes[0]
}

func TestNavLabel(t *testing.T) {
	assert.Equal(t, "Home", NavLabel("home"))
	assert.Equal(t, "Services", NavLabel("services"))
}

func TestPageSections(t *testing.T) {
	doc := render(t, Page(PageData{Images: gallery.DefaultImages()}))

	for _, anchor := range Anchors {
		one(t, doc, byID(anchor))
	}

	links := findAll(one(t, doc, byTag("nav")), byTag("a"))
	require.Len(t, links, len(Anchors))
	assert.Equal(t, "About", text(links[1]))
	href, _ := attr(links[1], "href")
	assert.Equal(t, "#about", href)

	services := findAll(one(t, doc, byID("services")), byTag("h3"))
	assert.Len(t, services, 8)

	assert.Contains(t, text(one(t, doc, byTag("footer"))), "Licensed, Bonded, Fully Insured.")
	assert.Empty(t, findAll(doc, byID("lightbox")))
}

func TestPageEscapesContent(t *testing.T) {
	content := site.Default()
	content.Business = `<script>alert("x")</script>`

	var buf bytes.Buffer
	require.NoError(t, Page(PageData{Content: content}).Render(context.Background(), &buf))
	assert.NotContains(t, buf.String(), "<script>alert")
	assert.Contains(t, buf.String(), "&lt;script&gt;")
}

func TestGalleryLinks(t *testing.T) {
	doc := render(t, Gallery(site.Section{Heading: "Our Work"}, gallery.DefaultImages()))

	imgs := findAll(doc, byTag("img"))
	require.Len(t, imgs, 4)
	alt, _ := attr(imgs[2], "alt")
	assert.Equal(t, "Stone restoration project 3", alt)

	thumbs := findAll(doc, func(n *html.Node) bool {
		class, _ := attr(n, "class")
		return n.Data == "a" && class == "thumb"
	})
	require.Len(t, thumbs, 4)
	href, _ := attr(thumbs[0], "href")
	assert.Equal(t, "/gallery/open?image=%2Fimages%2Fgallery%2F1.webp", href)
}

func TestContactFormStates(t *testing.T) {
	tests := []struct {
		name       string
		snap       contact.Snapshot
		wantBanner string
		wantButton string
		disabled   bool
	}{
		{
			name:       "idle",
			snap:       contact.Snapshot{},
			wantButton: SendLabel,
		},
		{
			name:       "in flight",
			snap:       contact.Snapshot{InFlight: true, Form: contact.FormState{Name: "Ann"}},
			wantButton: SendingLabel,
			disabled:   true,
		},
		{
			name:       "success",
			snap:       contact.Snapshot{Status: contact.StatusSuccess},
			wantBanner: SuccessBanner,
			wantButton: SendLabel,
		},
		{
			name:       "error keeps input",
			snap:       contact.Snapshot{Status: contact.StatusError, Form: contact.FormState{Name: "Ann", Email: "a@x.io", Message: "hi"}},
			wantBanner: ErrorBanner,
			wantButton: SendLabel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := render(t, ContactForm(tt.snap))

			status := one(t, doc, byID("contact-status"))
			assert.Equal(t, tt.wantBanner, text(status))
			ds, _ := attr(status, "data-status")
			assert.Equal(t, tt.snap.Status.String(), ds)

			button := one(t, doc, byTag("button"))
			assert.Equal(t, tt.wantButton, text(button))
			_, disabled := attr(button, "disabled")
			assert.Equal(t, tt.disabled, disabled)

			name := one(t, doc, byName("name"))
			v, _ := attr(name, "value")
			assert.Equal(t, tt.snap.Form.Name, v)
			_, required := attr(name, "required")
			assert.True(t, required)

			email := one(t, doc, byName("email"))
			v, _ = attr(email, "value")
			assert.Equal(t, tt.snap.Form.Email, v)

			assert.Equal(t, tt.snap.Form.Message, text(one(t, doc, byName("message"))))

			form := one(t, doc, byTag("form"))
			action, _ := attr(form, "action")
			assert.Equal(t, "/contact", action)
		})
	}
}

func TestPageLightbox(t *testing.T) {
	doc := render(t, Page(PageData{
		Images:   gallery.DefaultImages(),
		Selected: "/images/gallery/2.webp",
	}))

	box := one(t, doc, byID("lightbox"))
	img := one(t, box, byTag("img"))
	src, _ := attr(img, "src")
	assert.Equal(t, "/images/gallery/2.webp", src)

	for _, a := range findAll(box, byTag("a")) {
		href, _ := attr(a, "href")
		assert.Equal(t, "/gallery/close", href)
	}
}

func TestContactDetailLinks(t *testing.T) {
	c := site.Default().Contact
	doc := render(t, Contact(c, contact.Snapshot{}))

	var hrefs []string
	for _, a := range findAll(one(t, doc, byTag("section")), byTag("a")) {
		href, _ := attr(a, "href")
		hrefs = append(hrefs, href)
	}
	assert.Equal(t, []string{"tel:" + c.Phone, "mailto:" + c.Email}, hrefs)
}

func TestDetailRejectsScriptURL(t *testing.T) {
	doc := render(t, detail("📞", "Phone", "javascript:alert(1)", "call"))

	href, _ := attr(one(t, doc, byTag("a")), "href")
	assert.Equal(t, string(templ.FailedSanitizationURL), href)
}
