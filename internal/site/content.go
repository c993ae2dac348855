// Package site holds the copy rendered on the marketing page. Defaults are
// compiled in; an optional YAML file can override any section.
package site

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/dcmarble/stonesite/internal/errors"
	"gopkg.in/yaml.v3"
)

// Content is everything the page renders apart from the form state.
type Content struct {
	Business string    `yaml:"business"`
	Hero     Hero      `yaml:"hero"`
	About    Section   `yaml:"about"`
	Features []Feature `yaml:"features"`
	Services Section   `yaml:"services"`
	Offered  []Service `yaml:"offered"`
	Gallery  Section   `yaml:"gallery"`
	Contact  Contact   `yaml:"contact"`
	Footer   string    `yaml:"footer"`
}

type Hero struct {
	Title        string  `yaml:"title"`
	Highlight    string  `yaml:"highlight"`
	Tagline      string  `yaml:"tagline"`
	Badges       []Badge `yaml:"badges"`
	CallToAction string  `yaml:"call_to_action"`
}

type Badge struct {
	Icon  string `yaml:"icon"`
	Label string `yaml:"label"`
}

type Section struct {
	Heading string `yaml:"heading"`
	Intro   string `yaml:"intro"`
}

type Feature struct {
	Icon        string `yaml:"icon"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

type Service struct {
	Icon        string `yaml:"icon"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

type Contact struct {
	Section   `yaml:",inline"`
	Phone     string `yaml:"phone"`
	Email     string `yaml:"email"`
	FormTitle string `yaml:"form_title"`
}

// Default returns the built-in page copy.
func Default() *Content {
	return &Content{
		Business: "DC Marble & Granite",
		Hero: Hero{
			Title:     "DC Marble &",
			Highlight: "Granite Restoration",
			Tagline:   "We are a full service natural stone company that takes pride in Restoring, Protecting and Maintaining your substantial investment",
			Badges: []Badge{
				{Icon: "⭐", Label: "100% Customer Satisfaction"},
				{Icon: "✅", Label: "Licensed, Bonded, Fully Insured"},
			},
			CallToAction: "Get Free Quote",
		},
		About: Section{
			Heading: "About Us",
			Intro:   "With years of expertise in natural stone restoration, we bring unmatched quality and precision to every project.",
		},
		Features: []Feature{
			{Icon: "🎯", Title: "Precision", Description: "Every project executed with meticulous attention to detail"},
			{Icon: "💎", Title: "Quality", Description: "Premium materials and techniques for lasting results"},
			{Icon: "🏆", Title: "Excellence", Description: "Committed to exceeding customer expectations"},
		},
		Services: Section{
			Heading: "Our Services",
			Intro:   "Comprehensive natural stone restoration and maintenance services",
		},
		Offered: []Service{
			{Icon: "✨", Title: "Cleaning", Description: "Professional deep cleaning of natural stone surfaces"},
			{Icon: "💎", Title: "Polishing", Description: "Expert polishing to restore natural stone shine"},
			{Icon: "🔧", Title: "Repairs", Description: "Comprehensive repair services for damaged stone"},
			{Icon: "📏", Title: "Lippage Removal", Description: "Precise leveling for uneven stone surfaces"},
			{Icon: "🎯", Title: "Honing", Description: "Surface refinishing for desired texture and finish"},
			{Icon: "🛡️", Title: "Sealing", Description: "Protective sealing to prevent stains and damage"},
			{Icon: "🌈", Title: "Color Enhancing", Description: "Enhancement to bring out natural stone colors"},
			{Icon: "🏗️", Title: "Installation", Description: "Professional stone installation services"},
		},
		Gallery: Section{
			Heading: "Our Work",
			Intro:   "See the transformation we bring to natural stone surfaces",
		},
		Contact: Contact{
			Section: Section{
				Heading: "Contact Us",
				Intro:   "Ready to restore your natural stone? Get in touch for a free consultation",
			},
			Phone:     "909-821-2670",
			Email:     "don@dcmarbleandgranite.com",
			FormTitle: "Get a Quote",
		},
		Footer: "© 2024 DC Marble & Granite Restoration. Licensed, Bonded, Fully Insured.",
	}
}

// Load returns the default content overlaid with the YAML file at path.
// Keys missing from the file keep their defaults; lists given in the file
// replace the default list entirely.
func Load(path string) (*Content, error) {
	content := Default()
	if path == "" {
		return content, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeFileNotFound,
			fmt.Sprintf("reading site content %s", path))
	}

	if err := Decode(data, content); err != nil {
		return nil, err
	}
	return content, nil
}

// Decode overlays YAML data onto content. Unknown keys are rejected so a
// typo in the content file fails loudly instead of silently keeping the
// default copy.
func Decode(data []byte, content *Content) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(content); err != nil {
		if err == io.EOF {
			return nil
		}
		return errors.WrapValidation(err, errors.ErrCodeValidationFailed, "invalid site content")
	}
	return nil
}
