package site

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dcmarble/stonesite/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()

	assert.Equal(t, "DC Marble & Granite", c.Business)
	assert.Len(t, c.Features, 3)
	require.Len(t, c.Offered, 8)
	assert.Equal(t, "Cleaning", c.Offered[0].Title)
	assert.Equal(t, "Installation", c.Offered[7].Title)
	assert.Equal(t, "909-821-2670", c.Contact.Phone)
	assert.Equal(t, "Contact Us", c.Contact.Heading)
}

func TestLoadEmptyPath(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
hero:
  tagline: Family owned since 1998
contact:
  phone: 555-0100
  heading: Reach Us
offered:
  - icon: "🧽"
    title: Grout Cleaning
    description: Deep grout extraction
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Family owned since 1998", c.Hero.Tagline)
	assert.Equal(t, "Granite Restoration", c.Hero.Highlight, "untouched keys keep defaults")
	assert.Equal(t, "555-0100", c.Contact.Phone)
	assert.Equal(t, "Reach Us", c.Contact.Heading)
	assert.Equal(t, "don@dcmarbleandgranite.com", c.Contact.Email)
	require.Len(t, c.Offered, 1)
	assert.Equal(t, "Grout Cleaning", c.Offered[0].Title)
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
		require.Error(t, err)
	})

	t.Run("unknown key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "typo.yml")
		require.NoError(t, os.WriteFile(path, []byte("hreo:\n  title: x\n"), 0o600))

		_, err := Load(path)
		require.Error(t, err)
		assert.True(t, errors.IsValidationError(err))
	})
}
