package gallery

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dcmarble/stonesite/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLightboxOpenOverwritesThenClose(t *testing.T) {
	l := NewLightbox()

	_, ok := l.Selected()
	assert.False(t, ok)

	l.Open("a.webp")
	l.Open("b.webp")
	sel, ok := l.Selected()
	require.True(t, ok)
	assert.Equal(t, "b.webp", sel)

	l.Close()
	_, ok = l.Selected()
	assert.False(t, ok, "a single close clears any number of opens")
}

func TestLightboxCloseWhenClosed(t *testing.T) {
	l := NewLightbox()
	l.Close()
	_, ok := l.Selected()
	assert.False(t, ok)
}

func TestLightboxConcurrentAccess(t *testing.T) {
	l := NewLightbox()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.Open("1.webp")
		}()
		go func() {
			defer wg.Done()
			_, _ = l.Selected()
		}()
	}
	wg.Wait()
	sel, _ := l.Selected()
	assert.Equal(t, "1.webp", sel)
}

func TestDefaultImages(t *testing.T) {
	images := DefaultImages()
	require.Len(t, images, 4)
	assert.Equal(t, Image{Src: "/images/gallery/1.webp", Alt: "Stone restoration project 1"}, images[0])
	assert.Equal(t, "/images/gallery/4.webp", images[3].Src)
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("img"), 0o600))
	}
}

func TestScanDir(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "10.webp", "2.webp", "1.JPG", "notes.txt", ".hidden.png", "cover.png")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "3.webp"), 0o700))

	images, err := ScanDir(dir)
	require.NoError(t, err)

	var srcs []string
	for _, img := range images {
		srcs = append(srcs, img.Src)
	}
	assert.Equal(t, []string{
		"/images/gallery/1.JPG",
		"/images/gallery/2.webp",
		"/images/gallery/10.webp",
		"/images/gallery/cover.png",
	}, srcs)
	assert.Equal(t, "Stone restoration project 3", images[2].Alt)
}

func TestScanDirMissing(t *testing.T) {
	_, err := ScanDir(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeIO, err.(*errors.SiteError).Type)
}

func TestCatalogLookupAndReplace(t *testing.T) {
	c := NewCatalog(DefaultImages())
	assert.Equal(t, 4, c.Len())

	img, ok := c.Lookup("/images/gallery/2.webp")
	require.True(t, ok)
	assert.Equal(t, "Stone restoration project 2", img.Alt)

	_, ok = c.Lookup("https://evil.example/x.webp")
	assert.False(t, ok)

	c.Replace([]Image{{Src: "/images/gallery/9.webp", Alt: "nine"}})
	_, ok = c.Lookup("/images/gallery/2.webp")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	images := c.Images()
	images[0].Alt = "mutated"
	img, _ = c.Lookup("/images/gallery/9.webp")
	assert.Equal(t, "nine", img.Alt, "Images returns a copy")
}

func TestDirCatalogReload(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "1.webp")

	c, err := NewDirCatalog(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, c.Dir())
	assert.Equal(t, 1, c.Len())

	writeFiles(t, dir, "2.webp")
	require.NoError(t, c.Reload())
	assert.Equal(t, 2, c.Len())

	fixed := NewCatalog(DefaultImages())
	assert.NoError(t, fixed.Reload())
	assert.Equal(t, 4, fixed.Len())
}
