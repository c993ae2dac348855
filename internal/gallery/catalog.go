// Package gallery holds the project photo catalog shown on the page and
// the lightbox that enlarges one of them.
package gallery

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dcmarble/stonesite/internal/errors"
)

// URLPrefix is where gallery files are served from.
const URLPrefix = "/images/gallery/"

// Image is one gallery entry.
type Image struct {
	Src string `json:"src"`
	Alt string `json:"alt"`
}

var imageExtensions = map[string]bool{
	".webp": true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// DefaultImages is the catalog used when no gallery directory is configured.
func DefaultImages() []Image {
	images := make([]Image, 0, 4)
	for i := 1; i <= 4; i++ {
		images = append(images, Image{
			Src: fmt.Sprintf("%s%d.webp", URLPrefix, i),
			Alt: altText(i),
		})
	}
	return images
}

func altText(n int) string {
	return fmt.Sprintf("Stone restoration project %d", n)
}

// IsImageFile reports whether name has a gallery image extension.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// ScanDir lists the image files directly inside dir in natural order
// (2.webp before 10.webp).
func ScanDir(dir string) ([]Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeFileNotFound,
			fmt.Sprintf("reading gallery directory %s", dir))
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") || !IsImageFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}

	sort.SliceStable(names, func(i, j int) bool {
		return naturalLess(names[i], names[j])
	})

	images := make([]Image, 0, len(names))
	for i, name := range names {
		images = append(images, Image{
			Src: URLPrefix + path.Base(name),
			Alt: altText(i + 1),
		})
	}
	return images, nil
}

// naturalLess orders names by their leading number when both have one.
func naturalLess(a, b string) bool {
	na, okA := leadingNumber(a)
	nb, okB := leadingNumber(b)
	switch {
	case okA && okB && na != nb:
		return na < nb
	case okA != okB:
		return okA
	default:
		return a < b
	}
}

func leadingNumber(name string) (int, bool) {
	end := 0
	for end < len(name) && name[end] >= '0' && name[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(name[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Catalog is the current, ordered set of gallery images. It is safe for
// concurrent use; the file watcher replaces its contents while requests
// read it.
type Catalog struct {
	mu     sync.RWMutex
	images []Image
	index  map[string]int
	dir    string
}

// NewCatalog creates a catalog holding images.
func NewCatalog(images []Image) *Catalog {
	c := &Catalog{}
	c.Replace(images)
	return c
}

// NewDirCatalog creates a catalog backed by dir.
func NewDirCatalog(dir string) (*Catalog, error) {
	images, err := ScanDir(dir)
	if err != nil {
		return nil, err
	}
	c := NewCatalog(images)
	c.dir = dir
	return c, nil
}

// Dir returns the backing directory, or "" for a fixed catalog.
func (c *Catalog) Dir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dir
}

// Images returns a copy of the catalog in display order.
func (c *Catalog) Images() []Image {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Image, len(c.images))
	copy(out, c.images)
	return out
}

// Lookup finds an image by its Src.
func (c *Catalog) Lookup(src string) (Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[src]
	if !ok {
		return Image{}, false
	}
	return c.images[i], true
}

// Len returns the number of images.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Replace swaps in a new image list.
func (c *Catalog) Replace(images []Image) {
	index := make(map[string]int, len(images))
	copied := make([]Image, len(images))
	copy(copied, images)
	for i, img := range copied {
		index[img.Src] = i
	}

	c.mu.Lock()
	c.images = copied
	c.index = index
	c.mu.Unlock()
}

// Reload rescans the backing directory. It is a no-op for fixed catalogs.
func (c *Catalog) Reload() error {
	dir := c.Dir()
	if dir == "" {
		return nil
	}
	images, err := ScanDir(dir)
	if err != nil {
		return err
	}
	c.Replace(images)
	return nil
}
