package gallery

import "sync"

// Lightbox tracks which gallery image, if any, is shown enlarged. Open
// replaces the current selection; there is no stack of opened images.
type Lightbox struct {
	mu       sync.RWMutex
	selected string
}

// NewLightbox returns a closed lightbox.
func NewLightbox() *Lightbox {
	return &Lightbox{}
}

// Open selects ref.
func (l *Lightbox) Open(ref string) {
	l.mu.Lock()
	l.selected = ref
	l.mu.Unlock()
}

// Close clears the selection.
func (l *Lightbox) Close() {
	l.mu.Lock()
	l.selected = ""
	l.mu.Unlock()
}

// Selected returns the open image and whether there is one.
func (l *Lightbox) Selected() (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.selected, l.selected != ""
}
