package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"path"
	"strings"

	"github.com/dcmarble/stonesite/internal/contact"
	"github.com/dcmarble/stonesite/internal/errors"
	"github.com/dcmarble/stonesite/internal/gallery"
	"github.com/dcmarble/stonesite/internal/session"
	"github.com/dcmarble/stonesite/internal/views"
)

// maxFormBytes bounds contact submissions.
const maxFormBytes = 64 << 10

// visitor returns the caller's session, issuing a cookie for new visitors.
// When the store is full it answers 503 itself and reports false.
func (s *Server) visitor(w http.ResponseWriter, r *http.Request) (*session.Visitor, bool) {
	var id string
	if cookie, err := r.Cookie(session.CookieName); err == nil {
		id = cookie.Value
	}

	v, created, err := s.sessions.GetOrCreate(id)
	if err != nil {
		s.errHandler.Handle(r.Context(), err)
		w.Header().Set("Retry-After", "60")
		http.Error(w, "Too many visitors, please try again shortly", http.StatusServiceUnavailable)
		return nil, false
	}
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     session.CookieName,
			Value:    v.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   s.secureRequest(r),
			SameSite: http.SameSiteLaxMode,
		})
	}
	return v, true
}

func (s *Server) pageData(v *session.Visitor) views.PageData {
	selected, _ := v.Lightbox.Selected()
	return views.PageData{
		Content:  s.content,
		Images:   s.catalog.Images(),
		Contact:  v.Contact.Snapshot(),
		Selected: selected,
	}
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, v *session.Visitor) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	if err := views.Page(s.pageData(v)).Render(r.Context(), w); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to render page")
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if v, ok := s.visitor(w, r); ok {
		s.renderPage(w, r, http.StatusOK, v)
	}
}

// submit runs the contact workflow on a context the visitor cannot cancel:
// once accepted, a send always runs to completion.
func (s *Server) submit(r *http.Request, v *session.Visitor, form contact.FormState) (contact.Snapshot, error) {
	return v.Contact.SubmitForm(context.WithoutCancel(r.Context()), form)
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	v, ok := s.visitor(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		s.errHandler.Handle(r.Context(), errors.WrapValidation(err, errors.ErrCodeValidationFailed, "invalid contact form"))
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	form := contact.FormState{
		Name:    r.PostForm.Get(string(contact.FieldName)),
		Email:   r.PostForm.Get(string(contact.FieldEmail)),
		Message: r.PostForm.Get(string(contact.FieldMessage)),
	}

	if _, err := s.submit(r, v, form); err != nil {
		if stderrors.Is(err, contact.ErrSubmitInFlight) {
			s.renderPage(w, r, http.StatusConflict, v)
			return
		}
		s.errHandler.Handle(r.Context(), err)
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	http.Redirect(w, r, "/#contact", http.StatusSeeOther)
}

func (s *Server) handleAPIContact(w http.ResponseWriter, r *http.Request) {
	v, ok := s.visitor(w, r)
	if !ok {
		return
	}

	var form contact.FormState
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&form); err != nil {
		s.errHandler.Handle(r.Context(), errors.WrapValidation(err, errors.ErrCodeValidationFailed, "invalid contact payload"))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	snap, err := s.submit(r, v, form)
	if err != nil {
		if stderrors.Is(err, contact.ErrSubmitInFlight) {
			writeJSON(w, http.StatusConflict, snap)
			return
		}
		s.errHandler.Handle(r.Context(), err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid contact payload"})
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGalleryOpen(w http.ResponseWriter, r *http.Request) {
	src := r.URL.Query().Get("image")
	img, ok := s.catalog.Lookup(src)
	if !ok {
		s.errHandler.Handle(r.Context(), errors.NewValidationError(errors.ErrCodeImageNotFound,
			"gallery image not in catalog").WithContext("image", src))
		http.NotFound(w, r)
		return
	}

	v, ok := s.visitor(w, r)
	if !ok {
		return
	}
	v.Lightbox.Open(img.Src)
	http.Redirect(w, r, "/#gallery", http.StatusSeeOther)
}

func (s *Server) handleGalleryClose(w http.ResponseWriter, r *http.Request) {
	if v, ok := s.visitor(w, r); ok {
		v.Lightbox.Close()
		http.Redirect(w, r, "/#gallery", http.StatusSeeOther)
	}
}

// galleryFileServer serves image files from dir and nothing else.
func galleryFileServer(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean("/" + r.URL.Path)
		base := path.Base(name)
		if strings.HasPrefix(base, ".") || strings.Contains(strings.TrimPrefix(name, "/"), "/") || !gallery.IsImageFile(base) {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		files.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

