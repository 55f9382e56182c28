package web

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvart/property-listings/internal/auth"
	"github.com/edvart/property-listings/internal/media"
	"github.com/edvart/property-listings/internal/store"
)

// PropertyView is a property with its image URLs resolved.
type PropertyView struct {
	store.Property
	ImageURLs []string `json:"image_urls"`
}

// Cover is the first image URL, if any.
func (v PropertyView) Cover() string {
	if len(v.ImageURLs) == 0 {
		return ""
	}
	return v.ImageURLs[0]
}

func (s *Server) view(p store.Property) PropertyView {
	return PropertyView{Property: p, ImageURLs: media.PublicURLs(s.images, p.Images)}
}

func (s *Server) views(props []store.Property) []PropertyView {
	out := make([]PropertyView, len(props))
	for i, p := range props {
		out[i] = s.view(p)
	}
	return out
}

// PageData holds data for the public page templates.
type PageData struct {
	Title      string
	Admin      bool
	Properties []PropertyView
	Property   *PropertyView
}

// isAdmin reports whether the visitor may see admin affordances. Errors
// count as "no".
func (s *Server) isAdmin(r *http.Request) bool {
	return s.guard.Check(r.Context(), auth.FromRequest(r)).Outcome == auth.Authorized
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	props, err := s.properties.ListProperties(r.Context(), store.ListOptions{
		HighlightedOnly: true,
		Limit:           s.cfg.HighlightedCount,
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to list highlighted properties")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "index.html", http.StatusOK, PageData{
		Title:      "Propiedades destacadas",
		Admin:      s.isAdmin(r),
		Properties: s.views(props),
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	props, err := s.properties.ListProperties(r.Context(), store.ListOptions{})
	if err != nil {
		s.logger.WithError(err).Error("Failed to list properties")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "properties.html", http.StatusOK, PageData{
		Title:      "Propiedades",
		Admin:      s.isAdmin(r),
		Properties: s.views(props),
	})
}

func (s *Server) handleProperty(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	p, err := s.properties.GetPropertyBySlug(r.Context(), slug)
	if errors.Is(err, store.ErrNotFound) {
		s.render(w, "not_found.html", http.StatusNotFound, PageData{Title: "No encontrada"})
		return
	}
	if err != nil {
		s.logger.WithError(err).WithField("slug", slug).Error("Failed to load property")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	v := s.view(*p)
	s.render(w, "property.html", http.StatusOK, PageData{
		Title:    p.Title,
		Admin:    s.isAdmin(r),
		Property: &v,
	})
}

// handleAPIProperties serves the catalog as JSON, newest first.
func (s *Server) handleAPIProperties(w http.ResponseWriter, r *http.Request) {
	props, err := s.properties.ListProperties(r.Context(), store.ListOptions{
		HighlightedOnly: r.URL.Query().Get("highlighted") == "true",
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to list properties")
		writeJSONError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	writeJSONSuccess(w, http.StatusOK, map[string]any{"properties": s.views(props)})
}
