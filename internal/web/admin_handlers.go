package web

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/edvart/property-listings/internal/auth"
	"github.com/edvart/property-listings/internal/listing"
	"github.com/edvart/property-listings/internal/media"
	"github.com/edvart/property-listings/internal/store"
)

// maxFormMemory bounds the in-memory part of a property form. Larger
// uploads spill to temporary files.
const maxFormMemory = 32 << 20

const msgInvalidCredentials = "Correo o contraseña incorrectos"

// LoginData holds data for the login page.
type LoginData struct {
	Title string
	User  *auth.User
	Email string
	Error string
}

// FormData holds data for the property form.
type FormData struct {
	Title     string
	User      *auth.User
	Property  *PropertyView
	Input     store.PropertyInput
	Statuses  []store.Status
	Error     string
	MaxSizeMB int
}

// Action is where the form posts to.
func (d FormData) Action() string {
	if d.Property != nil {
		return "/admin/properties/" + d.Property.ID
	}
	return "/admin/properties"
}

// DashboardData holds data for the admin dashboard.
type DashboardData struct {
	Title      string
	User       *auth.User
	Properties []PropertyView
}

// handleLoginPage sends allowed admins to the dashboard. Anyone else who
// is signed in sees the reason and a way to sign out.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	data := LoginData{Title: "Ingresar"}
	if user := auth.UserFromContext(r.Context()); user != nil {
		d := s.guard.Authorize(user)
		if d.Outcome == auth.Authorized {
			http.Redirect(w, r, "/admin/dashboard", http.StatusSeeOther)
			return
		}
		data.User = user
		data.Email = user.Email
		data.Error = d.Message()
	}
	s.render(w, "admin_login.html", http.StatusOK, data)
}

// handleLogin signs in with email and password. A valid account that is
// not on the allow-list is signed out again.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	email := r.PostFormValue("email")
	data := LoginData{Title: "Ingresar", Email: email}

	session, err := s.sessions.SignIn(r.Context(), w, email, r.PostFormValue("password"))
	if errors.Is(err, auth.ErrInvalidCredentials) {
		data.Error = msgInvalidCredentials
		s.render(w, "admin_login.html", http.StatusUnauthorized, data)
		return
	}
	if err != nil {
		s.logger.WithError(err).Error("Sign in failed")
		data.Error = "No se pudo iniciar sesión"
		s.render(w, "admin_login.html", http.StatusBadGateway, data)
		return
	}

	user := &session.User
	d := s.guard.Authorize(user)
	s.metrics.authDecisions.WithLabelValues(d.Outcome.String()).Inc()
	if d.Outcome != auth.Authorized {
		creds := auth.CookieMap{auth.AccessCookieName: session.AccessToken}
		if err := s.sessions.SignOut(r.Context(), w, creds); err != nil {
			s.logger.WithError(err).Warn("Sign out after rejected login failed")
		}
		s.logger.WithFields(logrus.Fields{
			"email":   user.Email,
			"outcome": d.Outcome.String(),
		}).Warn("Rejected admin login")
		data.Error = d.Message()
		s.render(w, "admin_login.html", d.Status(), data)
		return
	}

	s.logger.WithField("email", user.Email).Info("Admin signed in")
	http.Redirect(w, r, "/admin/dashboard", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.SignOut(r.Context(), w, auth.FromRequest(r)); err != nil {
		s.logger.WithError(err).Warn("Sign out failed")
	}
	http.Redirect(w, r, auth.LoginPath, http.StatusSeeOther)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	props, err := s.properties.ListProperties(r.Context(), store.ListOptions{})
	if err != nil {
		s.logger.WithError(err).Error("Failed to list properties")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "admin_dashboard.html", http.StatusOK, DashboardData{
		Title:      "Panel",
		User:       auth.UserFromContext(r.Context()),
		Properties: s.views(props),
	})
}

func (s *Server) newFormData(r *http.Request) FormData {
	return FormData{
		Title:     "Nueva propiedad",
		User:      auth.UserFromContext(r.Context()),
		Input:     store.PropertyInput{Status: store.StatusAvailable},
		Statuses:  store.Statuses,
		MaxSizeMB: media.MaxImageSizeMB,
	}
}

func (s *Server) handleNewProperty(w http.ResponseWriter, r *http.Request) {
	s.render(w, "admin_property_form.html", http.StatusOK, s.newFormData(r))
}

func (s *Server) handleCreateProperty(w http.ResponseWriter, r *http.Request) {
	data := s.newFormData(r)

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		data.Error = "Formulario inválido"
		s.render(w, "admin_property_form.html", http.StatusBadRequest, data)
		return
	}

	in, err := listing.ParseForm(r.PostForm)
	data.Input = in
	if err != nil {
		data.Error = err.Error()
		s.render(w, "admin_property_form.html", http.StatusBadRequest, data)
		return
	}

	files := media.FilesFromMultipart(r.MultipartForm.File["images"])
	p, err := s.listings.Create(r.Context(), in, files)
	s.countUploads(files, err)
	if err != nil {
		status := s.formErrorStatus(err)
		if p != nil {
			// The row exists; further edits go through the edit form.
			v := s.view(*p)
			data.Property = &v
			data.Title = "Editar propiedad"
		}
		s.logger.WithError(err).Warn("Create property failed")
		data.Error = formErrorMessage(err)
		s.render(w, "admin_property_form.html", status, data)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"property_id": p.ID,
		"slug":        p.Slug,
		"images":      len(p.Images),
	}).Info("Property created")
	http.Redirect(w, r, "/admin/dashboard", http.StatusSeeOther)
}

func (s *Server) handleEditProperty(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProperty(w, r)
	if !ok {
		return
	}

	data := s.newFormData(r)
	v := s.view(*p)
	data.Title = "Editar propiedad"
	data.Property = &v
	data.Input = inputOf(p)
	s.render(w, "admin_property_form.html", http.StatusOK, data)
}

func (s *Server) handleUpdateProperty(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProperty(w, r)
	if !ok {
		return
	}

	data := s.newFormData(r)
	v := s.view(*p)
	data.Title = "Editar propiedad"
	data.Property = &v

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		data.Input = inputOf(p)
		data.Error = "Formulario inválido"
		s.render(w, "admin_property_form.html", http.StatusBadRequest, data)
		return
	}

	in, err := listing.ParseForm(r.PostForm)
	data.Input = in
	if err != nil {
		data.Error = err.Error()
		s.render(w, "admin_property_form.html", http.StatusBadRequest, data)
		return
	}

	files := media.FilesFromMultipart(r.MultipartForm.File["images"])
	err = s.listings.Update(r.Context(), p.ID, in, r.PostForm["keep_images"], files)
	s.countUploads(files, err)
	if err != nil {
		s.logger.WithError(err).WithField("property_id", p.ID).Warn("Update property failed")
		data.Error = formErrorMessage(err)
		s.render(w, "admin_property_form.html", s.formErrorStatus(err), data)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"property_id": p.ID,
		"images":      len(files),
	}).Info("Property updated")
	http.Redirect(w, r, "/admin/dashboard", http.StatusSeeOther)
}

// loadProperty reads the {id} property, writing the 404 or 500 itself.
func (s *Server) loadProperty(w http.ResponseWriter, r *http.Request) (*store.Property, bool) {
	id := chi.URLParam(r, "id")
	p, err := s.properties.GetProperty(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.render(w, "not_found.html", http.StatusNotFound, PageData{Title: "No encontrada"})
		return nil, false
	}
	if err != nil {
		s.logger.WithError(err).WithField("property_id", id).Error("Failed to load property")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}
	return p, true
}

func (s *Server) countUploads(files []media.File, err error) {
	if len(files) == 0 {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.imageUploads.WithLabelValues(result).Inc()
}

func (s *Server) formErrorStatus(err error) int {
	switch {
	case errors.Is(err, listing.ErrMisconfigured):
		return http.StatusInternalServerError
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func formErrorMessage(err error) string {
	if errors.Is(err, listing.ErrMisconfigured) {
		return auth.MsgMisconfigured
	}
	return err.Error()
}

func inputOf(p *store.Property) store.PropertyInput {
	return store.PropertyInput{
		Title:        p.Title,
		Description:  p.Description,
		LocationText: p.LocationText,
		Price:        p.Price,
		Currency:     p.Currency,
		AreaM2:       p.AreaM2,
		ContactPhone: p.ContactPhone,
		Highlighted:  p.Highlighted,
		Status:       p.Status,
	}
}
