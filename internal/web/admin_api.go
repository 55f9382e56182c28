package web

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/edvart/property-listings/internal/auth"
	"github.com/edvart/property-listings/internal/listing"
	"github.com/edvart/property-listings/internal/store"
)

// handleAuthCheck answers whether the caller is an allowed admin. It never
// fails loudly: anything unexpected is reported as "no session".
func (s *Server) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.WithField("panic", rec).Error("Auth check panicked")
			writeJSONError(w, http.StatusUnauthorized, auth.MsgNoSession, nil)
		}
	}()

	d := s.guard.Check(r.Context(), auth.FromRequest(r))
	s.metrics.authDecisions.WithLabelValues(d.Outcome.String()).Inc()

	if d.Outcome != auth.Authorized {
		writeJSONError(w, d.Status(), d.Message(), nil)
		return
	}
	writeJSONSuccess(w, http.StatusOK, map[string]any{"authorized": true})
}

// handleDeleteProperty deletes a property and then its images. A failed
// image cleanup is reported as a warning on a successful response.
func (s *Server) handleDeleteProperty(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := s.logger.WithField("property_id", id)

	d := s.guard.Check(r.Context(), auth.FromRequest(r))
	s.metrics.authDecisions.WithLabelValues(d.Outcome.String()).Inc()
	if d.Outcome != auth.Authorized {
		s.metrics.deletes.WithLabelValues(d.Outcome.String()).Inc()
		writeJSONError(w, d.Status(), d.Message(), nil)
		return
	}
	log = log.WithField("email", d.User.Email)

	res, err := s.listings.Delete(r.Context(), id)
	switch {
	case errors.Is(err, listing.ErrMisconfigured):
		log.WithError(err).Error("Property delete misconfigured")
		s.metrics.deletes.WithLabelValues("misconfigured").Inc()
		writeJSONError(w, http.StatusInternalServerError, auth.MsgMisconfigured, nil)
		return
	case errors.Is(err, store.ErrNotFound):
		s.metrics.deletes.WithLabelValues("not_found").Inc()
		writeJSONError(w, http.StatusNotFound, msgPropertyNotFound, nil)
		return
	case err != nil:
		log.WithError(err).Error("Property delete failed")
		s.metrics.deletes.WithLabelValues("error").Inc()
		writeJSONError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}

	deleted := make([]map[string]string, len(res.Deleted))
	for i, rowID := range res.Deleted {
		deleted[i] = map[string]string{"id": rowID}
	}
	body := map[string]any{"deleted": deleted}

	if res.CleanupErr != nil {
		s.metrics.deletes.WithLabelValues("warning").Inc()
		body["warning"] = msgCleanupFailed
		body["storageError"] = res.CleanupErr.Error()
		log.WithError(res.CleanupErr).Warn("Property deleted, images left behind")
	} else {
		s.metrics.deletes.WithLabelValues("deleted").Inc()
		log.WithFields(logrus.Fields{"images": len(res.Images)}).Info("Property deleted")
	}

	writeJSONSuccess(w, http.StatusOK, body)
}
