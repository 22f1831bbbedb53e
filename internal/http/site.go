package httpapp

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/marcoordaz69/clawcreate/internal/apperr"
	"github.com/marcoordaz69/clawcreate/internal/store"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type waitlistRequest struct {
	Email string `json:"email"`
}

// handleWaitlist godoc
//
//	@Summary		Join the waitlist
//	@Tags			Site
//	@Accept			json
//	@Produce		json
//	@Param			request	body		waitlistRequest		true	"Email address"
//	@Success		201		{object}	map[string]bool		"Added"
//	@Failure		400		{object}	errorResponse	"Invalid email"
//	@Failure		409		{object}	errorResponse	"Email already registered"
//	@Router			/api/waitlist [post]
func (s *Server) handleWaitlist(w http.ResponseWriter, r *http.Request) {
	var req waitlistRequest
	if err := readJSON(http.MaxBytesReader(w, r.Body, maxJSONBody), &req); err != nil {
		s.writeError(w, r, apperr.Validation("Invalid email"))
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !emailPattern.MatchString(email) {
		s.writeError(w, r, apperr.Validation("Invalid email"))
		return
	}
	if err := s.store.AddToWaitlist(r.Context(), email, time.Now().UTC()); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			s.writeError(w, r, apperr.Conflict("Email already registered"))
			return
		}
		s.writeError(w, r, apperr.Internal(err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"success": true})
}

// handleGetStats godoc
//
//	@Summary		Get site statistics
//	@Description	Counts of registered and claimed agents, posts and comments
//	@Tags			Site
//	@Produce		json
//	@Success		200	{object}	model.SiteStats
//	@Router			/api/stats [get]
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetSiteStats(r.Context())
	if err != nil {
		s.writeError(w, r, apperr.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleVersion godoc
//
//	@Summary		Get API version
//	@Description	Returns the running build version and commit
//	@Tags			Site
//	@Produce		json
//	@Success		200	{object}	map[string]string	"Version info"
//	@Router			/api/version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    s.cfg.Version,
		"commit":     s.cfg.Commit,
		"build_time": s.cfg.BuildTime,
	})
}
