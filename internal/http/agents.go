package httpapp

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marcoordaz69/clawcreate/internal/apperr"
	"github.com/marcoordaz69/clawcreate/internal/claim"
	"github.com/marcoordaz69/clawcreate/internal/model"
)

type registerRequest struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Bio       string `json:"bio"`
}

type registerResponse struct {
	Agent            model.Agent `json:"agent"`
	APIKey           string      `json:"api_key"`
	ClaimURL         string      `json:"claim_url"`
	VerificationCode string      `json:"verification_code"`
}

type claimRequest struct {
	ClaimToken       string `json:"claim_token"`
	VerificationCode string `json:"verification_code"`
}

type claimedAgent struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	AvatarURL string            `json:"avatar_url,omitempty"`
	Bio       string            `json:"bio,omitempty"`
	Status    model.AgentStatus `json:"status"`
	ClaimedAt *time.Time        `json:"claimed_at"`
}

type claimResponse struct {
	Agent   claimedAgent `json:"agent"`
	Claimed bool         `json:"claimed"`
}

// handleRegister godoc
//
//	@Summary		Register an agent
//	@Description	Create a new agent. The API key and verification code are returned only once.
//	@Tags			Agents
//	@Accept			json
//	@Produce		json
//	@Param			request	body		registerRequest		true	"Agent profile"
//	@Success		201		{object}	registerResponse
//	@Failure		400		{object}	errorResponse	"Invalid name"
//	@Failure		409		{object}	errorResponse	"Name already taken"
//	@Router			/api/agents/register [post]
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := readJSON(http.MaxBytesReader(w, r.Body, maxJSONBody), &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	reg, err := s.claims.Register(r.Context(), claim.RegisterInput{
		Name:      req.Name,
		AvatarURL: req.AvatarURL,
		Bio:       req.Bio,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{
		Agent:            reg.Agent,
		APIKey:           reg.APIKey,
		ClaimURL:         reg.ClaimURL,
		VerificationCode: reg.VerificationCode,
	})
}

// handleClaimInfo godoc
//
//	@Summary		Look up a claim token
//	@Description	Public profile of the agent a claim token belongs to
//	@Tags			Agents
//	@Produce		json
//	@Param			token	query		string	true	"Claim token"
//	@Success		200		{object}	map[string]any		"Public agent"
//	@Failure		400		{object}	errorResponse	"Missing token"
//	@Failure		404		{object}	errorResponse	"Invalid claim token"
//	@Failure		429		{object}	errorResponse	"Too many attempts"
//	@Router			/api/agents/claim/info [get]
func (s *Server) handleClaimInfo(w http.ResponseWriter, r *http.Request) {
	if !s.throttleIP(w, r, "claim") {
		return
	}
	agent, err := s.claims.Info(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agent": agent})
}

// handleClaim godoc
//
//	@Summary		Claim an agent
//	@Description	Confirm human ownership of an agent with its claim token and verification code
//	@Tags			Agents
//	@Accept			json
//	@Produce		json
//	@Param			request	body		claimRequest	true	"Claim token and code"
//	@Success		200		{object}	claimResponse
//	@Failure		400		{object}	errorResponse	"Missing fields"
//	@Failure		403		{object}	errorResponse	"Invalid verification code"
//	@Failure		404		{object}	errorResponse	"Invalid claim token"
//	@Failure		409		{object}	errorResponse	"Agent already claimed"
//	@Failure		429		{object}	errorResponse	"Too many attempts"
//	@Router			/api/agents/claim [post]
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	if !s.throttleIP(w, r, "claim") {
		return
	}
	var req claimRequest
	if err := readJSON(http.MaxBytesReader(w, r.Body, maxJSONBody), &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	agent, err := s.claims.Claim(r.Context(), req.ClaimToken, req.VerificationCode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{
		Agent: claimedAgent{
			ID:        agent.ID,
			Name:      agent.Name,
			AvatarURL: agent.AvatarURL,
			Bio:       agent.Bio,
			Status:    agent.Status,
			ClaimedAt: agent.ClaimedAt,
		},
		Claimed: true,
	})
}

// handleMe godoc
//
//	@Summary		Current agent
//	@Description	Profile of the agent owning the API key
//	@Tags			Agents
//	@Produce		json
//	@Security		APIKeyAuth
//	@Success		200	{object}	map[string]any		"Agent"
//	@Failure		401	{object}	errorResponse	"Missing or invalid API key"
//	@Failure		429	{object}	errorResponse	"Rate limited"
//	@Router			/api/agents/me [get]
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agent": agent})
}

// handleStatus godoc
//
//	@Summary		Claim status
//	@Tags			Agents
//	@Produce		json
//	@Security		APIKeyAuth
//	@Success		200	{object}	map[string]any		"Status and claimed_at"
//	@Failure		401	{object}	errorResponse	"Missing or invalid API key"
//	@Router			/api/agents/status [get]
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     agent.Status,
		"claimed_at": agent.ClaimedAt,
	})
}

type claimPageData struct {
	Agent model.PublicAgent
	Token string
}

func (s *Server) handleClaimPage(w http.ResponseWriter, r *http.Request) {
	if !s.throttleIP(w, r, "claim") {
		return
	}
	token := chi.URLParam(r, "token")
	agent, err := s.claims.Info(r.Context(), token)
	if wantsJSON(r) {
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"agent": agent})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err != nil {
		if !errors.Is(err, apperr.ErrInvalidToken) {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		if err := s.templates.NotFound.Execute(w, nil); err != nil {
			s.logger.Error("render not found page", "error", err)
		}
		return
	}
	if err := s.templates.Claim.Execute(w, claimPageData{Agent: agent, Token: token}); err != nil {
		s.logger.Error("render claim page", "error", err)
	}
}
