// Package claim registers agents and moves them from pending_claim to claimed
// when a human presents the claim token together with the verification code.
package claim

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/marcoordaz69/clawcreate/internal/apperr"
	"github.com/marcoordaz69/clawcreate/internal/auth"
	"github.com/marcoordaz69/clawcreate/internal/events"
	"github.com/marcoordaz69/clawcreate/internal/model"
	"github.com/marcoordaz69/clawcreate/internal/store"
)

const (
	// CodeAlphabet omits I, O and 0 so codes survive being read aloud.
	CodeAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ123456789"
	CodePrefix     = "claw-"
	CodeLength     = 4
	TokenPrefix    = "claim_"
	MinNameLength  = 2
	MaxNameLength  = 50
	tokenAttempts  = 3
	claimTokenSize = 32
)

// Result labels reported to Observe.
const (
	ResultSuccess        = "success"
	ResultInvalidToken   = "invalid_token"
	ResultAlreadyClaimed = "already_claimed"
	ResultInvalidCode    = "invalid_code"
	ResultFailure        = "failure"
)

type Config struct {
	BaseURL string
	Events  *events.Emitter
	Logger  *slog.Logger
	// Observe receives one Result label per Claim call.
	Observe func(result string)
	Now     func() time.Time
}

type Service struct {
	agents  store.AgentStore
	baseURL string
	events  *events.Emitter
	logger  *slog.Logger
	observe func(string)
	now     func() time.Time
}

func NewService(agents store.AgentStore, cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Observe == nil {
		cfg.Observe = func(string) {}
	}
	return &Service{
		agents:  agents,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		events:  cfg.Events,
		logger:  cfg.Logger,
		observe: cfg.Observe,
		now:     cfg.Now,
	}
}

type RegisterInput struct {
	Name      string
	AvatarURL string
	Bio       string
}

// Registration is returned once. It is the only place the plaintext key and
// the verification code ever appear.
type Registration struct {
	Agent            model.Agent
	APIKey           string
	ClaimToken       string
	ClaimURL         string
	VerificationCode string
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (Registration, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Registration{}, apperr.Validation("name is required")
	}
	if n := utf8.RuneCountInString(name); n < MinNameLength || n > MaxNameLength {
		return Registration{}, apperr.Validation("name must be %d-%d characters", MinNameLength, MaxNameLength)
	}

	apiKey, err := auth.GenerateAPIKey()
	if err != nil {
		return Registration{}, apperr.Internal(fmt.Errorf("generate api key: %w", err))
	}
	code, err := GenerateVerificationCode()
	if err != nil {
		return Registration{}, apperr.Internal(fmt.Errorf("generate verification code: %w", err))
	}

	var agent model.Agent
	for attempt := 0; ; attempt++ {
		token, err := auth.RandomToken(claimTokenSize)
		if err != nil {
			return Registration{}, apperr.Internal(fmt.Errorf("generate claim token: %w", err))
		}
		agent = model.Agent{
			ID:               uuid.NewString(),
			Name:             name,
			AvatarURL:        strings.TrimSpace(in.AvatarURL),
			Bio:              strings.TrimSpace(in.Bio),
			Status:           model.StatusPendingClaim,
			APIKeyHash:       auth.HashAPIKey(apiKey),
			ClaimToken:       TokenPrefix + token,
			VerificationCode: code,
			CreatedAt:        s.now().UTC(),
		}
		err = s.agents.CreateAgent(ctx, &agent)
		if err == nil {
			break
		}
		switch {
		case errors.Is(err, store.ErrDuplicateName):
			return Registration{}, apperr.Conflict("agent name already taken")
		case errors.Is(err, store.ErrDuplicateClaimToken) && attempt+1 < tokenAttempts:
			continue
		}
		return Registration{}, apperr.Internal(fmt.Errorf("create agent: %w", err))
	}

	s.logger.Info("agent registered", "component", "claim", "agent_id", agent.ID, "name", agent.Name)
	s.events.Emit(ctx, events.Event{Type: events.AgentRegistered, AgentID: agent.ID, Name: agent.Name})

	return Registration{
		Agent:            agent,
		APIKey:           apiKey,
		ClaimToken:       agent.ClaimToken,
		ClaimURL:         s.ClaimURL(agent.ClaimToken),
		VerificationCode: code,
	}, nil
}

func (s *Service) ClaimURL(token string) string {
	return s.baseURL + "/claim/" + token
}

// Info returns the public view of the agent a claim token points at.
func (s *Service) Info(ctx context.Context, token string) (model.PublicAgent, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.PublicAgent{}, apperr.Validation("token is required")
	}
	agent, err := s.agents.FindAgentByClaimToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.PublicAgent{}, apperr.ErrInvalidToken
		}
		return model.PublicAgent{}, apperr.Internal(fmt.Errorf("lookup claim token: %w", err))
	}
	return agent.Public(), nil
}

// Claim checks token, claimed state and code in that order, then performs the
// one-way transition. The storage write is conditional, so of two racing
// claims only one can succeed.
func (s *Service) Claim(ctx context.Context, token, code string) (model.Agent, error) {
	if strings.TrimSpace(token) == "" {
		return model.Agent{}, apperr.Validation("claim_token is required")
	}
	if code == "" {
		return model.Agent{}, apperr.Validation("verification_code is required")
	}

	agent, err := s.agents.FindAgentByClaimToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.observe(ResultInvalidToken)
			return model.Agent{}, apperr.ErrInvalidToken
		}
		s.observe(ResultFailure)
		return model.Agent{}, apperr.Internal(fmt.Errorf("lookup claim token: %w", err))
	}
	if agent.Claimed() {
		s.observe(ResultAlreadyClaimed)
		return model.Agent{}, apperr.ErrAlreadyClaimed
	}
	if agent.VerificationCode != code {
		s.observe(ResultInvalidCode)
		s.logger.Info("claim rejected", "component", "claim", "agent_id", agent.ID, "reason", ResultInvalidCode)
		return model.Agent{}, apperr.ErrInvalidCode
	}

	claimed, err := s.agents.ClaimAgent(ctx, agent.ID, s.now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrAlreadyClaimed) {
			s.observe(ResultAlreadyClaimed)
			return model.Agent{}, apperr.ErrAlreadyClaimed
		}
		s.observe(ResultFailure)
		s.logger.Error("claim persistence failed", "component", "claim", "agent_id", agent.ID, "error", err)
		return model.Agent{}, apperr.PersistenceFailure(err)
	}

	s.observe(ResultSuccess)
	s.logger.Info("agent claimed", "component", "claim", "agent_id", claimed.ID)
	s.events.Emit(ctx, events.Event{Type: events.AgentClaimed, AgentID: claimed.ID, Name: claimed.Name})
	return claimed, nil
}

// GenerateVerificationCode draws each symbol uniformly from CodeAlphabet.
func GenerateVerificationCode() (string, error) {
	var b strings.Builder
	b.WriteString(CodePrefix)
	max := big.NewInt(int64(len(CodeAlphabet)))
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(CodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
