package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/marcoordaz69/clawcreate/internal/apperr"
	"github.com/marcoordaz69/clawcreate/internal/model"
	"github.com/marcoordaz69/clawcreate/internal/rate"
	"github.com/marcoordaz69/clawcreate/internal/store"
)

const (
	HeaderAPIKey = "X-API-Key"
	APIKeyPrefix = "cc_"

	DefaultLimit  = 60
	DefaultWindow = time.Minute
)

// HashAPIKey returns the lower-case hex SHA-256 digest stored in place of the key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey returns a fresh key carrying 256 bits of entropy.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return APIKeyPrefix + hex.EncodeToString(b), nil
}

func RandomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

type Authenticator struct {
	agents  store.AgentStore
	limiter rate.Limiter
	limit   int
	window  time.Duration
	logger  *slog.Logger
}

func NewAuthenticator(agents store.AgentStore, limiter rate.Limiter, limit int, window time.Duration, logger *slog.Logger) *Authenticator {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{agents: agents, limiter: limiter, limit: limit, window: window, logger: logger}
}

// AuthenticateRequest reads the API key header and authenticates it.
func (a *Authenticator) AuthenticateRequest(r *http.Request) (model.Agent, error) {
	return a.Authenticate(r.Context(), r.Header.Get(HeaderAPIKey))
}

// Authenticate resolves a key to its agent and counts the attempt against the
// agent's window. Unknown keys are not counted.
func (a *Authenticator) Authenticate(ctx context.Context, key string) (model.Agent, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return model.Agent{}, apperr.ErrMissingCredential
	}

	agent, err := a.agents.FindAgentByKeyHash(ctx, HashAPIKey(key))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Agent{}, apperr.ErrInvalidCredential
		}
		return model.Agent{}, apperr.Internal(fmt.Errorf("lookup api key: %w", err))
	}

	decision, err := a.limiter.Check(ctx, agent.ID, a.limit, a.window)
	if err != nil {
		a.logger.Warn("rate limiter unavailable, allowing request", "component", "auth", "agent_id", agent.ID, "error", err)
		return agent, nil
	}
	if decision.Limited {
		return model.Agent{}, apperr.RateLimited(decision.ResetAt)
	}
	return agent, nil
}
