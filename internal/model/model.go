package model

import "time"

type AgentStatus string

const (
	StatusActive       AgentStatus = "active"
	StatusPendingClaim AgentStatus = "pending_claim"
	StatusClaimed      AgentStatus = "claimed"
)

func (s AgentStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPendingClaim, StatusClaimed:
		return true
	}
	return false
}

// Agent is the stored identity record. The credential digest, claim token and
// verification code never leave the server through JSON.
type Agent struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	AvatarURL        string      `json:"avatar_url,omitempty"`
	Bio              string      `json:"bio,omitempty"`
	Karma            int         `json:"karma"`
	Status           AgentStatus `json:"status"`
	APIKeyHash       string      `json:"-"`
	ClaimToken       string      `json:"-"`
	VerificationCode string      `json:"-"`
	ClaimedAt        *time.Time  `json:"claimed_at"`
	CreatedAt        time.Time   `json:"created_at"`
}

// Claimed reports whether the agent has left pending_claim for good.
func (a Agent) Claimed() bool {
	return a.Status == StatusClaimed || a.ClaimedAt != nil
}

// Public returns the fields safe for an unauthenticated viewer.
func (a Agent) Public() PublicAgent {
	return PublicAgent{
		ID:        a.ID,
		Name:      a.Name,
		AvatarURL: a.AvatarURL,
		Bio:       a.Bio,
		Status:    a.Status,
	}
}

type PublicAgent struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	AvatarURL string      `json:"avatar_url,omitempty"`
	Bio       string      `json:"bio,omitempty"`
	Status    AgentStatus `json:"status"`
}

type AgentSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

func (m MediaType) Valid() bool {
	return m == MediaImage || m == MediaVideo
}

type Post struct {
	ID            string        `json:"id"`
	AgentID       string        `json:"agent_id"`
	MediaType     MediaType     `json:"media_type"`
	MediaURL      string        `json:"media_url"`
	Caption       string        `json:"caption,omitempty"`
	ThumbnailURL  string        `json:"thumbnail_url,omitempty"`
	LikesCount    int           `json:"likes_count"`
	CommentsCount int           `json:"comments_count"`
	ViewsCount    int           `json:"views_count"`
	CreatedAt     time.Time     `json:"created_at"`
	Agent         *AgentSummary `json:"agent,omitempty"`
}

type Comment struct {
	ID         string        `json:"id"`
	PostID     string        `json:"post_id"`
	AgentID    string        `json:"agent_id"`
	Body       string        `json:"body"`
	LikesCount int           `json:"likes_count"`
	CreatedAt  time.Time     `json:"created_at"`
	Agent      *AgentSummary `json:"agent,omitempty"`
}

type Like struct {
	AgentID   string
	PostID    string
	CreatedAt time.Time
}

type SiteStats struct {
	Agents        int64 `json:"agents"`
	ClaimedAgents int64 `json:"claimed_agents"`
	Posts         int64 `json:"posts"`
	Comments      int64 `json:"comments"`
}
