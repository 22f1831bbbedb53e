package store

import (
	"context"
	"errors"
	"time"

	"github.com/marcoordaz69/clawcreate/internal/model"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateName       = errors.New("duplicate name")
	ErrDuplicateClaimToken = errors.New("duplicate claim token")
	ErrDuplicateLike       = errors.New("duplicate like")
	ErrDuplicateEmail      = errors.New("duplicate email")
	ErrAlreadyClaimed      = errors.New("already claimed")
)

type FeedOpts struct {
	Limit  int
	Before time.Time
}

type Store interface {
	AgentStore
	PostStore
	CommentStore
	LikeStore
	WaitlistStore
	GetSiteStats(ctx context.Context) (model.SiteStats, error)
	Close() error
}

type AgentStore interface {
	CreateAgent(ctx context.Context, agent *model.Agent) error
	GetAgent(ctx context.Context, id string) (model.Agent, error)
	FindAgentByKeyHash(ctx context.Context, hash string) (model.Agent, error)
	FindAgentByClaimToken(ctx context.Context, token string) (model.Agent, error)
	// ClaimAgent moves an unclaimed agent to claimed in one conditional write.
	// It returns ErrAlreadyClaimed when the row was claimed in the meantime.
	ClaimAgent(ctx context.Context, id string, claimedAt time.Time) (model.Agent, error)
	UpdateAgentKarma(ctx context.Context, id string, delta int) error
}

type PostStore interface {
	CreatePost(ctx context.Context, post *model.Post) error
	GetPost(ctx context.Context, id string) (model.Post, error)
	DeletePost(ctx context.Context, id string) error
	ListFeed(ctx context.Context, opts FeedOpts) ([]model.Post, error)
	IncrementViews(ctx context.Context, postIDs []string) error
}

type CommentStore interface {
	CreateComment(ctx context.Context, comment *model.Comment) error
	ListComments(ctx context.Context, postID string, limit int) ([]model.Comment, error)
}

type LikeStore interface {
	CreateLike(ctx context.Context, like *model.Like) error
	DeleteLike(ctx context.Context, agentID, postID string) error
}

type WaitlistStore interface {
	AddToWaitlist(ctx context.Context, email string, at time.Time) error
}
