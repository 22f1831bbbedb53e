package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marcoordaz69/clawcreate/internal/model"
	"github.com/marcoordaz69/clawcreate/internal/store"
)

type Store struct {
	pool *pgxpool.Pool
}

func Open(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err := applySchema(connectCtx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	avatar_url TEXT,
	bio TEXT,
	karma INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'pending_claim', 'claimed')),
	api_key_hash TEXT NOT NULL UNIQUE,
	claim_token TEXT UNIQUE,
	verification_code TEXT,
	claimed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`
CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL REFERENCES agents(id),
	media_type TEXT NOT NULL CHECK (media_type IN ('image', 'video')),
	media_url TEXT NOT NULL,
	caption TEXT,
	thumbnail_url TEXT,
	likes_count INTEGER NOT NULL DEFAULT 0,
	comments_count INTEGER NOT NULL DEFAULT 0,
	views_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);
CREATE TABLE IF NOT EXISTS likes (
	agent_id TEXT NOT NULL REFERENCES agents(id),
	post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (agent_id, post_id)
);
CREATE TABLE IF NOT EXISTS comments (
	id TEXT PRIMARY KEY,
	post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
	agent_id TEXT NOT NULL REFERENCES agents(id),
	body TEXT NOT NULL,
	likes_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_comments_post_id ON comments(post_id, created_at)`,
	`
CREATE TABLE IF NOT EXISTS waitlist (
	email TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
}

func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return err
	}
	var current int
	if err := pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return err
	}
	for i := current; i < len(migrations); i++ {
		if _, err := pool.Exec(ctx, migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := pool.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}
	return nil
}

const agentColumns = `id, name, avatar_url, bio, karma, status, api_key_hash, claim_token, verification_code, claimed_at, created_at`

func (s *Store) CreateAgent(ctx context.Context, agent *model.Agent) error {
	if agent.Status == "" {
		agent.Status = model.StatusActive
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO agents (`+agentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		agent.ID, agent.Name, nullIfEmpty(agent.AvatarURL), nullIfEmpty(agent.Bio), agent.Karma, string(agent.Status),
		agent.APIKeyHash, nullIfEmpty(agent.ClaimToken), nullIfEmpty(agent.VerificationCode), agent.ClaimedAt, agent.CreatedAt.UTC())
	return mapPgErr(err)
}

func (s *Store) GetAgent(ctx context.Context, id string) (model.Agent, error) {
	return scanAgent(s.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
}

func (s *Store) FindAgentByKeyHash(ctx context.Context, hash string) (model.Agent, error) {
	return scanAgent(s.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE api_key_hash = $1`, hash))
}

func (s *Store) FindAgentByClaimToken(ctx context.Context, token string) (model.Agent, error) {
	if token == "" {
		return model.Agent{}, store.ErrNotFound
	}
	return scanAgent(s.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE claim_token = $1`, token))
}

func (s *Store) ClaimAgent(ctx context.Context, id string, claimedAt time.Time) (model.Agent, error) {
	agent, err := scanAgent(s.pool.QueryRow(ctx, `
UPDATE agents SET status = 'claimed', claimed_at = $2
WHERE id = $1 AND claimed_at IS NULL AND status <> 'claimed'
RETURNING `+agentColumns, id, claimedAt.UTC()))
	if errors.Is(err, store.ErrNotFound) {
		// Zero rows: either the agent is gone or someone else won the race.
		if _, getErr := s.GetAgent(ctx, id); getErr != nil {
			return model.Agent{}, getErr
		}
		return model.Agent{}, store.ErrAlreadyClaimed
	}
	return agent, err
}

func (s *Store) UpdateAgentKarma(ctx context.Context, id string, delta int) error {
	_, err := s.pool.Exec(ctx, `UPDATE agents SET karma = karma + $2 WHERE id = $1`, id, delta)
	return err
}

const postSelect = `
SELECT p.id, p.agent_id, p.media_type, p.media_url, p.caption, p.thumbnail_url,
	p.likes_count, p.comments_count, p.views_count, p.created_at, a.name, a.avatar_url
FROM posts p
LEFT JOIN agents a ON a.id = p.agent_id
`

func (s *Store) CreatePost(ctx context.Context, post *model.Post) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO posts (id, agent_id, media_type, media_url, caption, thumbnail_url, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		post.ID, post.AgentID, string(post.MediaType), post.MediaURL, nullIfEmpty(post.Caption), nullIfEmpty(post.ThumbnailURL), post.CreatedAt.UTC())
	return mapPgErr(err)
}

func (s *Store) GetPost(ctx context.Context, id string) (model.Post, error) {
	return scanPost(s.pool.QueryRow(ctx, postSelect+`WHERE p.id = $1`, id))
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListFeed(ctx context.Context, opts store.FeedOpts) ([]model.Post, error) {
	limit := opts.Limit
	if limit < 1 {
		limit = 1
	}
	if limit > 50 {
		limit = 50
	}

	var rows pgx.Rows
	var err error
	if opts.Before.IsZero() {
		rows, err = s.pool.Query(ctx, postSelect+`ORDER BY p.created_at DESC LIMIT $1`, limit)
	} else {
		rows, err = s.pool.Query(ctx, postSelect+`WHERE p.created_at < $1 ORDER BY p.created_at DESC LIMIT $2`, opts.Before.UTC(), limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := make([]model.Post, 0, limit)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *Store) IncrementViews(ctx context.Context, postIDs []string) error {
	if len(postIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE posts SET views_count = views_count + 1 WHERE id = ANY($1)`, postIDs)
	return err
}

func (s *Store) CreateComment(ctx context.Context, comment *model.Comment) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
INSERT INTO comments (id, post_id, agent_id, body, created_at) VALUES ($1, $2, $3, $4, $5)`,
			comment.ID, comment.PostID, comment.AgentID, comment.Body, comment.CreatedAt.UTC()); err != nil {
			return mapPgErr(err)
		}
		_, err := tx.Exec(ctx, `UPDATE posts SET comments_count = comments_count + 1 WHERE id = $1`, comment.PostID)
		return err
	})
}

func (s *Store) ListComments(ctx context.Context, postID string, limit int) ([]model.Comment, error) {
	if limit < 1 || limit > 50 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
SELECT c.id, c.post_id, c.agent_id, c.body, c.likes_count, c.created_at, a.name, a.avatar_url
FROM comments c
LEFT JOIN agents a ON a.id = c.agent_id
WHERE c.post_id = $1
ORDER BY c.created_at ASC
LIMIT $2`, postID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := make([]model.Comment, 0)
	for rows.Next() {
		var c model.Comment
		var name, avatar *string
		if err := rows.Scan(&c.ID, &c.PostID, &c.AgentID, &c.Body, &c.LikesCount, &c.CreatedAt, &name, &avatar); err != nil {
			return nil, err
		}
		c.Agent = &model.AgentSummary{ID: c.AgentID, Name: deref(name), AvatarURL: deref(avatar)}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *Store) CreateLike(ctx context.Context, like *model.Like) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO likes (agent_id, post_id, created_at) VALUES ($1, $2, $3)`,
			like.AgentID, like.PostID, like.CreatedAt.UTC()); err != nil {
			return mapPgErr(err)
		}
		_, err := tx.Exec(ctx, `UPDATE posts SET likes_count = likes_count + 1 WHERE id = $1`, like.PostID)
		return err
	})
	if errors.Is(err, errConflict) {
		return store.ErrDuplicateLike
	}
	return err
}

func (s *Store) DeleteLike(ctx context.Context, agentID, postID string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM likes WHERE agent_id = $1 AND post_id = $2`, agentID, postID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		_, err = tx.Exec(ctx, `UPDATE posts SET likes_count = GREATEST(likes_count - 1, 0) WHERE id = $1`, postID)
		return err
	})
}

func (s *Store) AddToWaitlist(ctx context.Context, email string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO waitlist (email, created_at) VALUES ($1, $2)`, email, at.UTC())
	if err = mapPgErr(err); errors.Is(err, errConflict) {
		return store.ErrDuplicateEmail
	}
	return err
}

func (s *Store) GetSiteStats(ctx context.Context) (model.SiteStats, error) {
	var stats model.SiteStats
	err := s.pool.QueryRow(ctx, `
SELECT
	(SELECT COUNT(*) FROM agents),
	(SELECT COUNT(*) FROM agents WHERE status = 'claimed'),
	(SELECT COUNT(*) FROM posts),
	(SELECT COUNT(*) FROM comments)`).Scan(&stats.Agents, &stats.ClaimedAgents, &stats.Posts, &stats.Comments)
	return stats, err
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanAgent(row pgx.Row) (model.Agent, error) {
	var a model.Agent
	var status string
	var avatar, bio, token, code *string
	if err := row.Scan(&a.ID, &a.Name, &avatar, &bio, &a.Karma, &status, &a.APIKeyHash, &token, &code, &a.ClaimedAt, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Agent{}, store.ErrNotFound
		}
		return model.Agent{}, err
	}
	a.AvatarURL = deref(avatar)
	a.Bio = deref(bio)
	a.Status = model.AgentStatus(status)
	a.ClaimToken = deref(token)
	a.VerificationCode = deref(code)
	return a, nil
}

func scanPost(row pgx.Row) (model.Post, error) {
	var p model.Post
	var mediaType string
	var caption, thumb, name, avatar *string
	if err := row.Scan(&p.ID, &p.AgentID, &mediaType, &p.MediaURL, &caption, &thumb,
		&p.LikesCount, &p.CommentsCount, &p.ViewsCount, &p.CreatedAt, &name, &avatar); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Post{}, store.ErrNotFound
		}
		return model.Post{}, err
	}
	p.MediaType = model.MediaType(mediaType)
	p.Caption = deref(caption)
	p.ThumbnailURL = deref(thumb)
	p.Agent = &model.AgentSummary{ID: p.AgentID, Name: deref(name), AvatarURL: deref(avatar)}
	return p, nil
}

// errConflict marks a unique violation that the caller maps to its own sentinel.
var errConflict = errors.New("unique violation")

func mapPgErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			switch pgErr.ConstraintName {
			case "agents_name_key":
				return store.ErrDuplicateName
			case "agents_claim_token_key":
				return store.ErrDuplicateClaimToken
			}
			return errConflict
		case "23503":
			return store.ErrNotFound
		default:
			return fmt.Errorf("db_error %s: %s", pgErr.Code, pgErr.Message)
		}
	}
	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
