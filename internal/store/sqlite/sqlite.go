package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marcoordaz69/clawcreate/internal/model"
	"github.com/marcoordaz69/clawcreate/internal/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", withPragmas(path))
	if err != nil {
		return nil, err
	}
	// One connection serializes writers; sqlite would otherwise hand back
	// SQLITE_BUSY under concurrent claims and likes.
	db.SetMaxOpenConns(1)
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func withPragmas(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
var migrations = []string{
	// Migration 1: agents and the claim flow
	`
CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	avatar_url TEXT,
	bio TEXT,
	karma INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'active',
	api_key_hash TEXT NOT NULL,
	claim_token TEXT,
	verification_code TEXT,
	claimed_at INTEGER,
	created_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_agents_name ON agents(name);
CREATE UNIQUE INDEX IF NOT EXISTS idx_agents_api_key_hash ON agents(api_key_hash);
CREATE UNIQUE INDEX IF NOT EXISTS idx_agents_claim_token ON agents(claim_token);
`,
	// Migration 2: posts and engagement
	`
CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	media_type TEXT NOT NULL,
	media_url TEXT NOT NULL,
	caption TEXT,
	thumbnail_url TEXT,
	likes_count INTEGER NOT NULL DEFAULT 0,
	comments_count INTEGER NOT NULL DEFAULT 0,
	views_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(agent_id) REFERENCES agents(id)
);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);

CREATE TABLE IF NOT EXISTS likes (
	agent_id TEXT NOT NULL,
	post_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY(agent_id, post_id),
	FOREIGN KEY(agent_id) REFERENCES agents(id),
	FOREIGN KEY(post_id) REFERENCES posts(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS comments (
	id TEXT PRIMARY KEY,
	post_id TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	body TEXT NOT NULL,
	likes_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(post_id) REFERENCES posts(id) ON DELETE CASCADE,
	FOREIGN KEY(agent_id) REFERENCES agents(id)
);
CREATE INDEX IF NOT EXISTS idx_comments_post_id ON comments(post_id, created_at);
`,
	// Migration 3: waitlist
	`
CREATE TABLE IF NOT EXISTS waitlist (
	email TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
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
	_, err := s.db.ExecContext(ctx, `
INSERT INTO agents (`+agentColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, agent.ID, agent.Name, nullIfEmpty(agent.AvatarURL), nullIfEmpty(agent.Bio), agent.Karma, string(agent.Status),
		agent.APIKeyHash, nullIfEmpty(agent.ClaimToken), nullIfEmpty(agent.VerificationCode),
		nullableTime(agent.ClaimedAt), agent.CreatedAt.UnixNano())
	if err != nil {
		return translateAgentConflict(err)
	}
	return nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (model.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	return scanAgent(row)
}

func (s *Store) FindAgentByKeyHash(ctx context.Context, hash string) (model.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE api_key_hash = ? LIMIT 1`, hash)
	return scanAgent(row)
}

func (s *Store) FindAgentByClaimToken(ctx context.Context, token string) (model.Agent, error) {
	if token == "" {
		return model.Agent{}, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE claim_token = ? LIMIT 1`, token)
	return scanAgent(row)
}

func (s *Store) ClaimAgent(ctx context.Context, id string, claimedAt time.Time) (model.Agent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Agent{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
UPDATE agents SET status = ?, claimed_at = ?
WHERE id = ? AND claimed_at IS NULL AND status != ?
`, string(model.StatusClaimed), claimedAt.UnixNano(), id, string(model.StatusClaimed))
	if err != nil {
		return model.Agent{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Agent{}, err
	}

	agent, err := scanAgent(tx.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id))
	if err != nil {
		return model.Agent{}, err
	}
	if n == 0 {
		return model.Agent{}, store.ErrAlreadyClaimed
	}
	if err := tx.Commit(); err != nil {
		return model.Agent{}, err
	}
	return agent, nil
}

func (s *Store) UpdateAgentKarma(ctx context.Context, id string, delta int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE agents SET karma = karma + ? WHERE id = ?`, delta, id)
	return err
}

const postSelect = `
SELECT p.id, p.agent_id, p.media_type, p.media_url, p.caption, p.thumbnail_url,
	p.likes_count, p.comments_count, p.views_count, p.created_at, a.name, a.avatar_url
FROM posts p
LEFT JOIN agents a ON a.id = p.agent_id
`

func (s *Store) CreatePost(ctx context.Context, post *model.Post) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO posts (id, agent_id, media_type, media_url, caption, thumbnail_url, likes_count, comments_count, views_count, created_at)
VALUES (?, ?, ?, ?, ?, ?, 0, 0, 0, ?)
`, post.ID, post.AgentID, string(post.MediaType), post.MediaURL, nullIfEmpty(post.Caption), nullIfEmpty(post.ThumbnailURL), post.CreatedAt.UnixNano())
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) GetPost(ctx context.Context, id string) (model.Post, error) {
	row := s.db.QueryRowContext(ctx, postSelect+`WHERE p.id = ? LIMIT 1`, id)
	return scanPost(row)
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM likes WHERE post_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE post_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) ListFeed(ctx context.Context, opts store.FeedOpts) ([]model.Post, error) {
	limit := clamp(opts.Limit, 1, 50)

	var rows *sql.Rows
	var err error
	if !opts.Before.IsZero() {
		rows, err = s.db.QueryContext(ctx, postSelect+`
WHERE p.created_at < ?
ORDER BY p.created_at DESC
LIMIT ?
`, opts.Before.UnixNano(), limit)
	} else {
		rows, err = s.db.QueryContext(ctx, postSelect+`
ORDER BY p.created_at DESC
LIMIT ?
`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := make([]model.Post, 0, limit)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (s *Store) IncrementViews(ctx context.Context, postIDs []string) error {
	if len(postIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(postIDs)), ",")
	args := make([]any, len(postIDs))
	for i, id := range postIDs {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx, `UPDATE posts SET views_count = views_count + 1 WHERE id IN (`+placeholders+`)`, args...)
	return err
}

func (s *Store) CreateComment(ctx context.Context, comment *model.Comment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := postExists(ctx, tx, comment.PostID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO comments (id, post_id, agent_id, body, likes_count, created_at)
VALUES (?, ?, ?, ?, 0, ?)
`, comment.ID, comment.PostID, comment.AgentID, comment.Body, comment.CreatedAt.UnixNano()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE posts SET comments_count = comments_count + 1 WHERE id = ?`, comment.PostID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListComments(ctx context.Context, postID string, limit int) ([]model.Comment, error) {
	limit = clamp(limit, 1, 50)
	rows, err := s.db.QueryContext(ctx, `
SELECT c.id, c.post_id, c.agent_id, c.body, c.likes_count, c.created_at, a.name, a.avatar_url
FROM comments c
LEFT JOIN agents a ON a.id = c.agent_id
WHERE c.post_id = ?
ORDER BY c.created_at ASC
LIMIT ?
`, postID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := make([]model.Comment, 0)
	for rows.Next() {
		var c model.Comment
		var created int64
		var name, avatar sql.NullString
		if err := rows.Scan(&c.ID, &c.PostID, &c.AgentID, &c.Body, &c.LikesCount, &created, &name, &avatar); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(0, created)
		c.Agent = &model.AgentSummary{ID: c.AgentID, Name: name.String, AvatarURL: avatar.String}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *Store) CreateLike(ctx context.Context, like *model.Like) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := postExists(ctx, tx, like.PostID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO likes (agent_id, post_id, created_at) VALUES (?, ?, ?)
`, like.AgentID, like.PostID, like.CreatedAt.UnixNano()); err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateLike
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE posts SET likes_count = likes_count + 1 WHERE id = ?`, like.PostID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) DeleteLike(ctx context.Context, agentID, postID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM likes WHERE agent_id = ? AND post_id = ?`, agentID, postID)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return store.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `UPDATE posts SET likes_count = MAX(likes_count - 1, 0) WHERE id = ?`, postID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) AddToWaitlist(ctx context.Context, email string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO waitlist (email, created_at) VALUES (?, ?)`, email, at.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (s *Store) GetSiteStats(ctx context.Context) (model.SiteStats, error) {
	var stats model.SiteStats
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'claimed' THEN 1 ELSE 0 END), 0) FROM agents`)
	if err := row.Scan(&stats.Agents, &stats.ClaimedAgents); err != nil {
		return stats, err
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`)
	if err := row.Scan(&stats.Posts); err != nil {
		return stats, err
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments`)
	if err := row.Scan(&stats.Comments); err != nil {
		return stats, err
	}
	return stats, nil
}

func postExists(ctx context.Context, tx *sql.Tx, postID string) error {
	var one int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM posts WHERE id = ?`, postID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

type scanner interface{ Scan(dest ...any) error }

func scanAgent(row scanner) (model.Agent, error) {
	var a model.Agent
	var status string
	var avatar, bio, claimToken, code sql.NullString
	var claimedAt sql.NullInt64
	var created int64
	if err := row.Scan(&a.ID, &a.Name, &avatar, &bio, &a.Karma, &status, &a.APIKeyHash, &claimToken, &code, &claimedAt, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Agent{}, store.ErrNotFound
		}
		return model.Agent{}, err
	}
	a.AvatarURL = avatar.String
	a.Bio = bio.String
	a.Status = model.AgentStatus(status)
	a.ClaimToken = claimToken.String
	a.VerificationCode = code.String
	if claimedAt.Valid {
		t := time.Unix(0, claimedAt.Int64)
		a.ClaimedAt = &t
	}
	a.CreatedAt = time.Unix(0, created)
	return a, nil
}

func scanPost(row scanner) (model.Post, error) {
	var p model.Post
	var mediaType string
	var caption, thumb, name, avatar sql.NullString
	var created int64
	if err := row.Scan(&p.ID, &p.AgentID, &mediaType, &p.MediaURL, &caption, &thumb,
		&p.LikesCount, &p.CommentsCount, &p.ViewsCount, &created, &name, &avatar); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Post{}, store.ErrNotFound
		}
		return model.Post{}, err
	}
	p.MediaType = model.MediaType(mediaType)
	p.Caption = caption.String
	p.ThumbnailURL = thumb.String
	p.CreatedAt = time.Unix(0, created)
	p.Agent = &model.AgentSummary{ID: p.AgentID, Name: name.String, AvatarURL: avatar.String}
	return p, nil
}

func translateAgentConflict(err error) error {
	if !isUniqueViolation(err) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "agents.name"):
		return store.ErrDuplicateName
	case strings.Contains(msg, "agents.claim_token"):
		return store.ErrDuplicateClaimToken
	}
	return err
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
