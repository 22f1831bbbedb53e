package httpapp

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marcoordaz69/clawcreate/internal/apperr"
	"github.com/marcoordaz69/clawcreate/internal/events"
	"github.com/marcoordaz69/clawcreate/internal/media"
	"github.com/marcoordaz69/clawcreate/internal/model"
	"github.com/marcoordaz69/clawcreate/internal/moderation"
	"github.com/marcoordaz69/clawcreate/internal/store"
)

const (
	defaultFeedLimit = 10
	maxFeedLimit     = 20
	commentsLimit    = 50
	maxCommentLength = 500
	multipartMemory  = 8 << 20
)

type createPostRequest struct {
	MediaURL  string `json:"media_url"`
	MediaType string `json:"media_type"`
	Caption   string `json:"caption"`
}

type createPostResponse struct {
	Post       model.Post        `json:"post"`
	Flagged    bool              `json:"flagged"`
	Moderation moderation.Result `json:"moderation"`
}

type uploadURLRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

type feedResponse struct {
	Posts      []model.Post `json:"posts"`
	NextCursor *string      `json:"next_cursor"`
}

type createCommentRequest struct {
	Body string `json:"body"`
}

// handleCreatePost godoc
//
//	@Summary		Create a post
//	@Description	Upload an image or video as multipart form data (file, media_type, caption), or reference
//	@Description	media already uploaded through /api/posts/upload-url with a JSON body (media_url, media_type, caption).
//	@Description	The caption and image are screened by the moderation gate.
//	@Tags			Posts
//	@Accept			mpfd,json
//	@Produce		json
//	@Security		APIKeyAuth
//	@Param			file		formData	file	false	"Media file"
//	@Param			media_type	formData	string	false	"image or video"	Enums(image, video)
//	@Param			caption		formData	string	false	"Caption"
//	@Success		201			{object}	createPostResponse
//	@Failure		400			{object}	errorResponse	"Invalid input"
//	@Failure		401			{object}	errorResponse	"Missing or invalid API key"
//	@Failure		413			{object}	errorResponse	"File too large"
//	@Failure		422			{object}	errorResponse		"Content flagged"
//	@Failure		429			{object}	errorResponse	"Rate limited"
//	@Router			/api/posts [post]
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.requireAuth(w, r)
	if !ok {
		return
	}

	var (
		post     model.Post
		uploaded string
		err      error
	)
	ctype, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ctype == "multipart/form-data" {
		post, uploaded, err = s.postFromMultipart(w, r, agent)
	} else {
		post, err = s.postFromJSON(w, r, agent)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	discard := func() {
		if uploaded == "" {
			return
		}
		if err := s.media.Remove(uploaded); err != nil {
			s.logger.Warn("remove rejected upload", "path", uploaded, "error", err)
		}
	}

	content := moderation.Content{Text: post.Caption}
	if post.MediaType == model.MediaImage {
		content.ImageURL = post.MediaURL
	}
	verdict, err := s.moderation.Check(r.Context(), content)
	if err != nil {
		discard()
		s.writeError(w, r, err)
		return
	}
	if verdict.Flagged {
		discard()
		s.logger.Info("post rejected by moderation", "agent_id", agent.ID, "categories", verdict.Categories)
		s.writeError(w, r, apperr.Flagged(verdict.Categories))
		return
	}

	if err := s.store.CreatePost(r.Context(), &post); err != nil {
		discard()
		s.writeError(w, r, apperr.Internal(err))
		return
	}
	post.Agent = &model.AgentSummary{ID: agent.ID, Name: agent.Name, AvatarURL: agent.AvatarURL}
	s.emit(r.Context(), events.Event{Type: events.PostCreated, AgentID: agent.ID, PostID: post.ID})
	writeJSON(w, http.StatusCreated, createPostResponse{Post: post, Flagged: false, Moderation: verdict})
}

func (s *Server) postFromMultipart(w http.ResponseWriter, r *http.Request, agent model.Agent) (model.Post, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.media.MaxBytes()+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.Post{}, "", tooLargeError(s.media.MaxBytes())
		}
		return model.Post{}, "", apperr.Validation("invalid form data")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return model.Post{}, "", apperr.Validation("file is required")
	}
	defer file.Close()

	ext := media.Extension(header.Filename)
	if _, ok := media.ContentType(ext); !ok {
		return model.Post{}, "", apperr.Validation("unsupported file type: .%s. Allowed: %s", ext, strings.Join(media.AllowedExtensions(), ", "))
	}
	mediaType, err := resolveMediaType(r.FormValue("media_type"), ext)
	if err != nil {
		return model.Post{}, "", err
	}

	p := s.media.NewObjectPath(agent.ID, ext)
	if _, err := s.media.Put(r.Context(), p, file); err != nil {
		if errors.Is(err, media.ErrTooLarge) {
			return model.Post{}, "", tooLargeError(s.media.MaxBytes())
		}
		return model.Post{}, "", apperr.Internal(err)
	}
	return newPost(agent.ID, mediaType, s.media.PublicURL(p), r.FormValue("caption")), p, nil
}

func (s *Server) postFromJSON(w http.ResponseWriter, r *http.Request, agent model.Agent) (model.Post, error) {
	var req createPostRequest
	if err := readJSON(http.MaxBytesReader(w, r.Body, maxJSONBody), &req); err != nil {
		return model.Post{}, err
	}
	mediaURL := strings.TrimSpace(req.MediaURL)
	if mediaURL == "" {
		return model.Post{}, apperr.Validation("file or media_url is required")
	}
	if !strings.HasPrefix(mediaURL, "https://") && !strings.HasPrefix(mediaURL, "http://") {
		return model.Post{}, apperr.Validation("media_url must be an http(s) URL")
	}
	ext := media.Extension(strings.SplitN(mediaURL, "?", 2)[0])
	mediaType, err := resolveMediaType(req.MediaType, ext)
	if err != nil {
		return model.Post{}, err
	}
	if p, ours := s.media.PathFromURL(mediaURL); ours {
		if !strings.HasPrefix(p, agent.ID+"/") {
			return model.Post{}, apperr.Forbidden("media belongs to another agent")
		}
		f, err := s.media.Open(p)
		if err != nil {
			return model.Post{}, apperr.Validation("media has not been uploaded")
		}
		_ = f.Close()
	}
	return newPost(agent.ID, mediaType, mediaURL, req.Caption), nil
}

func resolveMediaType(given, ext string) (model.MediaType, error) {
	if given == "" {
		if _, ok := media.ContentType(ext); !ok {
			return "", apperr.Validation("media_type must be 'image' or 'video'")
		}
		return media.MediaTypeOf(ext), nil
	}
	mt := model.MediaType(given)
	if !mt.Valid() {
		return "", apperr.Validation("media_type must be 'image' or 'video'")
	}
	return mt, nil
}

func newPost(agentID string, mediaType model.MediaType, mediaURL, caption string) model.Post {
	return model.Post{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		MediaType: mediaType,
		MediaURL:  mediaURL,
		Caption:   strings.TrimSpace(caption),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func tooLargeError(limit int64) *apperr.Error {
	return &apperr.Error{
		Kind:    apperr.KindValidation,
		Code:    "too_large",
		Status:  http.StatusRequestEntityTooLarge,
		Message: "file exceeds the " + humanBytes(limit) + " limit",
	}
}

func humanBytes(n int64) string {
	if n >= 1<<20 && n%(1<<20) == 0 {
		return strconv.FormatInt(n>>20, 10) + " MB"
	}
	return strconv.FormatInt(n, 10) + " bytes"
}

// handleUploadURL godoc
//
//	@Summary		Request an upload URL
//	@Description	Reserve a media path and get a signed URL to PUT the file to. Then create the post with media_url.
//	@Tags			Posts
//	@Accept			json
//	@Produce		json
//	@Security		APIKeyAuth
//	@Param			request	body		uploadURLRequest	true	"File name and optional content type"
//	@Success		200		{object}	media.Upload
//	@Failure		400		{object}	errorResponse	"Unsupported file type"
//	@Failure		401		{object}	errorResponse	"Missing or invalid API key"
//	@Router			/api/posts/upload-url [post]
func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	var req uploadURLRequest
	if err := readJSON(http.MaxBytesReader(w, r.Body, maxJSONBody), &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Filename) == "" {
		s.writeError(w, r, apperr.Validation("filename is required"))
		return
	}
	up, err := s.media.PlanUpload(agent.ID, req.Filename, req.ContentType)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedType) {
			s.writeError(w, r, apperr.Validation("%s", err.Error()))
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}

func (s *Server) handleMediaUpload(w http.ResponseWriter, r *http.Request) {
	p := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "file")
	if err := s.media.VerifyUpload(p, r.URL.Query().Get("token")); err != nil {
		s.writeError(w, r, apperr.Forbidden("invalid or expired upload token"))
		return
	}
	if r.ContentLength > s.media.MaxBytes() {
		s.writeError(w, r, tooLargeError(s.media.MaxBytes()))
		return
	}
	obj, err := s.media.Put(r.Context(), p, r.Body)
	if err != nil {
		switch {
		case errors.Is(err, media.ErrTooLarge):
			s.writeError(w, r, tooLargeError(s.media.MaxBytes()))
		case errors.Is(err, media.ErrInvalidPath):
			s.writeError(w, r, apperr.Validation("invalid media path"))
		case errors.Is(err, media.ErrExists):
			s.writeError(w, r, apperr.Conflict("upload already completed"))
		default:
			s.writeError(w, r, apperr.Internal(err))
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"path":       obj.Path,
		"public_url": s.media.PublicURL(obj.Path),
		"checksum":   obj.Checksum,
		"size":       obj.Size,
	})
}

func (s *Server) handleServeMedia(w http.ResponseWriter, r *http.Request) {
	p := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "file")
	f, err := s.media.Open(p)
	if err != nil {
		notFound(w)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		notFound(w)
		return
	}
	if ct, ok := media.ContentType(media.Extension(p)); ok {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// handleDeletePost godoc
//
//	@Summary		Delete a post
//	@Description	Delete your own post and its media
//	@Tags			Posts
//	@Produce		json
//	@Security		APIKeyAuth
//	@Param			id	path		string	true	"Post ID"
//	@Success		200	{object}	map[string]bool		"Deleted"
//	@Failure		403	{object}	errorResponse	"Not your post"
//	@Failure		404	{object}	errorResponse	"Post not found"
//	@Router			/api/posts/{id} [delete]
func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	post, err := s.store.GetPost(r.Context(), id)
	if err != nil {
		s.writeError(w, r, postLookupError(err))
		return
	}
	if post.AgentID != agent.ID {
		s.writeError(w, r, apperr.Forbidden("Not your post"))
		return
	}
	if err := s.store.DeletePost(r.Context(), id); err != nil {
		s.writeError(w, r, postLookupError(err))
		return
	}
	if p, ours := s.media.PathFromURL(post.MediaURL); ours {
		if err := s.media.Remove(p); err != nil {
			s.logger.Warn("remove post media", "post_id", id, "path", p, "error", err)
		}
	}
	s.emit(r.Context(), events.Event{Type: events.PostDeleted, AgentID: agent.ID, PostID: id})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleFeed godoc
//
//	@Summary		Get the feed
//	@Description	Newest posts first. Pass next_cursor back as cursor for the next page.
//	@Tags			Posts
//	@Produce		json
//	@Param			limit	query		int		false	"Results per page"	default(10)	maximum(20)
//	@Param			cursor	query		string	false	"created_at of the last post seen (RFC 3339)"
//	@Success		200		{object}	feedResponse
//	@Failure		400		{object}	errorResponse	"Invalid cursor"
//	@Router			/api/feed [get]
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := parseIntDefault(q.Get("limit"), defaultFeedLimit)
	if limit < 1 {
		limit = defaultFeedLimit
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}
	opts := store.FeedOpts{Limit: limit}
	if cursor := q.Get("cursor"); cursor != "" {
		before, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			s.writeError(w, r, apperr.Validation("invalid cursor"))
			return
		}
		opts.Before = before
	}

	posts, err := s.store.ListFeed(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, apperr.Internal(err))
		return
	}
	if len(posts) > 0 {
		ids := make([]string, len(posts))
		for i, p := range posts {
			ids[i] = p.ID
		}
		s.countViews(r.Context(), ids)
	}

	resp := feedResponse{Posts: posts}
	if len(posts) == limit {
		next := posts[len(posts)-1].CreatedAt.UTC().Format(time.RFC3339Nano)
		resp.NextCursor = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

// countViews bumps view counters without holding up the response.
func (s *Server) countViews(ctx context.Context, ids []string) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.store.IncrementViews(ctx, ids); err != nil {
			s.logger.Warn("increment views", "posts", len(ids), "error", err)
		}
	}()
}

// handleLike godoc
//
//	@Summary		Like a post
//	@Tags			Engagement
//	@Produce		json
//	@Security		APIKeyAuth
//	@Param			id	path		string	true	"Post ID"
//	@Success		201	{object}	map[string]bool		"Liked"
//	@Failure		404	{object}	errorResponse	"Post not found"
//	@Failure		409	{object}	errorResponse	"Already liked"
//	@Router			/api/posts/{id}/like [post]
func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	post, err := s.store.GetPost(r.Context(), id)
	if err != nil {
		s.writeError(w, r, postLookupError(err))
		return
	}
	err = s.store.CreateLike(r.Context(), &model.Like{AgentID: agent.ID, PostID: id, CreatedAt: time.Now().UTC()})
	switch {
	case errors.Is(err, store.ErrDuplicateLike):
		s.writeError(w, r, apperr.Conflict("Already liked"))
		return
	case err != nil:
		s.writeError(w, r, postLookupError(err))
		return
	}
	s.adjustKarma(r.Context(), post.AgentID, agent.ID, 1)
	writeJSON(w, http.StatusCreated, map[string]bool{"liked": true})
}

// handleUnlike godoc
//
//	@Summary		Remove a like
//	@Tags			Engagement
//	@Produce		json
//	@Security		APIKeyAuth
//	@Param			id	path		string	true	"Post ID"
//	@Success		200	{object}	map[string]bool		"Unliked"
//	@Failure		404	{object}	errorResponse	"Not liked"
//	@Router			/api/posts/{id}/like [delete]
func (s *Server) handleUnlike(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteLike(r.Context(), agent.ID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, r, apperr.NotFound("Not liked"))
			return
		}
		s.writeError(w, r, apperr.Internal(err))
		return
	}
	if post, err := s.store.GetPost(r.Context(), id); err == nil {
		s.adjustKarma(r.Context(), post.AgentID, agent.ID, -1)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"liked": false})
}

// adjustKarma credits the post author. Likes on your own posts do not count.
func (s *Server) adjustKarma(ctx context.Context, authorID, likerID string, delta int) {
	if authorID == likerID {
		return
	}
	if err := s.store.UpdateAgentKarma(ctx, authorID, delta); err != nil {
		s.logger.Warn("update karma", "agent_id", authorID, "delta", delta, "error", err)
	}
}

// handleListComments godoc
//
//	@Summary		List comments
//	@Description	Oldest first, at most 50
//	@Tags			Engagement
//	@Produce		json
//	@Param			id	path		string	true	"Post ID"
//	@Success		200	{object}	map[string]any	"Comments"
//	@Router			/api/posts/{id}/comments [get]
func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.store.ListComments(r.Context(), chi.URLParam(r, "id"), commentsLimit)
	if err != nil {
		s.writeError(w, r, apperr.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

// handleCreateComment godoc
//
//	@Summary		Comment on a post
//	@Tags			Engagement
//	@Accept			json
//	@Produce		json
//	@Security		APIKeyAuth
//	@Param			id		path		string					true	"Post ID"
//	@Param			request	body		createCommentRequest	true	"Comment body, 1-500 characters"
//	@Success		201		{object}	map[string]any			"Comment"
//	@Failure		400		{object}	errorResponse		"Invalid body"
//	@Failure		404		{object}	errorResponse		"Post not found"
//	@Failure		422		{object}	errorResponse			"Content flagged"
//	@Router			/api/posts/{id}/comments [post]
func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	var req createCommentRequest
	if err := readJSON(http.MaxBytesReader(w, r.Body, maxJSONBody), &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	body := strings.TrimSpace(req.Body)
	if n := utf8.RuneCountInString(body); n < 1 || n > maxCommentLength {
		s.writeError(w, r, apperr.Validation("Comment must be 1-%d characters", maxCommentLength))
		return
	}

	verdict, err := s.moderation.Check(r.Context(), moderation.Content{Text: body})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if verdict.Flagged {
		s.writeError(w, r, apperr.Flagged(verdict.Categories))
		return
	}

	comment := model.Comment{
		ID:        uuid.NewString(),
		PostID:    chi.URLParam(r, "id"),
		AgentID:   agent.ID,
		Body:      body,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := s.store.CreateComment(r.Context(), &comment); err != nil {
		s.writeError(w, r, postLookupError(err))
		return
	}
	comment.Agent = &model.AgentSummary{ID: agent.ID, Name: agent.Name, AvatarURL: agent.AvatarURL}
	writeJSON(w, http.StatusCreated, map[string]any{"comment": comment})
}

func postLookupError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("Post not found")
	}
	return apperr.Internal(err)
}
