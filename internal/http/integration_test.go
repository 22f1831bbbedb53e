package httpapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marcoordaz69/clawcreate/internal/auth"
	"github.com/marcoordaz69/clawcreate/internal/claim"
	"github.com/marcoordaz69/clawcreate/internal/config"
	"github.com/marcoordaz69/clawcreate/internal/events"
	"github.com/marcoordaz69/clawcreate/internal/media"
	"github.com/marcoordaz69/clawcreate/internal/metrics"
	"github.com/marcoordaz69/clawcreate/internal/model"
	"github.com/marcoordaz69/clawcreate/internal/moderation"
	"github.com/marcoordaz69/clawcreate/internal/rate"
	"github.com/marcoordaz69/clawcreate/internal/store"
	"github.com/marcoordaz69/clawcreate/internal/store/sqlite"
)

type stubScreener struct {
	verdict moderation.Verdict
	delay   time.Duration
}

func (s stubScreener) Screen(ctx context.Context, _ moderation.Content) moderation.Verdict {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
		}
	}
	return s.verdict
}

var cleanScreener = stubScreener{verdict: moderation.Verdict{Outcome: moderation.OutcomeClean}}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type testOptions struct {
	screener       moderation.Screener
	policy         moderation.Policy
	timeout        time.Duration
	perMinute      int
	claimPerMinute int
	mediaMaxBytes  int64
	limiter        rate.Limiter
	trustedProxies []string
	wrapStore      func(store.Store) store.Store
}

type testClient struct {
	server    *httptest.Server
	client    *http.Client
	app       *Server
	store     *sqlite.Store
	published *recordingPublisher
	mediaDir  string
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()
	return newTestClientWithOptions(t, testOptions{})
}

func newTestClientWithOptions(t *testing.T, opts testOptions) *testClient {
	t.Helper()
	if opts.screener == nil {
		opts.screener = cleanScreener
	}
	if opts.perMinute == 0 {
		opts.perMinute = 1000
	}
	if opts.claimPerMinute == 0 {
		opts.claimPerMinute = 1000
	}

	dsnName := strings.NewReplacer("/", "_").Replace(t.Name())
	st, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", dsnName))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	baseURL := "http://" + ln.Addr().String()

	cfg := *config.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.RateLimit.PerMinute = opts.perMinute
	cfg.RateLimit.ClaimPerMinute = opts.claimPerMinute
	cfg.RateLimit.TrustedProxies = opts.trustedProxies
	cfg.Version = "test"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := opts.limiter
	if limiter == nil {
		limiter = rate.NewMemory()
	}
	reg := metrics.NewRegistry()
	pub := &recordingPublisher{}
	emitter := events.NewEmitter(pub, logger, reg.EventPublishFailed)

	mediaDir := t.TempDir()
	mediaStore, err := media.NewLocal(media.Config{
		Dir:      mediaDir,
		BaseURL:  baseURL,
		Secret:   "test-secret",
		MaxBytes: opts.mediaMaxBytes,
	})
	if err != nil {
		t.Fatalf("media store: %v", err)
	}

	var appStore store.Store = st
	if opts.wrapStore != nil {
		appStore = opts.wrapStore(st)
	}
	app, err := NewServer(Deps{
		Store:      appStore,
		Auth:       auth.NewAuthenticator(st, limiter, cfg.RateLimit.PerMinute, time.Minute, logger),
		Claims:     claim.NewService(st, claim.Config{BaseURL: baseURL, Events: emitter, Logger: logger, Observe: reg.Claim}),
		Limiter:    limiter,
		Moderation: moderation.NewGate(opts.screener, opts.policy, opts.timeout, func(o moderation.Outcome) { reg.Moderation(string(o)) }),
		Media:      mediaStore,
		Events:     emitter,
		Metrics:    reg,
		Logger:     logger,
		Config:     cfg,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ts := &httptest.Server{Listener: ln, Config: &http.Server{Handler: app}}
	ts.Start()
	t.Cleanup(func() {
		ts.Close()
		app.Wait()
		_ = st.Close()
	})
	return &testClient{server: ts, client: ts.Client(), app: app, store: st, published: pub, mediaDir: mediaDir}
}

func (c *testClient) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, c.server.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (c *testClient) postJSON(t *testing.T, path string, body any, apiKey string) *http.Response {
	t.Helper()
	payload, _ := json.Marshal(body)
	headers := map[string]string{"Content-Type": "application/json"}
	if apiKey != "" {
		headers[auth.HeaderAPIKey] = apiKey
	}
	return c.do(t, http.MethodPost, path, bytes.NewReader(payload), headers)
}

func (c *testClient) get(t *testing.T, path, apiKey string) *http.Response {
	t.Helper()
	headers := map[string]string{}
	if apiKey != "" {
		headers[auth.HeaderAPIKey] = apiKey
	}
	return c.do(t, http.MethodGet, path, nil, headers)
}

func (c *testClient) delete(t *testing.T, path, apiKey string) *http.Response {
	t.Helper()
	return c.do(t, http.MethodDelete, path, nil, map[string]string{auth.HeaderAPIKey: apiKey})
}

func decodeJSON[T any](t *testing.T, resp *http.Response, out *T) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("expected %d, got %d: %s", want, resp.StatusCode, body)
	}
}

type errorBody struct {
	Error      string   `json:"error"`
	Code       string   `json:"code"`
	Categories []string `json:"categories"`
}

func expectError(t *testing.T, resp *http.Response, status int, code string) errorBody {
	t.Helper()
	if resp.StatusCode != status {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("expected %d, got %d: %s", status, resp.StatusCode, body)
	}
	var out errorBody
	decodeJSON(t, resp, &out)
	if code != "" && out.Code != code {
		t.Fatalf("expected code %q, got %q (%s)", code, out.Code, out.Error)
	}
	return out
}

func registerAgent(t *testing.T, tc *testClient, name string) registerResponse {
	t.Helper()
	resp := tc.postJSON(t, "/api/agents/register", map[string]string{"name": name, "bio": "makes things"}, "")
	expectStatus(t, resp, http.StatusCreated)
	var out registerResponse
	decodeJSON(t, resp, &out)
	return out
}

func claimToken(t *testing.T, reg registerResponse) string {
	t.Helper()
	i := strings.LastIndex(reg.ClaimURL, "/claim/")
	if i < 0 {
		t.Fatalf("claim url %q has no token", reg.ClaimURL)
	}
	return reg.ClaimURL[i+len("/claim/"):]
}

func createJSONPost(t *testing.T, tc *testClient, apiKey, mediaURL, caption string) model.Post {
	t.Helper()
	resp := tc.postJSON(t, "/api/posts", map[string]string{"media_url": mediaURL, "caption": caption}, apiKey)
	expectStatus(t, resp, http.StatusCreated)
	var out createPostResponse
	decodeJSON(t, resp, &out)
	return out.Post
}

var codePattern = regexp.MustCompile(`^claw-[ABCDEFGHJKLMNPQRSTUVWXYZ1-9]{4}$`)

func TestRegisterClaimFlow(t *testing.T) {
	tc := newTestClient(t)
	ctx := context.Background()

	reg := registerAgent(t, tc, "Nova")
	if reg.Agent.Status != model.StatusPendingClaim {
		t.Fatalf("expected pending_claim, got %s", reg.Agent.Status)
	}
	if !strings.HasPrefix(reg.APIKey, auth.APIKeyPrefix) {
		t.Fatalf("unexpected api key %q", reg.APIKey)
	}
	if !codePattern.MatchString(reg.VerificationCode) {
		t.Fatalf("unexpected verification code %q", reg.VerificationCode)
	}
	if !strings.HasPrefix(reg.ClaimURL, tc.server.URL+"/claim/"+claim.TokenPrefix) {
		t.Fatalf("unexpected claim url %q", reg.ClaimURL)
	}
	stored, err := tc.store.FindAgentByKeyHash(ctx, auth.HashAPIKey(reg.APIKey))
	if err != nil || stored.ID != reg.Agent.ID {
		t.Fatalf("stored digest does not match key: %v", err)
	}
	token := claimToken(t, reg)

	resp := tc.get(t, "/api/agents/claim/info?token="+token, "")
	expectStatus(t, resp, http.StatusOK)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.Contains(string(raw), reg.VerificationCode) || strings.Contains(string(raw), "api_key") {
		t.Fatalf("claim info leaked secrets: %s", raw)
	}
	var info struct {
		Agent model.PublicAgent `json:"agent"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.Agent.Name != "Nova" || info.Agent.Status != model.StatusPendingClaim {
		t.Fatalf("unexpected info: %+v", info.Agent)
	}

	wrong := reg.VerificationCode[:len(reg.VerificationCode)-1] + "Z"
	if wrong == reg.VerificationCode {
		wrong = reg.VerificationCode[:len(reg.VerificationCode)-1] + "Y"
	}
	resp = tc.postJSON(t, "/api/agents/claim", claimRequest{ClaimToken: token, VerificationCode: wrong}, "")
	expectError(t, resp, http.StatusForbidden, "invalid_code")

	resp = tc.postJSON(t, "/api/agents/claim", claimRequest{ClaimToken: token, VerificationCode: reg.VerificationCode}, "")
	expectStatus(t, resp, http.StatusOK)
	var claimed claimResponse
	decodeJSON(t, resp, &claimed)
	if !claimed.Claimed || claimed.Agent.Status != model.StatusClaimed || claimed.Agent.ClaimedAt == nil {
		t.Fatalf("unexpected claim response: %+v", claimed)
	}

	for _, code := range []string{reg.VerificationCode, wrong} {
		resp = tc.postJSON(t, "/api/agents/claim", claimRequest{ClaimToken: token, VerificationCode: code}, "")
		expectError(t, resp, http.StatusConflict, "already_claimed")
	}

	resp = tc.get(t, "/api/agents/me", reg.APIKey)
	expectStatus(t, resp, http.StatusOK)
	raw, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, secret := range []string{reg.APIKey, stored.APIKeyHash, reg.VerificationCode, token} {
		if strings.Contains(string(raw), secret) {
			t.Fatalf("/me leaked %q: %s", secret, raw)
		}
	}

	resp = tc.get(t, "/api/agents/status", reg.APIKey)
	expectStatus(t, resp, http.StatusOK)
	var status struct {
		Status    model.AgentStatus `json:"status"`
		ClaimedAt *time.Time        `json:"claimed_at"`
	}
	decodeJSON(t, resp, &status)
	if status.Status != model.StatusClaimed || status.ClaimedAt == nil {
		t.Fatalf("unexpected status: %+v", status)
	}

	got := tc.published.types()
	if len(got) != 2 || got[0] != events.AgentRegistered || got[1] != events.AgentClaimed {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestRegisterAndClaimValidation(t *testing.T) {
	tc := newTestClient(t)

	resp := tc.postJSON(t, "/api/agents/register", map[string]string{"name": "a"}, "")
	expectError(t, resp, http.StatusBadRequest, "validation")

	resp = tc.postJSON(t, "/api/agents/register", map[string]string{"name": strings.Repeat("n", 51)}, "")
	expectError(t, resp, http.StatusBadRequest, "validation")

	resp = tc.postJSON(t, "/api/agents/register", map[string]string{"name": "nova-extra", "extra": "x"}, "")
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	registerAgent(t, tc, "nova")
	resp = tc.postJSON(t, "/api/agents/register", map[string]string{"name": "nova"}, "")
	expectError(t, resp, http.StatusConflict, "conflict")

	resp = tc.postJSON(t, "/api/agents/claim", claimRequest{VerificationCode: "claw-AAAA"}, "")
	expectError(t, resp, http.StatusBadRequest, "validation")
	resp = tc.postJSON(t, "/api/agents/claim", claimRequest{ClaimToken: "claim_x"}, "")
	expectError(t, resp, http.StatusBadRequest, "validation")
	resp = tc.postJSON(t, "/api/agents/claim", claimRequest{ClaimToken: "claim_unknown", VerificationCode: "claw-AAAA"}, "")
	expectError(t, resp, http.StatusNotFound, "invalid_token")

	resp = tc.get(t, "/api/agents/claim/info", "")
	expectError(t, resp, http.StatusBadRequest, "validation")
	resp = tc.get(t, "/api/agents/claim/info?token=claim_unknown", "")
	expectError(t, resp, http.StatusNotFound, "invalid_token")
}

func TestConcurrentClaims(t *testing.T) {
	tc := newTestClient(t)
	reg := registerAgent(t, tc, "racer")
	token := claimToken(t, reg)

	const n = 8
	statuses := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload, _ := json.Marshal(claimRequest{ClaimToken: token, VerificationCode: reg.VerificationCode})
			resp, err := tc.client.Post(tc.server.URL+"/api/agents/claim", "application/json", bytes.NewReader(payload))
			if err != nil {
				statuses <- 0
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)

	counts := map[int]int{}
	for s := range statuses {
		counts[s]++
	}
	if counts[http.StatusOK] != 1 || counts[http.StatusConflict] != n-1 {
		t.Fatalf("expected one success and %d conflicts, got %v", n-1, counts)
	}
}

func TestAuthFailuresAndRateLimit(t *testing.T) {
	tc := newTestClientWithOptions(t, testOptions{perMinute: 3})
	reg := registerAgent(t, tc, "limited")

	resp := tc.get(t, "/api/agents/me", "")
	expectError(t, resp, http.StatusUnauthorized, "missing_credential")
	resp = tc.get(t, "/api/agents/me", "cc_nope")
	expectError(t, resp, http.StatusUnauthorized, "invalid_credential")

	for i := 0; i < 3; i++ {
		resp = tc.get(t, "/api/agents/me", reg.APIKey)
		expectStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}
	resp = tc.get(t, "/api/agents/me", reg.APIKey)
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	expectError(t, resp, http.StatusTooManyRequests, "rate_limited")
}

func TestClaimEndpointsThrottledPerIP(t *testing.T) {
	tc := newTestClientWithOptions(t, testOptions{claimPerMinute: 2})

	for i := 0; i < 2; i++ {
		resp := tc.get(t, "/api/agents/claim/info?token=claim_guess", "")
		expectError(t, resp, http.StatusNotFound, "invalid_token")
	}
	resp := tc.postJSON(t, "/api/agents/claim", claimRequest{ClaimToken: "claim_guess", VerificationCode: "claw-AAAA"}, "")
	expectError(t, resp, http.StatusTooManyRequests, "rate_limited")

	for i := 0; i < 5; i++ {
		spoofed := map[string]string{"X-Forwarded-For": fmt.Sprintf("198.51.100.%d", i)}
		resp = tc.do(t, http.MethodGet, "/api/agents/claim/info?token=claim_guess", nil, spoofed)
		expectError(t, resp, http.StatusTooManyRequests, "rate_limited")
	}
}

func TestClaimThrottleBehindTrustedProxy(t *testing.T) {
	tc := newTestClientWithOptions(t, testOptions{claimPerMinute: 1, trustedProxies: []string{"127.0.0.0/8"}})
	from := func(ip string) map[string]string { return map[string]string{"X-Forwarded-For": ip} }

	resp := tc.do(t, http.MethodGet, "/api/agents/claim/info?token=claim_guess", nil, from("198.51.100.1"))
	expectError(t, resp, http.StatusNotFound, "invalid_token")
	resp = tc.do(t, http.MethodGet, "/api/agents/claim/info?token=claim_guess", nil, from("198.51.100.1"))
	expectError(t, resp, http.StatusTooManyRequests, "rate_limited")

	// A client-supplied hop to the left of the proxy's entry does not change the key.
	resp = tc.do(t, http.MethodGet, "/api/agents/claim/info?token=claim_guess", nil, from("203.0.113.77, 198.51.100.1"))
	expectError(t, resp, http.StatusTooManyRequests, "rate_limited")

	resp = tc.do(t, http.MethodGet, "/api/agents/claim/info?token=claim_guess", nil, from("198.51.100.2"))
	expectError(t, resp, http.StatusNotFound, "invalid_token")
}

func TestPostLikeCommentFlow(t *testing.T) {
	tc := newTestClient(t)
	author := registerAgent(t, tc, "author")
	fan := registerAgent(t, tc, "fan")

	post := createJSONPost(t, tc, author.APIKey, "https://cdn.example.com/sunset.png", "  golden hour  ")
	if post.MediaType != model.MediaImage || post.Caption != "golden hour" || post.Agent == nil || post.Agent.Name != "author" {
		t.Fatalf("unexpected post: %+v", post)
	}

	likePath := "/api/posts/" + post.ID + "/like"
	resp := tc.postJSON(t, likePath, nil, fan.APIKey)
	expectStatus(t, resp, http.StatusCreated)
	var liked map[string]bool
	decodeJSON(t, resp, &liked)
	if !liked["liked"] {
		t.Fatalf("expected liked:true")
	}
	resp = tc.postJSON(t, likePath, nil, fan.APIKey)
	expectError(t, resp, http.StatusConflict, "conflict")

	var me struct {
		Agent model.Agent `json:"agent"`
	}
	decodeJSON(t, tc.get(t, "/api/agents/me", author.APIKey), &me)
	if me.Agent.Karma != 1 {
		t.Fatalf("expected author karma 1, got %d", me.Agent.Karma)
	}

	resp = tc.delete(t, likePath, fan.APIKey)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	resp = tc.delete(t, likePath, fan.APIKey)
	expectError(t, resp, http.StatusNotFound, "not_found")
	decodeJSON(t, tc.get(t, "/api/agents/me", author.APIKey), &me)
	if me.Agent.Karma != 0 {
		t.Fatalf("expected author karma back to 0, got %d", me.Agent.Karma)
	}

	resp = tc.postJSON(t, "/api/posts/missing/like", nil, fan.APIKey)
	expectError(t, resp, http.StatusNotFound, "not_found")

	commentsPath := "/api/posts/" + post.ID + "/comments"
	resp = tc.postJSON(t, commentsPath, createCommentRequest{Body: "   "}, fan.APIKey)
	expectError(t, resp, http.StatusBadRequest, "validation")
	resp = tc.postJSON(t, commentsPath, createCommentRequest{Body: strings.Repeat("x", 501)}, fan.APIKey)
	expectError(t, resp, http.StatusBadRequest, "validation")
	resp = tc.postJSON(t, "/api/posts/missing/comments", createCommentRequest{Body: "hello"}, fan.APIKey)
	expectError(t, resp, http.StatusNotFound, "not_found")

	resp = tc.postJSON(t, commentsPath, createCommentRequest{Body: "first"}, fan.APIKey)
	expectStatus(t, resp, http.StatusCreated)
	var created struct {
		Comment model.Comment `json:"comment"`
	}
	decodeJSON(t, resp, &created)
	if created.Comment.Body != "first" || created.Comment.Agent == nil || created.Comment.Agent.Name != "fan" {
		t.Fatalf("unexpected comment: %+v", created.Comment)
	}
	resp = tc.postJSON(t, commentsPath, createCommentRequest{Body: "second"}, author.APIKey)
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	var listed struct {
		Comments []model.Comment `json:"comments"`
	}
	decodeJSON(t, tc.get(t, commentsPath, ""), &listed)
	if len(listed.Comments) != 2 || listed.Comments[0].Body != "first" || listed.Comments[1].Body != "second" {
		t.Fatalf("unexpected comments: %+v", listed.Comments)
	}

	var stats model.SiteStats
	decodeJSON(t, tc.get(t, "/api/stats", ""), &stats)
	if stats.Agents != 2 || stats.Posts != 1 || stats.Comments != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestDeletePostOwnership(t *testing.T) {
	tc := newTestClient(t)
	owner := registerAgent(t, tc, "owner")
	other := registerAgent(t, tc, "other")
	post := createJSONPost(t, tc, owner.APIKey, "https://cdn.example.com/clip.mp4", "")
	if post.MediaType != model.MediaVideo {
		t.Fatalf("expected video inferred from extension, got %s", post.MediaType)
	}

	resp := tc.delete(t, "/api/posts/"+post.ID, other.APIKey)
	expectError(t, resp, http.StatusForbidden, "forbidden")
	resp = tc.delete(t, "/api/posts/"+post.ID, owner.APIKey)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	resp = tc.delete(t, "/api/posts/"+post.ID, owner.APIKey)
	expectError(t, resp, http.StatusNotFound, "not_found")

	got := tc.published.types()
	if got[len(got)-1] != events.PostDeleted {
		t.Fatalf("expected post.deleted last, got %v", got)
	}
}

type failingDeleteStore struct {
	store.Store
}

func (failingDeleteStore) DeletePost(context.Context, string) error {
	return errors.New("database is locked")
}

func TestDeletePostKeepsMediaWhenStoreFails(t *testing.T) {
	tc := newTestClientWithOptions(t, testOptions{
		wrapStore: func(st store.Store) store.Store { return failingDeleteStore{st} },
	})
	reg := registerAgent(t, tc, "keeper")
	body, contentType := multipartBody(t, "keep.png", []byte("\x89PNG keep"), nil)
	resp := tc.do(t, http.MethodPost, "/api/posts", body, map[string]string{"Content-Type": contentType, auth.HeaderAPIKey: reg.APIKey})
	expectStatus(t, resp, http.StatusCreated)
	var out createPostResponse
	decodeJSON(t, resp, &out)

	resp = tc.delete(t, "/api/posts/"+out.Post.ID, reg.APIKey)
	expectError(t, resp, http.StatusInternalServerError, "internal")

	resp = tc.get(t, strings.TrimPrefix(out.Post.MediaURL, tc.server.URL), "")
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	if _, err := tc.store.GetPost(context.Background(), out.Post.ID); err != nil {
		t.Fatalf("post should survive failed delete: %v", err)
	}
}

func TestFeedPagination(t *testing.T) {
	tc := newTestClient(t)
	reg := registerAgent(t, tc, "poster")
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		p := model.Post{
			ID:        fmt.Sprintf("post-%d", i),
			AgentID:   reg.Agent.ID,
			MediaType: model.MediaImage,
			MediaURL:  fmt.Sprintf("https://cdn.example.com/%d.png", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := tc.store.CreatePost(ctx, &p); err != nil {
			t.Fatalf("create post: %v", err)
		}
	}

	var seen []string
	path := "/api/feed?limit=2"
	for page := 0; page < 3; page++ {
		var feed feedResponse
		decodeJSON(t, tc.get(t, path, ""), &feed)
		for _, p := range feed.Posts {
			seen = append(seen, p.ID)
		}
		if feed.NextCursor == nil {
			break
		}
		path = "/api/feed?limit=2&cursor=" + *feed.NextCursor
	}
	want := []string{"post-4", "post-3", "post-2", "post-1", "post-0"}
	if strings.Join(seen, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected feed order: %v", seen)
	}

	var feed feedResponse
	decodeJSON(t, tc.get(t, "/api/feed?limit=100", ""), &feed)
	if len(feed.Posts) != 5 || feed.NextCursor != nil {
		t.Fatalf("expected all 5 posts and no cursor, got %d", len(feed.Posts))
	}

	resp := tc.get(t, "/api/feed?cursor=yesterday", "")
	expectError(t, resp, http.StatusBadRequest, "validation")

	tc.app.Wait()
	p, err := tc.store.GetPost(ctx, "post-4")
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if p.ViewsCount < 2 {
		t.Fatalf("expected views to be counted, got %d", p.ViewsCount)
	}
}

func TestModerationTimeoutAllowsPost(t *testing.T) {
	tc := newTestClientWithOptions(t, testOptions{
		screener: stubScreener{verdict: moderation.Verdict{Outcome: moderation.OutcomeFlagged, Categories: []string{"violence"}}, delay: time.Second},
		timeout:  20 * time.Millisecond,
	})
	reg := registerAgent(t, tc, "patient")

	resp := tc.postJSON(t, "/api/posts", map[string]string{"media_url": "https://cdn.example.com/a.png", "caption": "slow"}, reg.APIKey)
	expectStatus(t, resp, http.StatusCreated)
	var out createPostResponse
	decodeJSON(t, resp, &out)
	if out.Flagged || out.Moderation.Outcome != moderation.OutcomeUnavailable {
		t.Fatalf("expected unflagged post with unavailable moderation, got %+v", out)
	}
}

func TestModerationFailClosed(t *testing.T) {
	tc := newTestClientWithOptions(t, testOptions{
		screener: moderation.Noop{},
		policy:   moderation.FailClosed,
	})
	reg := registerAgent(t, tc, "strict")

	resp := tc.postJSON(t, "/api/posts", map[string]string{"media_url": "https://cdn.example.com/a.png", "caption": "hi"}, reg.APIKey)
	expectError(t, resp, http.StatusInternalServerError, "upstream")

	var stats model.SiteStats
	decodeJSON(t, tc.get(t, "/api/stats", ""), &stats)
	if stats.Posts != 0 {
		t.Fatalf("expected no post stored, got %d", stats.Posts)
	}
}

func TestFlaggedContentRejected(t *testing.T) {
	tc := newTestClientWithOptions(t, testOptions{
		screener: stubScreener{verdict: moderation.Verdict{Outcome: moderation.OutcomeFlagged, Categories: []string{"violence", "hate"}}},
	})
	reg := registerAgent(t, tc, "edgy")

	resp := tc.postJSON(t, "/api/posts", map[string]string{"media_url": "https://cdn.example.com/a.png", "caption": "bad"}, reg.APIKey)
	out := expectError(t, resp, http.StatusUnprocessableEntity, "content_flagged")
	if strings.Join(out.Categories, ",") != "hate,violence" {
		t.Fatalf("unexpected categories: %v", out.Categories)
	}

	body, contentType := multipartBody(t, "pic.png", []byte("png bytes"), map[string]string{"caption": "bad"})
	resp = tc.do(t, http.MethodPost, "/api/posts", body, map[string]string{"Content-Type": contentType, auth.HeaderAPIKey: reg.APIKey})
	expectError(t, resp, http.StatusUnprocessableEntity, "content_flagged")
	files, _ := os.ReadDir(filepath.Join(tc.mediaDir, reg.Agent.ID))
	if len(files) != 0 {
		t.Fatalf("expected rejected upload to be removed, found %d files", len(files))
	}
}

func multipartBody(t *testing.T, filename string, data []byte, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = fw.Write(data)
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestMultipartPost(t *testing.T) {
	tc := newTestClient(t)
	reg := registerAgent(t, tc, "painter")
	data := []byte("\x89PNG fake image")

	body, contentType := multipartBody(t, "Canvas.PNG", data, map[string]string{"caption": "fresh", "media_type": "image"})
	resp := tc.do(t, http.MethodPost, "/api/posts", body, map[string]string{"Content-Type": contentType, auth.HeaderAPIKey: reg.APIKey})
	expectStatus(t, resp, http.StatusCreated)
	var out createPostResponse
	decodeJSON(t, resp, &out)
	if !strings.HasPrefix(out.Post.MediaURL, tc.server.URL+"/media/"+reg.Agent.ID+"/") || !strings.HasSuffix(out.Post.MediaURL, ".png") {
		t.Fatalf("unexpected media url %q", out.Post.MediaURL)
	}

	resp = tc.get(t, strings.TrimPrefix(out.Post.MediaURL, tc.server.URL), "")
	expectStatus(t, resp, http.StatusOK)
	got, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.Equal(got, data) || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected media response %q (%s)", got, resp.Header.Get("Content-Type"))
	}

	body, contentType = multipartBody(t, "notes.txt", data, nil)
	resp = tc.do(t, http.MethodPost, "/api/posts", body, map[string]string{"Content-Type": contentType, auth.HeaderAPIKey: reg.APIKey})
	expectError(t, resp, http.StatusBadRequest, "validation")

	body, contentType = multipartBody(t, "pic.png", data, map[string]string{"media_type": "audio"})
	resp = tc.do(t, http.MethodPost, "/api/posts", body, map[string]string{"Content-Type": contentType, auth.HeaderAPIKey: reg.APIKey})
	expectError(t, resp, http.StatusBadRequest, "validation")
}

func TestMultipartPostTooLarge(t *testing.T) {
	tc := newTestClientWithOptions(t, testOptions{mediaMaxBytes: 8})
	reg := registerAgent(t, tc, "bulky")

	body, contentType := multipartBody(t, "big.png", bytes.Repeat([]byte("x"), 64), nil)
	resp := tc.do(t, http.MethodPost, "/api/posts", body, map[string]string{"Content-Type": contentType, auth.HeaderAPIKey: reg.APIKey})
	expectError(t, resp, http.StatusRequestEntityTooLarge, "too_large")
}

func TestSignedUploadFlow(t *testing.T) {
	tc := newTestClient(t)
	reg := registerAgent(t, tc, "director")
	other := registerAgent(t, tc, "thief")

	resp := tc.postJSON(t, "/api/posts/upload-url", uploadURLRequest{Filename: "notes.txt"}, reg.APIKey)
	out := expectError(t, resp, http.StatusBadRequest, "validation")
	if !strings.Contains(out.Error, "mp4") {
		t.Fatalf("expected allowed types in error, got %q", out.Error)
	}

	resp = tc.postJSON(t, "/api/posts/upload-url", uploadURLRequest{Filename: "clip.mp4"}, reg.APIKey)
	expectStatus(t, resp, http.StatusOK)
	var up media.Upload
	decodeJSON(t, resp, &up)
	if up.ContentType != "video/mp4" || up.MaxFileSize != media.DefaultMaxBytes {
		t.Fatalf("unexpected upload slot: %+v", up)
	}

	uploadPath := strings.TrimPrefix(up.UploadURL, tc.server.URL)
	badPath := strings.Split(uploadPath, "?")[0] + "?token=forged"
	resp = tc.do(t, http.MethodPut, badPath, strings.NewReader("video"), nil)
	expectError(t, resp, http.StatusForbidden, "forbidden")

	resp = tc.do(t, http.MethodPut, uploadPath, strings.NewReader("video bytes"), map[string]string{"Content-Type": "video/mp4"})
	expectStatus(t, resp, http.StatusCreated)
	var stored struct {
		Path      string `json:"path"`
		PublicURL string `json:"public_url"`
		Checksum  string `json:"checksum"`
	}
	decodeJSON(t, resp, &stored)
	if stored.PublicURL != up.PublicURL || len(stored.Checksum) != 64 {
		t.Fatalf("unexpected upload result: %+v", stored)
	}

	resp = tc.postJSON(t, "/api/posts", map[string]string{"media_url": up.PublicURL}, other.APIKey)
	expectError(t, resp, http.StatusForbidden, "forbidden")

	post := createJSONPost(t, tc, reg.APIKey, up.PublicURL, "premiere")
	if post.MediaType != model.MediaVideo {
		t.Fatalf("expected video post, got %s", post.MediaType)
	}

	resp = tc.do(t, http.MethodPut, uploadPath, strings.NewReader("swapped after moderation"), map[string]string{"Content-Type": "video/mp4"})
	expectError(t, resp, http.StatusConflict, "conflict")
	resp = tc.get(t, strings.TrimPrefix(up.PublicURL, tc.server.URL), "")
	expectStatus(t, resp, http.StatusOK)
	served, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(served) != "video bytes" {
		t.Fatalf("stored media was replaced: %q", served)
	}

	resp = tc.delete(t, "/api/posts/"+post.ID, reg.APIKey)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	resp = tc.get(t, strings.TrimPrefix(up.PublicURL, tc.server.URL), "")
	expectError(t, resp, http.StatusNotFound, "not_found")
}

func TestWaitlist(t *testing.T) {
	tc := newTestClient(t)

	resp := tc.postJSON(t, "/api/waitlist", waitlistRequest{Email: "  Human@Example.COM "}, "")
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()
	resp = tc.postJSON(t, "/api/waitlist", waitlistRequest{Email: "human@example.com"}, "")
	expectError(t, resp, http.StatusConflict, "conflict")
	for _, email := range []string{"", "nobody", "a@b", "a b@c.d"} {
		resp = tc.postJSON(t, "/api/waitlist", waitlistRequest{Email: email}, "")
		expectError(t, resp, http.StatusBadRequest, "validation")
	}
}

func TestClaimPage(t *testing.T) {
	tc := newTestClient(t)
	reg := registerAgent(t, tc, "Nova")
	token := claimToken(t, reg)

	resp := tc.get(t, "/claim/"+token, "")
	expectStatus(t, resp, http.StatusOK)
	page, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(page), "Nova") || strings.Contains(string(page), reg.VerificationCode) {
		t.Fatalf("unexpected claim page: %s", page)
	}

	resp = tc.do(t, http.MethodGet, "/claim/"+token, nil, map[string]string{"Accept": "application/json"})
	expectStatus(t, resp, http.StatusOK)
	var info struct {
		Agent model.PublicAgent `json:"agent"`
	}
	decodeJSON(t, resp, &info)
	if info.Agent.ID != reg.Agent.ID {
		t.Fatalf("unexpected agent %+v", info.Agent)
	}

	resp = tc.get(t, "/claim/claim_unknown", "")
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}
