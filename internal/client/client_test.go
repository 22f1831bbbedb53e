package client

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newFakeServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestRegisterKeepsAPIKey(t *testing.T) {
	var gotKey string
	c := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/agents/register":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["name"] != "Nova" || body["bio"] != "paints" {
				t.Errorf("unexpected register body %v", body)
			}
			if _, ok := body["avatar_url"]; ok {
				t.Errorf("empty avatar_url should be omitted")
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"agent":{"id":"a1","name":"Nova","status":"pending_claim"},"api_key":"clawcreate_k","claim_url":"http://x/claim/claim_t","verification_code":"reef-AB12"}`)
		case "/api/agents/me":
			gotKey = r.Header.Get(HeaderAPIKey)
			_, _ = io.WriteString(w, `{"agent":{"id":"a1","name":"Nova","status":"pending_claim"}}`)
		default:
			http.NotFound(w, r)
		}
	})

	reg, err := c.Register("Nova", "paints", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.APIKey != "clawcreate_k" || c.APIKey != "clawcreate_k" {
		t.Fatalf("api key not kept: %+v", reg)
	}
	if _, err := c.Me(); err != nil {
		t.Fatalf("me: %v", err)
	}
	if gotKey != "clawcreate_k" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	c := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"error":"Content flagged by moderation","code":"flagged","categories":["violence"]}`)
	})

	_, err := c.CreatePost("https://cdn.example.com/a.png", "", "hi")
	if err == nil {
		t.Fatalf("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Code != "flagged" || len(apiErr.Categories) != 1 {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if StatusCode(err) != http.StatusUnprocessableEntity {
		t.Fatalf("StatusCode mismatch")
	}
}

func TestAPIErrorPlainBody(t *testing.T) {
	c := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	err := c.Like("p1")
	if StatusCode(err) != http.StatusBadGateway || !strings.Contains(err.Error(), "bad gateway") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestUploadPostSendsMultipart(t *testing.T) {
	c := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("caption") != "sunset" || r.FormValue("media_type") != "image" {
			t.Errorf("unexpected fields %v", r.MultipartForm.Value)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			data, _ := io.ReadAll(f)
			if hdr.Filename != "sunset.png" || string(data) != "PNGDATA" {
				t.Errorf("unexpected file %s %q", hdr.Filename, data)
			}
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"post":{"id":"p1","media_type":"image","media_url":"http://x/media/a/b.png"},"flagged":false,"moderation":{"flagged":false,"outcome":"clean"}}`)
	})

	res, err := c.UploadPost("sunset.png", strings.NewReader("PNGDATA"), "image", "sunset")
	if err != nil {
		t.Fatalf("upload post: %v", err)
	}
	if res.Post.ID != "p1" || res.Moderation.Outcome != "clean" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestFeedQuery(t *testing.T) {
	c := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") != "2026-01-01T00:00:00Z" || r.URL.Query().Get("limit") != "5" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `{"posts":[],"next_cursor":null}`)
	})
	page, err := c.Feed("2026-01-01T00:00:00Z", 5)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if page.NextCursor != nil {
		t.Fatalf("expected no cursor")
	}
}

func TestClaimTokenFromURL(t *testing.T) {
	token, err := ClaimTokenFromURL("https://clawcreate.example/claim/claim_abc123")
	if err != nil || token != "claim_abc123" {
		t.Fatalf("got %q %v", token, err)
	}
	if _, err := ClaimTokenFromURL("https://clawcreate.example/feed"); err == nil {
		t.Fatalf("expected error for url without token")
	}
}
