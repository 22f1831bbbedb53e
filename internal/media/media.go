// Package media stores uploaded post media on local disk and hands out
// short-lived signed upload URLs.
package media

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/marcoordaz69/clawcreate/internal/model"
)

const DefaultMaxBytes = 100 << 20

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
	ErrInvalidPath     = errors.New("invalid media path")
	ErrInvalidToken    = errors.New("invalid or expired upload token")
	ErrExists          = errors.New("object already exists")
)

var contentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mov":  "video/quicktime",
}

// AllowedExtensions lists the accepted extensions in a stable order.
func AllowedExtensions() []string {
	exts := make([]string, 0, len(contentTypes))
	for ext := range contentTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extension returns the lower-cased extension of filename, without the dot.
func Extension(filename string) string {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return strings.ToLower(filename)
	}
	return strings.ToLower(filename[i+1:])
}

func ContentType(ext string) (string, bool) {
	ct, ok := contentTypes[ext]
	return ct, ok
}

func MediaTypeOf(ext string) model.MediaType {
	if strings.HasPrefix(contentTypes[ext], "video/") {
		return model.MediaVideo
	}
	return model.MediaImage
}

type Config struct {
	Dir       string
	BaseURL   string
	Secret    string
	MaxBytes  int64
	UploadTTL time.Duration
}

type Store struct {
	dir      string
	baseURL  string
	secret   []byte
	maxBytes int64
	ttl      time.Duration
	now      func() time.Time

	mu        sync.Mutex
	lastStamp int64
}

func NewLocal(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("media dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.UploadTTL <= 0 {
		cfg.UploadTTL = 15 * time.Minute
	}
	return &Store{
		dir:      cfg.Dir,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		secret:   []byte(cfg.Secret),
		maxBytes: cfg.MaxBytes,
		ttl:      cfg.UploadTTL,
		now:      time.Now,
	}, nil
}

func (s *Store) MaxBytes() int64 { return s.maxBytes }

// NewObjectPath names a fresh object for agentID. Stamps are strictly
// increasing per store.
func (s *Store) NewObjectPath(agentID, ext string) string {
	s.mu.Lock()
	stamp := s.now().UnixMilli()
	if stamp <= s.lastStamp {
		stamp = s.lastStamp + 1
	}
	s.lastStamp = stamp
	s.mu.Unlock()
	return fmt.Sprintf("%s/%d.%s", agentID, stamp, ext)
}

func (s *Store) PublicURL(p string) string {
	return s.baseURL + "/media/" + p
}

// PathFromURL recovers the object path from a public URL this store issued.
func (s *Store) PathFromURL(u string) (string, bool) {
	prefix := s.baseURL + "/media/"
	if !strings.HasPrefix(u, prefix) {
		return "", false
	}
	p := strings.TrimPrefix(u, prefix)
	if _, err := s.resolve(p); err != nil {
		return "", false
	}
	return p, true
}

// Upload describes a signed upload slot.
type Upload struct {
	Path        string    `json:"path"`
	Token       string    `json:"token"`
	UploadURL   string    `json:"upload_url"`
	PublicURL   string    `json:"public_url"`
	ContentType string    `json:"content_type"`
	MaxFileSize int64     `json:"max_file_size"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *Store) PlanUpload(agentID, filename, contentType string) (Upload, error) {
	ext := Extension(filename)
	ct, ok := ContentType(ext)
	if !ok {
		return Upload{}, fmt.Errorf("%w: .%s. Allowed: %s", ErrUnsupportedType, ext, strings.Join(AllowedExtensions(), ", "))
	}
	if contentType != "" {
		ct = contentType
	}
	p := s.NewObjectPath(agentID, ext)
	token, expires := s.SignUpload(p)
	return Upload{
		Path:        p,
		Token:       token,
		UploadURL:   s.baseURL + "/media/upload/" + p + "?token=" + token,
		PublicURL:   s.PublicURL(p),
		ContentType: ct,
		MaxFileSize: s.maxBytes,
		ExpiresAt:   expires,
	}, nil
}

// SignUpload returns a token authorizing one PUT of p until it expires.
func (s *Store) SignUpload(p string) (string, time.Time) {
	expires := s.now().Add(s.ttl).Truncate(time.Second)
	exp := strconv.FormatInt(expires.Unix(), 10)
	return exp + "." + s.sign(p, exp), expires
}

func (s *Store) VerifyUpload(p, token string) error {
	exp, sig, ok := strings.Cut(token, ".")
	if !ok {
		return ErrInvalidToken
	}
	unix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return ErrInvalidToken
	}
	if s.now().After(time.Unix(unix, 0)) {
		return ErrInvalidToken
	}
	if !hmac.Equal([]byte(sig), []byte(s.sign(p, exp))) {
		return ErrInvalidToken
	}
	return nil
}

func (s *Store) sign(p, exp string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(p))
	mac.Write([]byte{0})
	mac.Write([]byte(exp))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Object is a stored file.
type Object struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

// Put writes r to p, rejecting bodies over the size limit. Objects are
// write-once: Put fails with ErrExists when p is already stored. The checksum
// is the hex SHA3-256 of the stored bytes.
func (s *Store) Put(ctx context.Context, p string, r io.Reader) (Object, error) {
	full, err := s.resolve(p)
	if err != nil {
		return Object{}, err
	}
	if err := objectAbsent(full); err != nil {
		return Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Object{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return Object{}, err
	}
	defer os.Remove(tmp.Name())

	h := sha3.New256()
	n, err := io.Copy(io.MultiWriter(tmp, h), io.LimitReader(contextReader{ctx, r}, s.maxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Object{}, err
	}
	if n > s.maxBytes {
		return Object{}, ErrTooLarge
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := objectAbsent(full); err != nil {
		return Object{}, err
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return Object{}, err
	}
	return Object{Path: p, Size: n, Checksum: hex.EncodeToString(h.Sum(nil))}, nil
}

func objectAbsent(full string) error {
	_, err := os.Lstat(full)
	switch {
	case err == nil:
		return ErrExists
	case errors.Is(err, os.ErrNotExist):
		return nil
	}
	return err
}

func (s *Store) Open(p string) (*os.File, error) {
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

func (s *Store) Remove(p string) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// resolve maps an object path to a file under dir. Object paths are always
// "<owner>/<file>".
func (s *Store) resolve(p string) (string, error) {
	if p == "" || strings.Contains(p, "\\") || path.Clean(p) != p || path.IsAbs(p) || strings.HasPrefix(p, "..") {
		return "", ErrInvalidPath
	}
	parts := strings.Split(p, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || strings.HasPrefix(parts[1], ".") {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.dir, filepath.FromSlash(p)), nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
