package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"nullbr-search-service/internal/model"
	"nullbr-search-service/pkg/httpclient"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	tokenLifetime      = 24 * time.Hour
	tokenRefreshMargin = time.Hour
	cmsSuccessCode     = 200
)

// transferToken is the CMS bearer token. It is replaced wholesale on refresh.
type transferToken struct {
	value     string
	issuedAt  time.Time
	expiresAt time.Time
}

// stale reports whether the token must be refreshed before use
func (t *transferToken) stale(now time.Time) bool {
	return t == nil || !now.Before(t.expiresAt.Add(-tokenRefreshMargin))
}

// CMSService enqueues share links into CloudSyncMedia
type CMSService struct {
	client   *httpclient.Client
	baseURL  string
	username string
	password string
	now      func() time.Time

	mu    sync.Mutex
	token *transferToken
	group singleflight.Group
}

// NewCMSService creates a new CMSService. The client should be direct-only:
// CMS is an internal service.
func NewCMSService(client *httpclient.Client, baseURL, username, password string) *CMSService {
	return &CMSService{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		now:      time.Now,
	}
}

type cmsLoginResponse struct {
	Code int `json:"code"`
	Data *struct {
		Token string `json:"token"`
	} `json:"data"`
	Msg     string `json:"msg"`
	Message string `json:"message"`
}

type cmsShareResponse struct {
	Code    int    `json:"code"`
	Msg     string `json:"msg"`
	Message string `json:"message"`
	Data    *struct {
		TaskID flexString `json:"task_id"`
		Status flexString `json:"status"`
	} `json:"data"`
}

// login authenticates against CMS and returns a new token
func (s *CMSService) login(ctx context.Context) (*transferToken, error) {
	resp, err := s.client.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    s.baseURL + "/api/auth/login",
		JSON: map[string]string{
			"username": s.username,
			"password": s.password,
		},
	})
	if err != nil {
		return nil, &LoginError{Reason: "request failed", Err: fmt.Errorf("%w: %w", ErrNetwork, err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &LoginError{Reason: "http status", Err: &StatusError{Code: resp.StatusCode, Body: string(resp.Body)}}
	}

	var body cmsLoginResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return nil, &LoginError{Reason: "invalid body", Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if body.Code != cmsSuccessCode {
		return nil, &LoginError{Reason: fmt.Sprintf("code %d: %s", body.Code, firstNonEmpty(body.Msg, body.Message))}
	}
	if body.Data == nil || body.Data.Token == "" {
		return nil, &LoginError{Reason: "missing token"}
	}

	now := s.now()
	return &transferToken{
		value:     body.Data.Token,
		issuedAt:  now,
		expiresAt: now.Add(tokenLifetime),
	}, nil
}

// currentToken returns a valid token, logging in if needed. Concurrent
// callers share a single login.
func (s *CMSService) currentToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	tok := s.token
	s.mu.Unlock()
	if !tok.stale(s.now()) {
		return tok.value, nil
	}

	v, err, _ := s.group.Do("login", func() (interface{}, error) {
		s.mu.Lock()
		cur := s.token
		s.mu.Unlock()
		if !cur.stale(s.now()) {
			return cur.value, nil
		}

		fresh, err := s.login(ctx)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.token = fresh
		s.mu.Unlock()
		log.Info().Msg("🔑 CMS token 已更新")
		return fresh.value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// invalidate drops the token if it is still the one that was rejected
func (s *CMSService) invalidate(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != nil && s.token.value == value {
		s.token = nil
	}
}

// EnsureValidToken logs in when no token is held or it is within an hour of expiry
func (s *CMSService) EnsureValidToken(ctx context.Context) error {
	_, err := s.currentToken(ctx)
	return err
}

// HasValidToken reports whether a non-stale token is currently held
func (s *CMSService) HasValidToken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.token.stale(s.now())
}

func (s *CMSService) postShare(ctx context.Context, token, shareURL string) (*httpclient.Response, error) {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	resp, err := s.client.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    s.baseURL + "/api/cloud/add_share_down",
		Header: h,
		JSON:   map[string]string{"url": shareURL},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return resp, nil
}

// Enqueue submits a share link for transfer. A 401 triggers exactly one
// re-login and retry; a second 401 is returned as ErrAuth.
func (s *CMSService) Enqueue(ctx context.Context, shareURL string) (*model.TransferResult, error) {
	if shareURL == "" {
		return nil, ErrEmptyURL
	}

	token, err := s.currentToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.postShare(ctx, token, shareURL)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		log.Warn().Msg("CMS token rejected, logging in again")
		s.invalidate(token)

		token, err = s.currentToken(ctx)
		if err != nil {
			return nil, err
		}
		resp, err = s.postShare(ctx, token, shareURL)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: cms rejected refreshed token", ErrAuth)
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(resp.Body)}
	}

	var body cmsShareResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return nil, fmt.Errorf("%w: add_share_down: %v", ErrMalformedResponse, err)
	}

	result := &model.TransferResult{
		Code:    body.Code,
		Message: firstNonEmpty(body.Msg, body.Message),
	}
	if body.Data != nil {
		result.TaskID = string(body.Data.TaskID)
		result.Status = string(body.Data.Status)
	}

	log.Info().
		Str("url", shareURL).
		Int("code", result.Code).
		Str("task_id", result.TaskID).
		Msg("CMS转存请求已发送")

	return result, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
