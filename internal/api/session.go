package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ErrUnauthorized is returned when the backend still rejects a request after a refresh.
var ErrUnauthorized = errors.New("unauthorized")

// Session owns the token refresh state of one Client. Concurrent 401s wait on a
// single refresh call instead of queueing in a process-wide subscriber list.
type Session struct {
	refreshPath string
	group       singleflight.Group
	refreshes   atomic.Int64
}

// NewSession creates refresh state that POSTs to refreshPath relative to the backend base URL.
func NewSession(refreshPath string) *Session {
	if refreshPath == "" {
		refreshPath = "/api/v1/auth/refresh"
	}
	return &Session{refreshPath: refreshPath}
}

// Refreshes returns how many refresh calls actually reached the backend.
func (s *Session) Refreshes() int64 {
	return s.refreshes.Load()
}

// Refresh renews the session cookie. Callers arriving while a refresh is in
// flight share its result.
func (s *Session) Refresh(ctx context.Context, client *http.Client, base *url.URL) error {
	_, err, shared := s.group.Do("refresh", func() (interface{}, error) {
		s.refreshes.Add(1)

		target := base.JoinPath(s.refreshPath)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("create refresh request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("refresh request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("%w: refresh returned %d", ErrUnauthorized, resp.StatusCode)
		}
		return nil, nil
	})

	log.Debug().
		Bool("shared", shared).
		Err(err).
		Msg("Session refresh finished")

	return err
}
