// Package twitter scrapes public X profiles and timelines through an
// authenticated web session.
package twitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"scraper-gateway/pkg/apperr"
)

const (
	DefaultSessionName = "default"
	MaxPages           = 50
)

// Sessions persists sessions by name. *SessionStore implements it.
type Sessions interface {
	Load(name string) (Session, bool, error)
	Save(name string, session Session) error
	Delete(name string) error
}

type ScraperConfig struct {
	SessionName string
	Credentials Credentials
}

type Scraper struct {
	backend  Backend
	sessions Sessions
	cfg      ScraperConfig
	logger   *slog.Logger

	mu    sync.Mutex
	ready bool
	// saved is the session the store last held.
	saved Session
}

// NewScraper wires a scraper. sessions may be nil, in which case every start
// logs in from the configured credentials.
func NewScraper(backend Backend, sessions Sessions, cfg ScraperConfig, logger *slog.Logger) *Scraper {
	if cfg.SessionName == "" {
		cfg.SessionName = DefaultSessionName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		backend:  backend,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger.With("component", "twitter", "session", cfg.SessionName),
	}
}

// Open restores the stored session when it still verifies. Otherwise the
// stored session is discarded and the fallback credentials are used once.
func (s *Scraper) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open(ctx)
}

func (s *Scraper) open(ctx context.Context) error {
	if s.ready {
		return nil
	}

	if s.sessions != nil {
		stored, ok, err := s.sessions.Load(s.cfg.SessionName)
		if err != nil {
			s.logger.Warn("cannot load stored session", "error", err)
		}
		if ok {
			if stored.Valid() {
				s.backend.SetSession(stored)
				err = s.backend.Verify(ctx)
				if err == nil {
					s.logger.Info("restored stored session", "saved_at", stored.SavedAt)
					s.saved = stored
					s.ready = true
					return nil
				}
				s.logger.Warn("stored session rejected", "error", err)
			}
			s.discardStored()
		}
	}

	session, err := s.fallbackSession()
	if err != nil {
		return err
	}
	s.backend.SetSession(session)
	if err := s.backend.Verify(ctx); err != nil {
		return fmt.Errorf("twitter login failed: %w", err)
	}
	s.logger.Info("logged in with configured credentials")

	if s.sessions != nil {
		if err := s.sessions.Save(s.cfg.SessionName, session); err != nil {
			s.logger.Warn("cannot persist session", "error", err)
		} else {
			s.saved = session
		}
	}
	s.ready = true
	return nil
}

func (s *Scraper) fallbackSession() (Session, error) {
	c := s.cfg.Credentials
	switch {
	case c.AuthToken != "" && c.CT0 != "":
		return Session{AuthToken: c.AuthToken, CT0: c.CT0}, nil
	case c.Username != "" || c.Password != "":
		return Session{}, apperr.Configuration("twitter username/password login is not supported, configure auth_token and ct0")
	default:
		return Session{}, apperr.Configuration("twitter credentials are not configured")
	}
}

func (s *Scraper) discardStored() {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.Delete(s.cfg.SessionName); err != nil {
		s.logger.Warn("cannot delete stored session", "error", err)
	}
}

// withSession runs fn on an open session. An unauthorized failure drops the
// session, logs in again and retries fn once.
func (s *Scraper) withSession(ctx context.Context, fn func() error) error {
	if err := s.Open(ctx); err != nil {
		return err
	}
	err := fn()
	if errors.Is(err, ErrUnauthorized) {
		s.logger.Warn("session expired, logging in again")
		s.mu.Lock()
		s.ready = false
		s.discardStored()
		err = s.open(ctx)
		s.mu.Unlock()
		if err != nil {
			return err
		}
		err = fn()
	}
	if err == nil {
		s.persistRotated()
	}
	return err
}

// persistRotated saves the backend session when X rotated its cookies since
// the last save.
func (s *Scraper) persistRotated() {
	if s.sessions == nil {
		return
	}
	cur := s.backend.Session()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !cur.Valid() || (cur.AuthToken == s.saved.AuthToken && cur.CT0 == s.saved.CT0) {
		return
	}
	if err := s.sessions.Save(s.cfg.SessionName, cur); err != nil {
		s.logger.Warn("cannot persist rotated session", "error", err)
		return
	}
	s.saved = cur
}

func (s *Scraper) UserInfo(ctx context.Context, username string) (map[string]any, error) {
	username, err := cleanUsername(username)
	if err != nil {
		return nil, err
	}
	var user *User
	err = s.withSession(ctx, func() error {
		var err error
		user, err = s.backend.UserByScreenName(ctx, username)
		return err
	})
	if err != nil {
		return nil, err
	}
	return Flatten(user).(map[string]any), nil
}

func (s *Scraper) Followers(ctx context.Context, username string, pages int) ([]map[string]any, error) {
	return s.users(ctx, username, pages, s.backend.Followers)
}

func (s *Scraper) Following(ctx context.Context, username string, pages int) ([]map[string]any, error) {
	return s.users(ctx, username, pages, s.backend.Following)
}

func (s *Scraper) UserTweets(ctx context.Context, username string, pages int) ([]map[string]any, error) {
	username, err := cleanUsername(username)
	if err != nil {
		return nil, err
	}
	if err := ValidatePages(pages); err != nil {
		return nil, err
	}
	var tweets []Tweet
	err = s.withSession(ctx, func() error {
		user, err := s.backend.UserByScreenName(ctx, username)
		if err != nil {
			return err
		}
		tweets, err = s.backend.UserTweets(ctx, user.ID, pages)
		return err
	})
	if err != nil {
		return nil, err
	}
	return flattenAll(tweets), nil
}

func (s *Scraper) Search(ctx context.Context, query string, pages int) ([]map[string]any, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("query", "must not be empty")
	}
	if err := ValidatePages(pages); err != nil {
		return nil, err
	}
	var tweets []Tweet
	err := s.withSession(ctx, func() error {
		var err error
		tweets, err = s.backend.Search(ctx, query, pages)
		return err
	})
	if err != nil {
		return nil, err
	}
	return flattenAll(tweets), nil
}

func (s *Scraper) users(ctx context.Context, username string, pages int, list func(context.Context, string, int) ([]User, error)) ([]map[string]any, error) {
	username, err := cleanUsername(username)
	if err != nil {
		return nil, err
	}
	if err := ValidatePages(pages); err != nil {
		return nil, err
	}
	var users []User
	err = s.withSession(ctx, func() error {
		user, err := s.backend.UserByScreenName(ctx, username)
		if err != nil {
			return err
		}
		users, err = list(ctx, user.ID, pages)
		return err
	})
	if err != nil {
		return nil, err
	}
	return flattenAll(users), nil
}

// ValidatePages accepts 1 through MaxPages.
func ValidatePages(pages int) error {
	if pages < 1 || pages > MaxPages {
		return apperr.Validation("pages", "must be between 1 and %d, got %d", MaxPages, pages)
	}
	return nil
}

func cleanUsername(username string) (string, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return "", apperr.Validation("username", "must not be empty")
	}
	return username, nil
}

func flattenAll[T any](items []T) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for i := range items {
		out = append(out, Flatten(&items[i]).(map[string]any))
	}
	return out
}
