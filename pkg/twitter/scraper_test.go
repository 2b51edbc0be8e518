package twitter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scraper-gateway/pkg/apperr"
)

type memorySessions struct {
	mu      sync.Mutex
	data    map[string]Session
	deletes int
}

func newMemorySessions() *memorySessions {
	return &memorySessions{data: map[string]Session{}}
}

func (m *memorySessions) Load(name string) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[name]
	return s, ok, nil
}

func (m *memorySessions) Save(name string, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[name] = s
	return nil
}

func (m *memorySessions) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.data, name)
	return nil
}

// fakeBackend accepts sessions whose auth token is in valid.
type fakeBackend struct {
	mu       sync.Mutex
	session  Session
	valid    map[string]bool
	verifies int
	// failNext makes the next data call fail as unauthorized.
	failNext bool
}

func (f *fakeBackend) SetSession(s Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = s
}

func (f *fakeBackend) Session() Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *fakeBackend) Verify(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifies++
	if !f.valid[f.session.AuthToken] {
		return ErrUnauthorized
	}
	return nil
}

func (f *fakeBackend) check() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return ErrUnauthorized
	}
	return nil
}

func (f *fakeBackend) UserByScreenName(_ context.Context, name string) (*User, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	if name == "ghost" {
		return nil, &apperr.NotFoundError{Message: "user not found"}
	}
	return &User{
		ID:             "100",
		ScreenName:     name,
		CreatedAt:      time.Date(2010, 1, 2, 3, 4, 5, 0, time.UTC),
		pinnedTweetIDs: []string{"7"},
	}, nil
}

func (f *fakeBackend) Followers(_ context.Context, userID string, pages int) ([]User, error) {
	var out []User
	for i := 0; i < pages; i++ {
		out = append(out, User{ID: userID + "-f", ScreenName: "follower"})
	}
	return out, nil
}

func (f *fakeBackend) Following(_ context.Context, userID string, _ int) ([]User, error) {
	return []User{{ID: userID + "-g", ScreenName: "followed"}}, nil
}

func (f *fakeBackend) UserTweets(_ context.Context, userID string, _ int) ([]Tweet, error) {
	return []Tweet{{ID: "t1", Text: "hello", User: &User{ID: userID}, conversationID: "c1"}}, nil
}

func (f *fakeBackend) Search(_ context.Context, query string, _ int) ([]Tweet, error) {
	return []Tweet{{ID: "s1", Text: query}}, nil
}

func TestOpenRestoresStoredSession(t *testing.T) {
	sessions := newMemorySessions()
	sessions.data["default"] = Session{AuthToken: "stored", CT0: "c"}
	backend := &fakeBackend{valid: map[string]bool{"stored": true}}

	s := NewScraper(backend, sessions, ScraperConfig{Credentials: Credentials{AuthToken: "fresh", CT0: "c"}}, nil)
	require.NoError(t, s.Open(context.Background()))

	assert.Equal(t, "stored", backend.Session().AuthToken)
	assert.Equal(t, 1, backend.verifies)
	assert.Zero(t, sessions.deletes)
}

func TestOpenFallsBackOnce(t *testing.T) {
	sessions := newMemorySessions()
	sessions.data["default"] = Session{AuthToken: "expired", CT0: "c"}
	backend := &fakeBackend{valid: map[string]bool{"fresh": true}}

	s := NewScraper(backend, sessions, ScraperConfig{Credentials: Credentials{AuthToken: "fresh", CT0: "c2"}}, nil)
	require.NoError(t, s.Open(context.Background()))

	assert.Equal(t, "fresh", backend.Session().AuthToken)
	assert.Equal(t, 2, backend.verifies)
	assert.Equal(t, 1, sessions.deletes)
	assert.Equal(t, "fresh", sessions.data["default"].AuthToken)

	// Already open: no further verification.
	require.NoError(t, s.Open(context.Background()))
	assert.Equal(t, 2, backend.verifies)
}

func TestOpenFailsWhenFallbackRejected(t *testing.T) {
	backend := &fakeBackend{valid: map[string]bool{}}
	s := NewScraper(backend, nil, ScraperConfig{Credentials: Credentials{AuthToken: "bad", CT0: "c"}}, nil)

	err := s.Open(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestOpenCredentialErrors(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
	}{
		{"none", Credentials{}},
		{"password only", Credentials{Username: "u", Password: "p"}},
		{"half token", Credentials{AuthToken: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScraper(&fakeBackend{}, newMemorySessions(), ScraperConfig{Credentials: tt.creds}, nil)
			var cerr *apperr.ConfigurationError
			assert.ErrorAs(t, s.Open(context.Background()), &cerr)
		})
	}
}

func TestUnauthorizedCallRetriesOnce(t *testing.T) {
	sessions := newMemorySessions()
	backend := &fakeBackend{valid: map[string]bool{"tok": true}}
	s := NewScraper(backend, sessions, ScraperConfig{Credentials: Credentials{AuthToken: "tok", CT0: "c"}}, nil)
	require.NoError(t, s.Open(context.Background()))

	backend.failNext = true
	user, err := s.UserInfo(context.Background(), "@gopher")
	require.NoError(t, err)
	assert.Equal(t, "gopher", user["username"])
	assert.Equal(t, 1, sessions.deletes)
	assert.Equal(t, 2, backend.verifies)
}

func TestScraperFlattensRecords(t *testing.T) {
	backend := &fakeBackend{valid: map[string]bool{"tok": true}}
	s := NewScraper(backend, nil, ScraperConfig{Credentials: Credentials{AuthToken: "tok", CT0: "c"}}, nil)
	ctx := context.Background()

	user, err := s.UserInfo(ctx, "gopher")
	require.NoError(t, err)
	assert.Equal(t, "2010-01-02T03:04:05Z", user["created_at"])
	assert.Equal(t, []any{"7"}, user["pinned_tweet_ids"])

	followers, err := s.Followers(ctx, "gopher", 3)
	require.NoError(t, err)
	assert.Len(t, followers, 3)
	assert.Equal(t, "100-f", followers[0]["id"])

	following, err := s.Following(ctx, "gopher", 1)
	require.NoError(t, err)
	assert.Equal(t, "followed", following[0]["username"])

	tweets, err := s.UserTweets(ctx, "gopher", 1)
	require.NoError(t, err)
	require.Len(t, tweets, 1)
	assert.Equal(t, "c1", tweets[0]["conversation_id"])
	assert.Equal(t, "100", tweets[0]["user"].(map[string]any)["id"])

	found, err := s.Search(ctx, "golang", 1)
	require.NoError(t, err)
	assert.Equal(t, "golang", found[0]["text"])
}

func TestScraperValidation(t *testing.T) {
	backend := &fakeBackend{valid: map[string]bool{"tok": true}}
	s := NewScraper(backend, nil, ScraperConfig{Credentials: Credentials{AuthToken: "tok", CT0: "c"}}, nil)
	ctx := context.Background()

	var verr *apperr.ValidationError
	_, err := s.UserInfo(ctx, " @ ")
	assert.ErrorAs(t, err, &verr)
	_, err = s.Followers(ctx, "gopher", 0)
	assert.ErrorAs(t, err, &verr)
	_, err = s.UserTweets(ctx, "gopher", MaxPages+1)
	assert.ErrorAs(t, err, &verr)
	_, err = s.Search(ctx, "  ", 1)
	assert.ErrorAs(t, err, &verr)

	_, err = s.UserInfo(ctx, "ghost")
	var nerr *apperr.NotFoundError
	assert.ErrorAs(t, err, &nerr)
	assert.False(t, errors.Is(err, ErrUnauthorized))
}

func TestScraperPersistsRotatedSession(t *testing.T) {
	sessions := newMemorySessions()
	backend := &fakeBackend{valid: map[string]bool{"tok": true}}
	s := NewScraper(backend, sessions, ScraperConfig{Credentials: Credentials{AuthToken: "tok", CT0: "c"}}, nil)
	require.NoError(t, s.Open(context.Background()))
	assert.Equal(t, "c", sessions.data["default"].CT0)

	backend.SetSession(Session{AuthToken: "tok", CT0: "rotated"})
	_, err := s.UserInfo(context.Background(), "gopher")
	require.NoError(t, err)
	assert.Equal(t, "rotated", sessions.data["default"].CT0)
}
