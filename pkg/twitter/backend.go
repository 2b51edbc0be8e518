package twitter

import (
	"context"
	"errors"
)

// ErrUnauthorized means the current session was rejected by X.
var ErrUnauthorized = errors.New("twitter session is not authorized")

// Backend is an authenticated X client. Implementations must be safe for
// concurrent use once a session is set.
type Backend interface {
	SetSession(s Session)
	Session() Session
	// Verify fails with ErrUnauthorized when the session no longer works.
	Verify(ctx context.Context) error
	UserByScreenName(ctx context.Context, screenName string) (*User, error)
	Followers(ctx context.Context, userID string, pages int) ([]User, error)
	Following(ctx context.Context, userID string, pages int) ([]User, error)
	UserTweets(ctx context.Context, userID string, pages int) ([]Tweet, error)
	Search(ctx context.Context, query string, pages int) ([]Tweet, error)
}
