package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/publicsuffix"

	"scraper-gateway/pkg/apperr"
	"scraper-gateway/pkg/gateway"
)

const (
	DefaultGraphQLURL = "https://x.com/i/api/graphql"
	DefaultAPIURL     = "https://api.x.com/1.1"

	// Bearer token of the public web client.
	webBearerToken = "AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"

	pageSize = 20
)

// Doer is the part of the gateway the backend needs.
type Doer interface {
	Do(ctx context.Context, method, rawURL string, body []byte, call gateway.CallOptions) (*gateway.Response, error)
}

// QueryIDs are the persisted-query hashes of the web client. X rotates them
// with web deployments, so they are configurable.
type QueryIDs struct {
	UserByScreenName string
	Followers        string
	Following        string
	UserTweets       string
	SearchTimeline   string
}

func DefaultQueryIDs() QueryIDs {
	return QueryIDs{
		UserByScreenName: "xmU6X_CKVnQ5lSrCbAmJsg",
		Followers:        "OGScL-RC4DFMsRGOCjPR6g",
		Following:        "o5eNLkJb03ayTQa97Cpp7w",
		UserTweets:       "HeWHY26ItCfUmm1e6ITjeA",
		SearchTimeline:   "MJpyQGqgklrVl_0X9gNy3A",
	}
}

type GraphQLConfig struct {
	GraphQLURL string
	APIURL     string
	QueryIDs   QueryIDs
}

// GraphQLBackend talks to the endpoints the x.com web app uses, authenticated
// by the auth_token and ct0 cookies.
type GraphQLBackend struct {
	doer    Doer
	cfg     GraphQLConfig
	logger  *slog.Logger
	mu      sync.RWMutex
	session Session
	// jar holds the session cookies; X may rotate ct0 through it.
	jar http.CookieJar
}

func NewGraphQLBackend(doer Doer, cfg GraphQLConfig, logger *slog.Logger) *GraphQLBackend {
	if cfg.GraphQLURL == "" {
		cfg.GraphQLURL = DefaultGraphQLURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	defaults := DefaultQueryIDs()
	fill(&cfg.QueryIDs.UserByScreenName, defaults.UserByScreenName)
	fill(&cfg.QueryIDs.Followers, defaults.Followers)
	fill(&cfg.QueryIDs.Following, defaults.Following)
	fill(&cfg.QueryIDs.UserTweets, defaults.UserTweets)
	fill(&cfg.QueryIDs.SearchTimeline, defaults.SearchTimeline)
	cfg.GraphQLURL = strings.TrimRight(cfg.GraphQLURL, "/")
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	if logger == nil {
		logger = slog.Default()
	}
	return &GraphQLBackend{doer: doer, cfg: cfg, logger: logger.With("component", "twitter")}
}

// SetSession replaces the cookie jar with one seeded from s.
func (b *GraphQLBackend) SetSession(s Session) {
	jar := b.seedJar(s)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = s
	b.jar = jar
}

func (b *GraphQLBackend) Session() Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

func (b *GraphQLBackend) Verify(ctx context.Context) error {
	if !b.Session().Valid() {
		return ErrUnauthorized
	}
	_, err := b.call(ctx, b.cfg.APIURL+"/account/settings.json")
	return err
}

func (b *GraphQLBackend) UserByScreenName(ctx context.Context, screenName string) (*User, error) {
	body, err := b.query(ctx, b.cfg.QueryIDs.UserByScreenName, "UserByScreenName", map[string]any{
		"screen_name":              screenName,
		"withSafetyModeUserFields": true,
	})
	if err != nil {
		return nil, err
	}
	tree, err := decodeTree(body)
	if err != nil {
		return nil, err
	}
	users := collectUsers(tree)
	if len(users) == 0 {
		return nil, &apperr.NotFoundError{Message: fmt.Sprintf("user %q not found", screenName)}
	}
	return &users[0], nil
}

func (b *GraphQLBackend) Followers(ctx context.Context, userID string, pages int) ([]User, error) {
	return b.userTimeline(ctx, b.cfg.QueryIDs.Followers, "Followers", userID, pages)
}

func (b *GraphQLBackend) Following(ctx context.Context, userID string, pages int) ([]User, error) {
	return b.userTimeline(ctx, b.cfg.QueryIDs.Following, "Following", userID, pages)
}

func (b *GraphQLBackend) UserTweets(ctx context.Context, userID string, pages int) ([]Tweet, error) {
	return b.tweetTimeline(ctx, b.cfg.QueryIDs.UserTweets, "UserTweets", pages, func(cursor string) map[string]any {
		v := map[string]any{
			"userId":                 userID,
			"count":                  pageSize,
			"includePromotedContent": false,
			"withVoice":              true,
		}
		setCursor(v, cursor)
		return v
	})
}

func (b *GraphQLBackend) Search(ctx context.Context, query string, pages int) ([]Tweet, error) {
	return b.tweetTimeline(ctx, b.cfg.QueryIDs.SearchTimeline, "SearchTimeline", pages, func(cursor string) map[string]any {
		v := map[string]any{
			"rawQuery":    query,
			"count":       pageSize,
			"querySource": "typed_query",
			"product":     "Latest",
		}
		setCursor(v, cursor)
		return v
	})
}

func (b *GraphQLBackend) userTimeline(ctx context.Context, queryID, operation, userID string, pages int) ([]User, error) {
	var out []User
	seen := map[string]bool{}
	err := b.paginate(ctx, queryID, operation, pages, func(cursor string) map[string]any {
		v := map[string]any{
			"userId":                 userID,
			"count":                  pageSize,
			"includePromotedContent": false,
		}
		setCursor(v, cursor)
		return v
	}, func(tree any) int {
		added := 0
		for _, u := range collectUsers(tree) {
			if u.ID == "" || seen[u.ID] || u.ID == userID {
				continue
			}
			seen[u.ID] = true
			out = append(out, u)
			added++
		}
		return added
	})
	return out, err
}

func (b *GraphQLBackend) tweetTimeline(ctx context.Context, queryID, operation string, pages int, vars func(cursor string) map[string]any) ([]Tweet, error) {
	var out []Tweet
	seen := map[string]bool{}
	err := b.paginate(ctx, queryID, operation, pages, vars, func(tree any) int {
		added := 0
		for _, t := range collectTweets(tree) {
			if t.ID == "" || seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			out = append(out, t)
			added++
		}
		return added
	})
	return out, err
}

// paginate requests up to pages pages, following the bottom cursor, and stops
// early when a page adds nothing new or carries no cursor.
func (b *GraphQLBackend) paginate(ctx context.Context, queryID, operation string, pages int, vars func(cursor string) map[string]any, collect func(tree any) int) error {
	if pages <= 0 {
		pages = 1
	}
	cursor := ""
	for page := 0; page < pages; page++ {
		body, err := b.query(ctx, queryID, operation, vars(cursor))
		if err != nil {
			return err
		}
		tree, err := decodeTree(body)
		if err != nil {
			return err
		}
		added := collect(tree)
		next := bottomCursor(tree)
		b.logger.Debug("timeline page", "operation", operation, "page", page+1, "added", added)
		if added == 0 || next == "" || next == cursor {
			return nil
		}
		cursor = next
	}
	return nil
}

func (b *GraphQLBackend) query(ctx context.Context, queryID, operation string, variables map[string]any) ([]byte, error) {
	vars, err := json.Marshal(variables)
	if err != nil {
		return nil, err
	}
	features, err := json.Marshal(webFeatures)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("variables", string(vars))
	params.Set("features", string(features))

	return b.call(ctx, fmt.Sprintf("%s/%s/%s?%s", b.cfg.GraphQLURL, queryID, operation, params.Encode()))
}

func (b *GraphQLBackend) call(ctx context.Context, rawURL string) ([]byte, error) {
	b.mu.RLock()
	s, jar := b.session, b.jar
	b.mu.RUnlock()

	h := http.Header{}
	h.Set("Authorization", "Bearer "+webBearerToken)
	h.Set("X-Csrf-Token", s.CT0)
	h.Set("X-Twitter-Auth-Type", "OAuth2Session")
	h.Set("X-Twitter-Active-User", "yes")
	h.Set("X-Twitter-Client-Language", "en")
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "*/*")
	h.Set("Referer", "https://x.com/")

	res, err := b.doer.Do(ctx, http.MethodGet, rawURL, nil, gateway.CallOptions{Header: h, Jar: jar})
	b.syncCT0(jar, rawURL)
	if err != nil {
		if gateway.IsUpstreamStatus(err, http.StatusUnauthorized) || gateway.IsUpstreamStatus(err, http.StatusForbidden) {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return nil, err
	}
	return res.Body, nil
}

// seedJar stores auth_token and ct0 for the registrable domain of every
// endpoint, so cookies X sets on that domain replace them instead of
// being sent next to them.
func (b *GraphQLBackend) seedJar(s Session) http.CookieJar {
	// cookiejar.New never fails.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if !s.Valid() {
		return jar
	}
	for _, raw := range []string{b.cfg.GraphQLURL, b.cfg.APIURL} {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		// IP or single-label hosts only take host-only cookies.
		var domain string
		if net.ParseIP(u.Hostname()) == nil {
			domain, _ = publicsuffix.EffectiveTLDPlusOne(u.Hostname())
		}
		jar.SetCookies(u, []*http.Cookie{
			{Name: "auth_token", Value: s.AuthToken, Path: "/", Domain: domain},
			{Name: "ct0", Value: s.CT0, Path: "/", Domain: domain},
		})
	}
	return jar
}

// syncCT0 adopts a ct0 that X rotated through jar while it is still the
// current session's jar.
func (b *GraphQLBackend) syncCT0(jar http.CookieJar, rawURL string) {
	u, err := url.Parse(rawURL)
	if err != nil || jar == nil {
		return
	}
	var ct0 string
	for _, c := range jar.Cookies(u) {
		if c.Name == "ct0" {
			ct0 = c.Value
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.jar != jar || ct0 == "" || ct0 == b.session.CT0 {
		return
	}
	b.session.CT0 = ct0
	b.logger.Debug("ct0 rotated")
}

func setCursor(v map[string]any, cursor string) {
	if cursor != "" {
		v["cursor"] = cursor
	}
}

func fill(field *string, def string) {
	if *field == "" {
		*field = def
	}
}

var webFeatures = map[string]bool{
	"hidden_profile_subscriptions_enabled":                              true,
	"rweb_tipjar_consumption_enabled":                                   true,
	"responsive_web_graphql_exclude_directive_enabled":                  true,
	"verified_phone_label_enabled":                                      false,
	"subscriptions_verification_info_is_identity_verified_enabled":      true,
	"subscriptions_verification_info_verified_since_enabled":            true,
	"highlights_tweets_tab_ui_enabled":                                  true,
	"responsive_web_twitter_article_notes_tab_enabled":                  true,
	"creator_subscriptions_tweet_preview_api_enabled":                   true,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled": false,
	"responsive_web_graphql_timeline_navigation_enabled":                true,
	"view_counts_everywhere_api_enabled":                                true,
	"longform_notetweets_consumption_enabled":                           true,
	"responsive_web_edit_tweet_api_enabled":                             true,
	"graphql_is_translatable_rweb_tweet_is_translatable_enabled":        true,
	"freedom_of_speech_not_reach_fetch_enabled":                         true,
	"standardized_nudges_misinfo":                                       true,
	"longform_notetweets_rich_text_read_enabled":                        true,
	"responsive_web_enhance_cards_enabled":                              false,
}
