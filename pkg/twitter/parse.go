package twitter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

func decodeTree(body []byte) (any, error) {
	var tree any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("decode twitter response: %w", err)
	}
	if m, ok := tree.(map[string]any); ok {
		if errs, ok := m["errors"].([]any); ok && len(errs) > 0 && m["data"] == nil {
			return nil, fmt.Errorf("twitter error: %s", str(errs[0], "message"))
		}
	}
	return tree, nil
}

// walk visits every object in document order. Returning false from visit
// skips the object's children.
func walk(node any, visit func(m map[string]any) bool) {
	switch v := node.(type) {
	case map[string]any:
		if !visit(v) {
			return
		}
		for _, child := range v {
			walk(child, visit)
		}
	case []any:
		for _, child := range v {
			walk(child, visit)
		}
	}
}

// walkOrdered is walk with map keys visited in a stable order, so results
// keep the timeline order of the "entries" arrays.
func walkOrdered(node any, visit func(m map[string]any) bool) {
	switch v := node.(type) {
	case map[string]any:
		if !visit(v) {
			return
		}
		for _, k := range sortedKeys(v) {
			walkOrdered(v[k], visit)
		}
	case []any:
		for _, child := range v {
			walkOrdered(child, visit)
		}
	}
}

func collectUsers(tree any) []User {
	var users []User
	walkOrdered(tree, func(m map[string]any) bool {
		if m["__typename"] == "User" {
			if _, ok := m["legacy"].(map[string]any); ok {
				users = append(users, parseUser(m))
				return false
			}
		}
		return true
	})
	return users
}

func collectTweets(tree any) []Tweet {
	var tweets []Tweet
	walkOrdered(tree, func(m map[string]any) bool {
		if m["__typename"] == "Tweet" {
			if _, ok := m["legacy"].(map[string]any); ok {
				tweets = append(tweets, parseTweet(m))
				return false
			}
		}
		return true
	})
	return tweets
}

func bottomCursor(tree any) string {
	cursor := ""
	walk(tree, func(m map[string]any) bool {
		if cursor != "" {
			return false
		}
		if m["cursorType"] == "Bottom" {
			cursor = str(m, "value")
			return false
		}
		return true
	})
	return cursor
}

func parseUser(m map[string]any) User {
	legacy := m["legacy"]
	u := User{
		ID:              str(m, "rest_id"),
		ScreenName:      first(str(legacy, "screen_name"), str(m, "core", "screen_name")),
		Name:            first(str(legacy, "name"), str(m, "core", "name")),
		Description:     str(legacy, "description"),
		Location:        first(str(legacy, "location"), str(m, "location", "location")),
		URL:             str(legacy, "url"),
		ProfileImageURL: first(str(legacy, "profile_image_url_https"), str(m, "avatar", "image_url")),
		FollowersCount:  num(legacy, "followers_count"),
		FollowingCount:  num(legacy, "friends_count"),
		TweetsCount:     num(legacy, "statuses_count"),
		Verified:        boolean(legacy, "verified"),
		BlueVerified:    boolean(m, "is_blue_verified"),
		Protected:       boolean(legacy, "protected"),
		CreatedAt:       timestamp(first(str(legacy, "created_at"), str(m, "core", "created_at"))),
	}
	if ids, ok := lookup(legacy, "pinned_tweet_ids_str").([]any); ok {
		for _, id := range ids {
			if s, ok := id.(string); ok {
				u.pinnedTweetIDs = append(u.pinnedTweetIDs, s)
			}
		}
	}
	return u
}

func parseTweet(m map[string]any) Tweet {
	legacy := m["legacy"]
	t := Tweet{
		ID:             first(str(m, "rest_id"), str(legacy, "id_str")),
		Text:           first(str(m, "note_tweet", "note_tweet_results", "result", "text"), str(legacy, "full_text")),
		Lang:           str(legacy, "lang"),
		CreatedAt:      timestamp(str(legacy, "created_at")),
		Likes:          num(legacy, "favorite_count"),
		Retweets:       num(legacy, "retweet_count"),
		Replies:        num(legacy, "reply_count"),
		Quotes:         num(legacy, "quote_count"),
		Views:          num(m, "views", "count"),
		InReplyToID:    str(legacy, "in_reply_to_status_id_str"),
		conversationID: str(legacy, "conversation_id_str"),
	}
	t.IsReply = t.InReplyToID != ""
	_, t.IsRetweet = lookup(legacy, "retweeted_status_result").(map[string]any)

	if tags, ok := lookup(legacy, "entities", "hashtags").([]any); ok {
		for _, tag := range tags {
			if text := str(tag, "text"); text != "" {
				t.Hashtags = append(t.Hashtags, text)
			}
		}
	}
	if media, ok := lookup(legacy, "extended_entities", "media").([]any); ok {
		for _, item := range media {
			t.Media = append(t.Media, Media{Type: str(item, "type"), URL: str(item, "media_url_https")})
		}
	}
	if um, ok := lookup(m, "core", "user_results", "result").(map[string]any); ok {
		if _, ok := um["legacy"].(map[string]any); ok {
			u := parseUser(um)
			t.User = &u
		}
	}
	return t
}

func lookup(node any, path ...string) any {
	for _, key := range path {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[key]
	}
	return node
}

func str(node any, path ...string) string {
	s, _ := lookup(node, path...).(string)
	return s
}

func num(node any, path ...string) int {
	switch v := lookup(node, path...).(type) {
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func boolean(node any, path ...string) bool {
	b, _ := lookup(node, path...).(bool)
	return b
}

func timestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RubyDate, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
