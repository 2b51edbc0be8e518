package twitter

import "time"

type User struct {
	ID              string    `json:"id"`
	ScreenName      string    `json:"username"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Location        string    `json:"location"`
	URL             string    `json:"url"`
	ProfileImageURL string    `json:"profile_image_url"`
	FollowersCount  int       `json:"followers_count"`
	FollowingCount  int       `json:"following_count"`
	TweetsCount     int       `json:"tweets_count"`
	Verified        bool      `json:"verified"`
	BlueVerified    bool      `json:"blue_verified"`
	Protected       bool      `json:"protected"`
	CreatedAt       time.Time `json:"created_at"`

	pinnedTweetIDs []string
}

type Media struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type Tweet struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	Lang           string    `json:"lang"`
	CreatedAt      time.Time `json:"created_at"`
	Likes          int       `json:"likes"`
	Retweets       int       `json:"retweets"`
	Replies        int       `json:"replies"`
	Quotes         int       `json:"quotes"`
	Views          int       `json:"views"`
	Hashtags       []string  `json:"hashtags"`
	Media          []Media   `json:"media"`
	IsRetweet      bool      `json:"is_retweet"`
	IsReply        bool      `json:"is_reply"`
	InReplyToID    string    `json:"in_reply_to_id,omitempty"`
	User           *User     `json:"user"`
	conversationID string
}

// Session is the cookie state that authenticates the web backend.
type Session struct {
	AuthToken string    `json:"auth_token"`
	CT0       string    `json:"ct0"`
	SavedAt   time.Time `json:"saved_at"`
}

func (s Session) Valid() bool {
	return s.AuthToken != "" && s.CT0 != ""
}

// Credentials are the fallback used when no stored session verifies.
type Credentials struct {
	Username  string
	Password  string
	AuthToken string
	CT0       string
}
