package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RequestLog is one outbound call made through the proxy gateway.
type RequestLog struct {
	bun.BaseModel `bun:"table:request_log,alias:rl"`

	ID         uuid.UUID `bun:",pk,type:uuid"`
	Time       time.Time `bun:",notnull"`
	Method     string    `bun:",notnull"`
	URL        string    `bun:",notnull"`
	Provider   string    `bun:",notnull"`
	ProxyUser  string
	Country    string
	IPSource   string
	Session    string
	Browser    string
	StatusCode int
	DurationMS int64
	ErrorMsg   string
}
