// Package events publishes user lifecycle events.
package events

import (
	"context"
	"time"
)

type Type string

const (
	UserRegistered   Type = "user_registered"
	UserLoggedIn     Type = "user_logged_in"
	UserLoggedOut    Type = "user_logged_out"
	SessionRefreshed Type = "session_refreshed"
)

type Event struct {
	Type     Type      `json:"type"`
	Username string    `json:"username"`
	At       time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
