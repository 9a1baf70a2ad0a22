package models

import "time"

// Application is the tenant. Clients address it by Token, never by ID.
//
// ChatsCount is a cached aggregate: only the reconciliation sweep writes it,
// so it can trail the real number of chat rows.
type Application struct {
	ID         int64     `json:"-"`
	Token      string    `json:"token"`
	Name       string    `json:"name"`
	ChatsCount int64     `json:"chats_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Chat is scoped to one application. Number is allocated by the counter
// store before the row exists and is unique per ApplicationID.
type Chat struct {
	ID            int64     `json:"-"`
	ApplicationID int64     `json:"-"`
	Number        int64     `json:"number"`
	MessagesCount int64     `json:"messages_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Message is scoped to one chat; Number is unique per ChatID.
type Message struct {
	ID        int64     `json:"-"`
	ChatID    int64     `json:"-"`
	Number    int64     `json:"number"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScopeStats is what a sweep reads for one scope: how many child rows are
// persisted and the highest number among them.
type ScopeStats struct {
	Count     int64
	MaxNumber int64
}

// ChatRef identifies a chat together with the counter scope it lives in.
type ChatRef struct {
	ID               int64
	Number           int64
	ApplicationToken string
}
