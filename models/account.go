package models

import "time"

// SourceAccount is a monitored account on the source platform.
type SourceAccount struct {
	ID        string    `json:"id"`
	Handle    string    `json:"handle"`
	CreatedAt time.Time `json:"created_at"`
}

// DestinationChannel is a connected channel on the destination platform.
// Credentials never leave the server.
type DestinationChannel struct {
	ID           string    `json:"id"`
	ChannelID    string    `json:"channel_id"`
	DisplayName  string    `json:"display_name"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenExpiry  time.Time `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
