package models

import "time"

// Client is an authenticated game client driving one level session.
type Client struct {
	// From JWT claims
	ID          string `json:"id"`
	Username    string `json:"username"`
	Permissions int64  `json:"permissions"`
	Activated   int64  `json:"activated"`

	// Connection state
	Connected   bool      `json:"connected"`
	ConnectedAt time.Time `json:"connected_at"`

	SessionID string `json:"session_id"`
}

// IsActive checks if the account is activated and not banned
func (c *Client) IsActive() bool {
	// activated > 0 means activated
	// activated == 0 means not activated
	// activated == -1 means banned
	return c.Activated > 0
}

// IsBanned checks if the account is banned
func (c *Client) IsBanned() bool {
	return c.Activated == -1
}
