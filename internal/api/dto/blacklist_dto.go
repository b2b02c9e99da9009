package dto

import "time"

// BlacklistRequest bars a user from opening tickets. A nil Until is
// permanent.
type BlacklistRequest struct {
	UserID string     `json:"user_id"`
	Until  *time.Time `json:"until"`
}
