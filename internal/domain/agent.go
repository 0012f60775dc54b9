// Package domain contains core domain types for the AutoPDF application.
package domain

import (
	"time"
)

// Agent is a remotely hosted conversational agent mirrored into the local registry.
// ID is the opaque identifier assigned by the agent-hosting API.
type Agent struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Voice       string    `json:"voice"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Preference is a small persisted per-user setting.
type Preference struct {
	UserID    string    `json:"-"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PreferenceLastAgent remembers the agent a user selected last.
const PreferenceLastAgent = "last_agent"
