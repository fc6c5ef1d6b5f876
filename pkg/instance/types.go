package instance

import "time"

// SetupType distinguishes the two authentication schemes an Umami backend
// can use.
type SetupType string

const (
	// SetupSelfHosted authenticates with username/password and a short-lived
	// bearer token re-minted via the login endpoint.
	SetupSelfHosted SetupType = "self-hosted"

	// SetupCloud authenticates with a long-lived static API key.
	SetupCloud SetupType = "cloud"
)

// Instance is one configured connection to a remote Umami backend.
// Exactly one instance is active at a time.
type Instance struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Host         string    `json:"host"` // normalized absolute URL, no trailing slash
	SetupType    SetupType `json:"setupType"`
	Username     string    `json:"username,omitempty"` // self-hosted only
	RemoteUserID string    `json:"remoteUserId,omitempty"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Secrets is the sensitive material associated 1:1 with an instance, stored
// in the secret tier. Cloud instances never populate Token/Password;
// self-hosted instances never populate APIKey.
type Secrets struct {
	Token    string `json:"token,omitempty"`    // bearer JWT, self-hosted, short-lived
	APIKey   string `json:"apiKey,omitempty"`   // cloud, long-lived, never refreshed
	Password string `json:"password,omitempty"` // self-hosted, used to re-mint the token
}
