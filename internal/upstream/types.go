package upstream

import "time"

// Node is a machine registered with the upstream control plane. Entities are
// owned by the upstream service and fetched per request, never cached.
type Node struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	User        string    `json:"user"`
	IPAddresses []string  `json:"ipAddresses"`
	Online      bool      `json:"online"`
	Expired     bool      `json:"expired"`
	LastSeen    time.Time `json:"lastSeen"`
	Expiry      time.Time `json:"expiry"`
}

// Route is a subnet route advertised by a node.
type Route struct {
	ID         string `json:"id"`
	NodeID     string `json:"nodeId"`
	Prefix     string `json:"prefix"`
	Advertised bool   `json:"advertised"`
	Enabled    bool   `json:"enabled"`
	IsPrimary  bool   `json:"isPrimary"`
}

// PreAuthKey is a node registration key.
type PreAuthKey struct {
	ID         string    `json:"id"`
	Key        string    `json:"key"`
	User       string    `json:"user"`
	Reusable   bool      `json:"reusable"`
	Ephemeral  bool      `json:"ephemeral"`
	Used       bool      `json:"used"`
	Expiration time.Time `json:"expiration"`
	CreatedAt  time.Time `json:"createdAt"`
}

// APIKey is an upstream API credential. Only the prefix is ever returned
// after creation.
type APIKey struct {
	ID         string    `json:"id"`
	Prefix     string    `json:"prefix"`
	Expiration time.Time `json:"expiration"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeen   time.Time `json:"lastSeen"`
}

// User is an account namespace on the upstream service.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreatePreAuthKeyRequest describes a new registration key.
type CreatePreAuthKeyRequest struct {
	User       string    `json:"user" validate:"required"`
	Reusable   bool      `json:"reusable"`
	Ephemeral  bool      `json:"ephemeral"`
	Expiration time.Time `json:"expiration,omitempty"`
}
