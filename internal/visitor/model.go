// Package visitor tracks anonymous clients identified by a
// client-generated id.
package visitor

import "time"

// Visitor is an anonymous actor. It has no credential.
type Visitor struct {
	ID           string    `json:"visitorId"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
}
