package auth

import (
	"crypto/subtle"
	"fmt"
)

// Role names the access level granted by the gate
type Role string

const (
	// RoleOperational allows batch submission and processing operations
	RoleOperational Role = "operational"
	// RoleReporting allows batch submission plus archive browsing and exports
	RoleReporting Role = "reporting"
)

// Secrets holds the gate passwords
type Secrets struct {
	OperationalPassword string
	ReportingPassword   string
}

// Gate authenticates users against role passwords
type Gate struct {
	provider SecretProvider
}

// SecretProvider returns the current gate secrets
type SecretProvider interface {
	Secrets() (*Secrets, error)
}

// NewGate creates Gate instance
func NewGate(provider SecretProvider) (*Gate, error) {
	if provider == nil {
		return nil, fmt.Errorf("no secret provider")
	}
	return &Gate{provider: provider}, nil
}

// Authenticate returns the role for the password or an error
func (g *Gate) Authenticate(password string) (Role, error) {
	secrets, err := g.provider.Secrets()
	if err != nil {
		return "", fmt.Errorf("can't load secrets: %w", err)
	}
	if eq(password, secrets.OperationalPassword) {
		return RoleOperational, nil
	}
	if eq(password, secrets.ReportingPassword) {
		return RoleReporting, nil
	}
	return "", fmt.Errorf("wrong password")
}

// Allows checks if the role covers the required one.
// Reporting users may submit batches too
func (r Role) Allows(required Role) bool {
	if r == required {
		return true
	}
	return r == RoleReporting && required == RoleOperational
}

func eq(got, want string) bool {
	return want != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
