package auth

// StaticSecrets is a SecretProvider over fixed values, used when no consul is configured
type StaticSecrets struct {
	Values Secrets
}

// Secrets returns the fixed values
func (p *StaticSecrets) Secrets() (*Secrets, error) {
	return &p.Values, nil
}
