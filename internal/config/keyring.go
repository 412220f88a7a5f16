package config

import (
	"github.com/sirupsen/logrus"
	"github.com/zalando/go-keyring"

	"github.com/rohankatakam/patchgraph/internal/errors"
)

const (
	// KeyringService is the service name in the OS keychain
	KeyringService = "patchgraph"

	// KeyringNeo4jPasswordItem is the key for the Neo4j password
	KeyringNeo4jPasswordItem = "neo4j-password"
)

// KeyringManager handles secure credential storage in OS keychain
type KeyringManager struct {
	logger *logrus.Entry
}

// NewKeyringManager creates a new keyring manager
func NewKeyringManager() *KeyringManager {
	return &KeyringManager{
		logger: logrus.StandardLogger().WithField("component", "keyring"),
	}
}

// SaveNeo4jPassword stores the Neo4j password in the OS keychain
// - macOS: Keychain Access.app → "patchgraph" → "neo4j-password"
// - Windows: Credential Manager → "patchgraph"
// - Linux: Secret Service (requires libsecret)
func (km *KeyringManager) SaveNeo4jPassword(password string) error {
	if password == "" {
		return errors.ValidationErrorf("neo4j password cannot be empty")
	}

	if err := keyring.Set(KeyringService, KeyringNeo4jPasswordItem, password); err != nil {
		km.logger.WithError(err).Error("failed to save neo4j password to keychain")
		return errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityHigh, "failed to save to OS keychain")
	}

	km.logger.WithField("service", KeyringService).Info("neo4j password saved to keychain")
	return nil
}

// GetNeo4jPassword retrieves the Neo4j password, "" when not stored
func (km *KeyringManager) GetNeo4jPassword() (string, error) {
	password, err := keyring.Get(KeyringService, KeyringNeo4jPasswordItem)
	if err == keyring.ErrNotFound {
		return "", nil
	}
	if err != nil {
		km.logger.WithError(err).Error("failed to get neo4j password from keychain")
		return "", errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityMedium, "failed to read from OS keychain")
	}

	km.logger.Debug("neo4j password retrieved from keychain")
	return password, nil
}

// DeleteNeo4jPassword removes the Neo4j password from the OS keychain
func (km *KeyringManager) DeleteNeo4jPassword() error {
	err := keyring.Delete(KeyringService, KeyringNeo4jPasswordItem)
	if err == keyring.ErrNotFound {
		return nil
	}
	if err != nil {
		km.logger.WithError(err).Error("failed to delete neo4j password from keychain")
		return errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityMedium, "failed to delete from OS keychain")
	}

	km.logger.Info("neo4j password deleted from keychain")
	return nil
}

// IsAvailable checks if OS keychain is available.
// Returns false on headless systems (CI/CD) where keychain isn't available.
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(KeyringService, "test-availability")
	if err == keyring.ErrNotFound {
		return true
	}
	if err != nil {
		km.logger.WithError(err).Debug("keychain not available")
		return false
	}
	return true
}

// MaskSecret masks a secret for display
func MaskSecret(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) < 8 {
		return "***"
	}
	return secret[:2] + "..." + secret[len(secret)-2:]
}
