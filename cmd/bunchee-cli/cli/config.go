package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	configDir = ".bunchee"
	tokenFile = "token"
)

// TokenData is the saved login.
type TokenData struct {
	Server    string    `json:"server"`
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token is past its expiry at now.
func (t TokenData) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// configDirPath is $BUNCHEE_HOME, or ~/.bunchee.
func configDirPath() (string, error) {
	if dir := os.Getenv("BUNCHEE_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, configDir), nil
}

// SaveToken writes the login with 0600 permissions.
func SaveToken(data TokenData) error {
	dir, err := configDirPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("cannot create config directory %s: %w", dir, err)
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal token data: %w", err)
	}
	path := filepath.Join(dir, tokenFile)
	if err := os.WriteFile(path, b, 0600); err != nil {
		return fmt.Errorf("cannot write token file %s: %w", path, err)
	}
	return nil
}

// LoadToken reads the saved login.
func LoadToken() (TokenData, error) {
	dir, err := configDirPath()
	if err != nil {
		return TokenData{}, err
	}
	b, err := os.ReadFile(filepath.Join(dir, tokenFile))
	if errors.Is(err, os.ErrNotExist) {
		return TokenData{}, fmt.Errorf("not logged in (run: bunchee-cli login)")
	}
	if err != nil {
		return TokenData{}, fmt.Errorf("cannot read token file: %w", err)
	}
	var data TokenData
	if err := json.Unmarshal(b, &data); err != nil {
		return TokenData{}, fmt.Errorf("corrupt token file: %w", err)
	}
	return data, nil
}

// DeleteToken removes the saved login. A missing file is not an error.
func DeleteToken() error {
	dir, err := configDirPath()
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(dir, tokenFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cannot remove token file: %w", err)
	}
	return nil
}
