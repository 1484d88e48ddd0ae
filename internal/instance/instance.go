// Package instance gives each relayd data directory a stable identity.
package instance

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const fileName = "instance_id"

// GetOrCreateID returns the UUID stored in dir/instance_id, creating it on
// first use. An unreadable or malformed file is replaced.
func GetOrCreateID(dir string) (string, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".tokligence", "relay")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create instance directory: %w", err)
	}

	path := filepath.Join(dir, fileName)
	if data, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(data))
		if _, err := uuid.Parse(id); err == nil {
			return id, nil
		}
	}

	id := uuid.New().String()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to write instance id: %w", err)
	}
	return id, nil
}
