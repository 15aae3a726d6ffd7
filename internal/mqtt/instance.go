package mqtt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// instanceFile holds the deployment's stable identity under data_dir.
const instanceFile = "usher.instance"

// LoadOrCreateInstanceID returns this deployment's stable instance ID,
// minting and persisting a UUIDv7 on first use. The ID is the topic
// segment clients address, so it must survive restarts and config
// renames; a file that fails to parse as a UUID is treated as absent
// and replaced rather than poisoning every topic.
func LoadOrCreateInstanceID(dataDir string) (string, error) {
	path := filepath.Join(dataDir, instanceFile)

	if raw, err := os.ReadFile(path); err == nil {
		if id, err := uuid.Parse(strings.TrimSpace(string(raw))); err == nil {
			return id.String(), nil
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("mint instance ID: %w", err)
	}

	// 0600: nothing else needs to read it, and it doubles as a hint that
	// the file is state, not configuration.
	if err := os.WriteFile(path, []byte(id.String()+"\n"), 0600); err != nil {
		return "", fmt.Errorf("persist instance ID to %s: %w", path, err)
	}

	return id.String(), nil
}
