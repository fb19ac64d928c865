package utils

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Identity is the persistent identity of this agent instance
type Identity struct {
	InstanceID string `json:"instance_id"`
}

// LoadOrCreateInstanceID ensures the agent keeps a stable instance ID
// across restarts. Env var takes priority, then a local file; a fresh
// ID is generated and persisted if neither exists.
func LoadOrCreateInstanceID() string {
	if envID := os.Getenv("INSTANCE_ID"); envID != "" {
		return envID
	}

	configDir := ".cmms"
	identityFile := filepath.Join(configDir, "identity.json")

	if data, err := os.ReadFile(identityFile); err == nil {
		var identity Identity
		if err := json.Unmarshal(data, &identity); err == nil && identity.InstanceID != "" {
			return identity.InstanceID
		}
	}

	identity := Identity{InstanceID: uuid.New().String()}
	_ = os.MkdirAll(configDir, 0755)
	data, _ := json.MarshalIndent(identity, "", "  ")
	_ = os.WriteFile(identityFile, data, 0600)

	return identity.InstanceID
}
