//go:build linux

package linux

import (
	"fmt"
	"os/exec"
	"strings"
)

// SettingsService drives the desktop's settings scheme through the
// gsettings CLI. Values are kept in GVariant serialized form (strings stay
// quoted), so a value read with Get can be written back with Set for any
// key type.
type SettingsService struct {
	schema string
}

func (s *SettingsService) ListKeys() ([]string, error) {
	out, err := exec.Command("gsettings", "list-keys", s.schema).Output()
	if err != nil {
		return nil, fmt.Errorf("list keys of %s: %w", s.schema, err)
	}

	var keys []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			keys = append(keys, line)
		}
	}
	return keys, nil
}

func (s *SettingsService) Get(key string) (string, error) {
	out, err := exec.Command("gsettings", "get", s.schema, key).Output()
	if err != nil {
		return "", fmt.Errorf("get %s %s: %w", s.schema, key, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (s *SettingsService) Set(key, value string) error {
	if err := exec.Command("gsettings", "set", s.schema, key, value).Run(); err != nil {
		return fmt.Errorf("set %s %s: %w", s.schema, key, err)
	}
	return nil
}
