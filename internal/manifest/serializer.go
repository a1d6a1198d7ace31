package manifest

import (
	"encoding/json"
	"fmt"
	"os"

	"dupmover/internal/record"
)

func Save(m *Manifest, path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	if m.Generator != Generator {
		return nil, fmt.Errorf("not a %s manifest (generator %q)", Generator, m.Generator)
	}
	if m.Records == nil {
		m.Records = []record.Duplicate{}
	}

	return &m, nil
}
