package resume

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// LoadProfile reads a profile file. Files ending in .json are decoded as JSON,
// everything else as YAML.
func LoadProfile(path string) (schemas.CandidateProfile, error) {
	var p schemas.CandidateProfile
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &p)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&p)
	}
	if err != nil {
		return p, fmt.Errorf("decode profile %s: %w", filepath.Base(path), err)
	}
	p.Normalize()
	return p, nil
}

// SaveProfile writes p as YAML, creating parent directories as needed.
func SaveProfile(path string, p schemas.CandidateProfile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create profile directory: %w", err)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}
