package chatbot

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type fileDocument struct {
	Chatbots []fileEntry `yaml:"chatbots"`
}

type fileEntry struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	URL     string `yaml:"url"`
	Enabled *bool  `yaml:"enabled"`
}

// LoadFile reads a YAML registry file. Entries default to enabled and to the
// kind matching their id.
func LoadFile(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chatbot registry: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML registry document.
func Parse(data []byte) ([]Target, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode chatbot registry: %w", err)
	}
	if len(doc.Chatbots) == 0 {
		return nil, fmt.Errorf("chatbot registry is empty")
	}

	targets := make([]Target, 0, len(doc.Chatbots))
	for i, entry := range doc.Chatbots {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			return nil, fmt.Errorf("chatbot #%d: id is required", i+1)
		}

		rawKind := strings.TrimSpace(entry.Kind)
		if rawKind == "" {
			rawKind = id
		}
		kind, err := ParseKind(rawKind)
		if err != nil {
			return nil, fmt.Errorf("chatbot %s: %w", id, err)
		}

		name := strings.TrimSpace(entry.Name)
		if name == "" {
			name = id
		}

		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}

		targets = append(targets, Target{
			ID:      id,
			Name:    name,
			URL:     strings.TrimSpace(entry.URL),
			Enabled: enabled,
			Kind:    kind,
		})
	}

	if err := Validate(targets); err != nil {
		return nil, err
	}
	return targets, nil
}

// Validate rejects duplicate ids and a2a targets without an endpoint.
func Validate(targets []Target) error {
	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("duplicate chatbot id %q", t.ID)
		}
		seen[t.ID] = struct{}{}
		if t.Kind == KindA2A && t.URL == "" {
			return fmt.Errorf("chatbot %s: a2a targets need a url", t.ID)
		}
	}
	return nil
}

// Open builds the registry: the YAML file at path when set, the built-in
// seed otherwise.
func Open(path string) (*MemoryStore, error) {
	if strings.TrimSpace(path) == "" {
		return NewMemoryStore(Seed()), nil
	}

	targets, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewMemoryStore(targets), nil
}
