package card

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed template.json
var defaultTemplate []byte

// Template is the parsed Adaptive Card skeleton. It is loaded once at startup
// and treated as read-only: rendering substitutes into a freshly built
// structure instead of mutating a copy, so a single Template is safe to share
// between the scheduled run and a concurrent manual trigger.
type Template struct {
	root map[string]any
}

// LoadTemplate parses the template at path, or the embedded default when path
// is empty.
func LoadTemplate(path string) (*Template, error) {
	raw := defaultTemplate
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read card template: %w", err)
		}
		raw = data
	}

	var root map[string]any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("failed to parse card template: %w", err)
	}
	if _, ok := root["body"].([]any); !ok {
		return nil, fmt.Errorf("card template has no body array")
	}
	return &Template{root: root}, nil
}
