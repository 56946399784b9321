package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rgf/internal/plugin"
)

// ParseYAML builds the plugin described by one YAML document.
func ParseYAML(source string, data []byte) (*plugin.Definition, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &Error{Code: ErrCodeSyntax, Source: source, Message: err.Error()}
	}
	if raw == nil {
		return nil, &Error{Code: ErrCodeNoPlugins, Source: source, Message: "empty manifest"}
	}
	doc, err := Decode(raw)
	if err != nil {
		return nil, withSource(err, source)
	}
	def, err := doc.Build()
	if err != nil {
		return nil, withSource(err, source)
	}
	return def, nil
}

// LoadYAML reads and parses a YAML manifest file.
func LoadYAML(path string) (*plugin.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Code: ErrCodeNotFound, Source: path, Message: fmt.Sprintf("read manifest: %v", err)}
	}
	return ParseYAML(path, data)
}

func withSource(err error, source string) error {
	if me, ok := err.(*Error); ok && me.Source == "" {
		me.Source = source
	}
	return err
}
