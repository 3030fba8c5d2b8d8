package actors

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rendis/claimflow/pkg/schema"
)

// Definition describes a configured actor: its role, display name,
// system instructions, and the tool names it may call.
type Definition struct {
	Role         string   `yaml:"role"`
	Name         string   `yaml:"name"`
	Instructions string   `yaml:"instructions"`
	Tools        []string `yaml:"tools"`
	Description  string   `yaml:"description"`
}

type definitionsFile struct {
	Actors []Definition `yaml:"actors"`
}

// LoadDefinitions reads actor definitions from a YAML file and applies
// defaults: Name falls back to a title-cased role, Description to the
// first instruction line.
func LoadDefinitions(path string) ([]Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "actor config not found: %s", path).WithCause(err)
	}
	return ParseDefinitions(raw)
}

// ParseDefinitions parses YAML actor definitions from raw bytes.
func ParseDefinitions(raw []byte) ([]Definition, error) {
	var file definitionsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "invalid actor config").WithCause(err)
	}
	if len(file.Actors) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "actor config missing 'actors' section")
	}

	defs := make([]Definition, 0, len(file.Actors))
	for _, def := range file.Actors {
		if def.Role == "" || def.Instructions == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"actor definition missing role or instructions (role=%q)", def.Role)
		}
		if err := ValidateRole(def.Role); err != nil {
			return nil, err
		}
		if def.Name == "" {
			def.Name = displayName(def.Role)
		}
		if def.Description == "" {
			def.Description = firstLine(def.Instructions)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func displayName(role string) string {
	parts := strings.Split(role, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
