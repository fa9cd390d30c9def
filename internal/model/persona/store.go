package persona

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML persona override. Fields left empty keep the defaults.
func LoadFile(path string) (Persona, error) {
	base := Default()
	if strings.TrimSpace(path) == "" {
		return base, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, fmt.Errorf("read persona file: %w", err)
	}

	var override Persona
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return Persona{}, fmt.Errorf("parse persona file %s: %w", path, err)
	}

	return merge(base, override), nil
}

func merge(base, override Persona) Persona {
	pick := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	pick(&base.ID, override.ID)
	pick(&base.Name, override.Name)
	pick(&base.Company, override.Company)
	pick(&base.Title, override.Title)
	pick(&base.Tone, override.Tone)
	pick(&base.Hotline, override.Hotline)
	pick(&base.OpeningLine, override.OpeningLine)
	if len(override.Focus) > 0 {
		base.Focus = append([]string(nil), override.Focus...)
	}
	if len(override.Rules) > 0 {
		base.Rules = append([]string(nil), override.Rules...)
	}
	return base
}
