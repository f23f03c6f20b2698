package config

import "strings"

// Format names the syntax a config file was read as.
type Format string

const (
	FormatNone  Format = "none"
	FormatJSONC Format = "jsonc"
	FormatTOML  Format = "toml"
)

// DetectFormat picks JSONC when the first non-whitespace character is `{`
// and TOML otherwise. Blank content has no format.
func DetectFormat(content string) Format {
	trimmed := strings.TrimSpace(content)
	switch {
	case trimmed == "":
		return FormatNone
	case strings.HasPrefix(trimmed, "{"):
		return FormatJSONC
	default:
		return FormatTOML
	}
}

// Parse overlays content onto base and validates the result.
func Parse(content string, base Config) (Config, []Warning, error) {
	switch DetectFormat(content) {
	case FormatJSONC:
		return parseJSONC(content, base)
	case FormatTOML:
		return parseTOML(content, base)
	default:
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil
	}
}
