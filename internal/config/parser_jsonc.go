package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload fileConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	return finish(payload, base)
}

// normalizeJSONC blanks comments and drops trailing commas in one pass.
// Removed bytes become spaces and newlines are kept, so decoder offsets
// still point at the original line and column.
func normalizeJSONC(content string) (string, error) {
	out := []byte(content)
	pendingComma := -1

	const (
		code = iota
		str
		strEscape
		lineComment
		blockComment
	)
	mode := code

	for i := 0; i < len(out); i++ {
		ch := out[i]
		switch mode {
		case str:
			switch ch {
			case '\\':
				mode = strEscape
			case '"':
				mode = code
			}
		case strEscape:
			mode = str
		case lineComment:
			if ch == '\n' || ch == '\r' {
				mode = code
				continue
			}
			out[i] = ' '
		case blockComment:
			if ch == '*' && i+1 < len(out) && out[i+1] == '/' {
				out[i], out[i+1] = ' ', ' '
				i++
				mode = code
				continue
			}
			if ch != '\n' && ch != '\r' && ch != '\t' {
				out[i] = ' '
			}
		default:
			if ch == '/' && i+1 < len(out) && (out[i+1] == '/' || out[i+1] == '*') {
				if out[i+1] == '/' {
					mode = lineComment
				} else {
					mode = blockComment
				}
				out[i], out[i+1] = ' ', ' '
				i++
				continue
			}
			if isJSONWhitespace(ch) {
				continue
			}
			if pendingComma >= 0 && (ch == '}' || ch == ']') {
				out[pendingComma] = ' '
			}
			pendingComma = -1
			switch ch {
			case ',':
				pendingComma = i
			case '"':
				mode = str
			}
		}
	}

	if mode == blockComment {
		return "", errors.New("unterminated block comment in JSONC")
	}
	return string(out), nil
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return errors.New("multiple JSON values are not allowed")
	}
	return err
}

var unknownFieldPattern = regexp.MustCompile(`unknown field "([^"]+)"`)

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	// The decoder reports unknown keys without an offset; point at the
	// first occurrence of the key instead.
	if match := unknownFieldPattern.FindStringSubmatch(err.Error()); match != nil {
		if offset := keyOffset(content, match[1]); offset >= 0 {
			line, col := offsetToLineCol(content, int64(offset)+1)
			return fmt.Errorf("line %d column %d: %w", line, col, err)
		}
	}

	return err
}

// keyOffset returns the byte offset of the first `"key":` in content, or -1.
func keyOffset(content string, key string) int {
	pattern := regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `"\s*:`)
	loc := pattern.FindStringIndex(content)
	if loc == nil {
		return -1
	}
	return loc[0]
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := min(int(offset), len(content))
	line, col := 1, 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
