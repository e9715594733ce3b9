package brain

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrNoJSON is returned when a response contains no JSON object.
var ErrNoJSON = errors.New("no JSON object in response")

// ErrSchema is returned when a decoded response fails validation.
var ErrSchema = errors.New("response does not match schema")

// ExtractJSON returns the outermost {...} span of a model response,
// discarding any prose or code fences around it.
func ExtractJSON(content string) (string, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("%w: %s", ErrNoJSON, truncate(content, 200))
	}
	return content[start : end+1], nil
}

// Decode extracts the JSON object from content into out and validates it.
// out is reset first so a previous failed attempt leaves nothing behind.
func Decode(content string, out Validator) error {
	raw, err := ExtractJSON(content)
	if err != nil {
		return err
	}

	if rv := reflect.ValueOf(out); rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv.Elem().Set(reflect.Zero(rv.Elem().Type()))
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := out.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}
