package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrResponseParse = errors.New("RESPONSE_PARSE_FAILED")

var (
	fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	bareJSONRe   = regexp.MustCompile(`(?s)\{.*\}`)
)

// ParseJSON decodes a JSON object out of model output, tolerating markdown
// code fences and surrounding prose.
func ParseJSON(content string, v interface{}) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: empty content", ErrResponseParse)
	}

	candidate := strings.TrimSpace(content)
	if m := fencedJSONRe.FindStringSubmatch(candidate); m != nil {
		candidate = m[1]
	} else if m := bareJSONRe.FindString(candidate); m != "" {
		candidate = m
	}

	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		return fmt.Errorf("%w: %v", ErrResponseParse, err)
	}
	return nil
}
