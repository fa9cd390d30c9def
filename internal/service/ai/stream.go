package ai

import (
	"encoding/json"
	"strings"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// chunk is one streamed completion fragment.
type chunk struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// LineResult is the interpretation of one line of a provider stream.
type LineResult int

const (
	// LineSkip means the line carries nothing usable: empty, malformed JSON or no choices.
	LineSkip LineResult = iota
	// LineDelta means the line carried a content token (possibly empty).
	LineDelta
	// LineDone means the stream sentinel was reached.
	LineDone
)

// ParseLine interprets one line of an event stream. Lines that are not valid
// JSON are skipped rather than treated as failures.
func ParseLine(line string) (string, LineResult) {
	if line == "" {
		return "", LineSkip
	}

	payload := strings.TrimPrefix(line, dataPrefix)
	if payload == doneSentinel {
		return "", LineDone
	}

	var c chunk
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return "", LineSkip
	}
	if len(c.Choices) == 0 {
		return "", LineSkip
	}

	content := c.Choices[0].Delta.Content
	if content == nil {
		return "", LineDelta
	}
	return *content, LineDelta
}
