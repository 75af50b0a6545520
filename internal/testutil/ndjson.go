package testutil

import (
	"bufio"
	"encoding/json"
	"strings"
	"testing"
)

// Frame represents one parsed line of a newline-delimited JSON stream.
type Frame struct {
	Type string         // value of the "type" field; "" for the final bare object
	Data string         // value of the "data" field when it is a string
	Raw  map[string]any // full decoded object
}

// ParseNDJSON parses a newline-delimited JSON stream into frames.
// Blank lines are skipped; any line that fails to decode fails the test.
//
// Example:
//
//	frames := testutil.ParseNDJSON(t, rec.Body.String())
//	if frames[len(frames)-1].Type != "" {
//	    t.Fatal("stream did not end with the final response object")
//	}
func ParseNDJSON(t *testing.T, body string) []Frame {
	t.Helper()

	var frames []Frame
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		var raw map[string]any
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			t.Fatalf("NDJSON parse error at line %d: %v (line: %q)", lineNum, err, line)
		}

		frame := Frame{Raw: raw}
		if v, ok := raw["type"].(string); ok {
			frame.Type = v
		}
		if v, ok := raw["data"].(string); ok {
			frame.Data = v
		}
		frames = append(frames, frame)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("NDJSON scan error: %v", err)
	}

	return frames
}

// FindFrame finds the first frame of the given type.
// Returns nil if not found.
func FindFrame(frames []Frame, frameType string) *Frame {
	for i := range frames {
		if frames[i].Type == frameType {
			return &frames[i]
		}
	}
	return nil
}

// FindAllFrames finds all frames of the given type, in order.
func FindAllFrames(frames []Frame, frameType string) []Frame {
	var found []Frame
	for _, f := range frames {
		if f.Type == frameType {
			found = append(found, f)
		}
	}
	return found
}

// ConcatData concatenates the Data fields of all frames of the given type,
// in stream order.
func ConcatData(frames []Frame, frameType string) string {
	var sb strings.Builder
	for _, f := range frames {
		if f.Type == frameType {
			sb.WriteString(f.Data)
		}
	}
	return sb.String()
}
