package serialmux

import (
	"strconv"
	"strings"
)

// Line kinds seen on the inbound side of a link.
const (
	LineCommand  = "command"  // JSON object with a "cmd" field
	LineFlow     = "flow"     // JSON flow message from another sensor
	LineDistance = "distance" // bare range reading in metres
	LineUnknown  = "unknown"
)

// ClassifyLine returns the kind of an inbound line from its shape only;
// callers decode the payload.
func ClassifyLine(line string) string {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "{") {
		switch {
		case strings.Contains(line, `"cmd"`):
			return LineCommand
		case strings.Contains(line, `"optical_flow`):
			return LineFlow
		}
		return LineUnknown
	}
	if _, err := strconv.ParseFloat(line, 64); err == nil {
		return LineDistance
	}
	return LineUnknown
}
