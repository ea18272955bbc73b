package rates

import "github.com/fatih/color"

// Severity is the presentation band of an annualized funding rate. It only
// affects console rendering, never persistence.
type Severity int

const (
	SeverityNeutral Severity = iota
	SeverityElevated
	SeverityHigh
	SeveritySevereHigh
	SeveritySevereLow
)

// Classify maps a rate to its band. Bands are evaluated in precedence order;
// the first match wins.
func Classify(rate float64) Severity {
	switch {
	case rate > 50:
		return SeveritySevereHigh
	case rate > 30:
		return SeverityHigh
	case rate > 5:
		return SeverityElevated
	case rate < -10:
		return SeveritySevereLow
	default:
		return SeverityNeutral
	}
}

func (s Severity) String() string {
	switch s {
	case SeveritySevereHigh:
		return "severe-high"
	case SeverityHigh:
		return "high"
	case SeverityElevated:
		return "elevated"
	case SeveritySevereLow:
		return "severe-low"
	default:
		return "neutral"
	}
}

var severityColors = map[Severity]*color.Color{
	SeveritySevereHigh: color.New(color.FgBlack, color.BgRed),
	SeverityHigh:       color.New(color.FgBlack, color.BgYellow),
	SeverityElevated:   color.New(color.FgBlack, color.BgCyan),
	SeveritySevereLow:  color.New(color.FgBlack, color.BgGreen),
	SeverityNeutral:    color.New(color.FgBlack, color.BgHiGreen),
}

// Color returns the console style for the band.
func (s Severity) Color() *color.Color {
	if c, ok := severityColors[s]; ok {
		return c
	}
	return severityColors[SeverityNeutral]
}
