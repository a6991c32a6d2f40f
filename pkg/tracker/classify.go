package tracker

import (
	"regexp"
	"strings"
)

// Shape is the classification of one broker log line
type Shape int

const (
	ShapeUnrecognized Shape = iota
	ShapeConnect
	ShapeDisconnect
	ShapeSuperseded
)

// String returns the shape name used in logs and metrics
func (s Shape) String() string {
	switch s {
	case ShapeConnect:
		return "connect"
	case ShapeDisconnect:
		return "disconnect"
	case ShapeSuperseded:
		return "superseded"
	default:
		return "unrecognized"
	}
}

// Line is a classified log line. Only the fields relevant to the shape
// are set.
type Line struct {
	Shape    Shape
	ClientID string
	Address  string
	Username string
}

// Patterns are tried in order; the superseded notice must be matched
// before the disconnect shapes.
var patterns = []struct {
	shape Shape
	re    *regexp.Regexp
}{
	{ShapeSuperseded, regexp.MustCompile(`Client (\S+) already connected, closing old connection`)},
	{ShapeConnect, regexp.MustCompile(`New client connected from (\S+) as (\S+) \(([^)]*)\)`)},
	{ShapeDisconnect, regexp.MustCompile(`Client (\S+) (?:disconnected|closed its connection|has exceeded timeout)`)},
}

var usernamePattern = regexp.MustCompile(`u'([^']+)'`)

// Classify maps a raw broker log line to its shape
func Classify(raw string) Line {
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}

		switch p.shape {
		case ShapeConnect:
			line := Line{
				Shape:    ShapeConnect,
				Address:  stripPort(m[1]),
				ClientID: m[2],
			}
			if u := usernamePattern.FindStringSubmatch(m[3]); u != nil {
				line.Username = u[1]
			}
			return line
		default:
			return Line{Shape: p.shape, ClientID: m[1]}
		}
	}
	return Line{Shape: ShapeUnrecognized}
}

// stripPort removes the trailing ":port" from a broker peer address.
// IPv6 peers are printed without brackets, so only the last colon
// separates the port.
func stripPort(addr string) string {
	i := strings.LastIndex(addr, ":")
	if i <= 0 || !isPort(addr[i+1:]) {
		return addr
	}
	return strings.Trim(addr[:i], "[]")
}

func isPort(s string) bool {
	if s == "" || len(s) > 5 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
