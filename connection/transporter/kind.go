package transporter

import (
	"fmt"
	"strings"
)

// Kind identifies one push transport. The set is closed: every Kind has exactly
// one Transporter implementation registered in a Table.
type Kind int

const (
	WebSocket Kind = iota + 1
	SSE
	LongPolling
	Streaming
)

var kindNames = map[Kind]string{
	WebSocket:   "websocket",
	SSE:         "sse",
	LongPolling: "long-polling",
	Streaming:   "streaming",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// Kinds returns every known kind in their canonical preference order
func Kinds() []Kind {
	return []Kind{WebSocket, SSE, LongPolling, Streaming}
}

func ParseKind(name string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")

	for kind, kindName := range kindNames {
		if kindName == normalized {
			return kind, nil
		}
	}

	// a few common spellings
	switch normalized {
	case "ws":
		return WebSocket, nil
	case "longpolling", "long-poll":
		return LongPolling, nil
	case "server-sent-events":
		return SSE, nil
	}

	return 0, fmt.Errorf("unknown transport %q", name)
}
