package wire

import (
	"strings"
)

const (
	clientsHeader  = "Clients Online:"
	sessionsHeader = "Available Sessions:"
)

// Listing is the body of a QU_ACK record: who is online and which sessions
// exist.
type Listing struct {
	Clients  []string
	Sessions []string
}

// Format renders the listing as QU_ACK data. Callers pass names in the order
// they should be displayed.
func (l Listing) Format() string {
	var b strings.Builder
	b.WriteString(clientsHeader)
	for _, c := range l.Clients {
		b.WriteByte(' ')
		b.WriteString(c)
	}

	b.WriteByte('\n')
	b.WriteString(sessionsHeader)
	for _, s := range l.Sessions {
		b.WriteByte(' ')
		b.WriteString(s)
	}

	return b.String()
}

// ParseListing reads QU_ACK data back into a Listing. Unknown lines are
// ignored so older servers that pad the body with blank lines still parse.
func ParseListing(data string) Listing {
	var l Listing
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, clientsHeader):
			l.Clients = strings.Fields(strings.TrimPrefix(line, clientsHeader))
		case strings.HasPrefix(line, sessionsHeader):
			l.Sessions = strings.Fields(strings.TrimPrefix(line, sessionsHeader))
		}
	}

	return l
}
