package mcp

import (
	"bufio"
	"io"
	"strings"
)

const maxEventSize = 4 << 20

// Event is one server-sent event. Name defaults to "message".
type Event struct {
	Name string
	Data string
	ID   string
}

// ReadEvents parses a text/event-stream body and calls fn for each event.
// It returns fn's first error, or the scanner error when the stream ends.
func ReadEvents(r io.Reader, fn func(Event) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var (
		ev      Event
		data    []string
		pending bool
	)
	dispatch := func() error {
		if !pending {
			return nil
		}
		ev.Data = strings.Join(data, "\n")
		if ev.Name == "" {
			ev.Name = "message"
		}
		err := fn(ev)
		ev, data, pending = Event{}, nil, false
		return err
	}

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line marks end of event
		if line == "" {
			if err := dispatch(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
			pending = true
		case "data":
			data = append(data, value)
			pending = true
		case "id":
			ev.ID = value
		}
	}

	if err := dispatch(); err != nil {
		return err
	}
	return scanner.Err()
}
