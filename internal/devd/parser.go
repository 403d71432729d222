package devd

import (
	"fmt"
	"strings"
)

const (
	atSep = " at "
	onSep = " on "
)

// ParseLine turns one devd line (without the trailing newline) into an event.
// Lines with an unrecognised leading byte yield ErrUnsupportedLine.
func ParseLine(line string) (Event, error) {
	if line == "" {
		return nil, &ParseError{Line: line, Err: ErrUnsupportedLine}
	}

	var (
		ev  Event
		err error
	)
	switch line[0] {
	case '+':
		ev, err = parseDevice(ActionAdd, line[1:])
	case '-':
		ev, err = parseDevice(ActionRemove, line[1:])
	case '?':
		ev, err = parseDevice(ActionUnknown, line[1:])
	case '!':
		ev, err = parseNotify(line[1:])
	default:
		err = ErrUnsupportedLine
	}
	if err != nil {
		return nil, &ParseError{Line: line, Err: err}
	}
	return ev, nil
}

// parseDevice handles "<name> at <key=value>* on <parent>".
func parseDevice(action Action, body string) (*DeviceEvent, error) {
	nameSection, rest, ok := strings.Cut(body, atSep)
	if !ok {
		return nil, ErrMissingAt
	}
	detailText, parent, ok := strings.Cut(rest, onSep)
	if !ok {
		return nil, ErrMissingOn
	}

	name, _, _ := strings.Cut(nameSection, " ")

	details, err := parseDetails(strings.TrimLeft(detailText, " "))
	if err != nil {
		return nil, err
	}

	return &DeviceEvent{
		Action:  action,
		Name:    name,
		Parent:  parent,
		Details: details,
	}, nil
}

// parseNotify handles "system=<s> subsystem=<sub> type=<t> [key=value]*".
// Details are only read after the type field.
func parseNotify(body string) (*NotifyEvent, error) {
	system, _, ok := notifyField(body, "system=")
	if !ok {
		return nil, fmt.Errorf("%w: system", ErrMissingField)
	}
	subsystem, _, ok := notifyField(body, "subsystem=")
	if !ok {
		return nil, fmt.Errorf("%w: subsystem", ErrMissingField)
	}
	typ, end, ok := notifyField(body, "type=")
	if !ok {
		return nil, fmt.Errorf("%w: type", ErrMissingField)
	}

	details, err := parseDetails(body[end:])
	if err != nil {
		return nil, err
	}

	return &NotifyEvent{
		System:    system,
		Subsystem: subsystem,
		Type:      typ,
		Details:   details,
	}, nil
}

// notifyField finds key as a whole token and returns its value together with
// the offset just past the value's terminating space.
func notifyField(body, key string) (value string, end int, ok bool) {
	from := 0
	for {
		i := strings.Index(body[from:], key)
		if i < 0 {
			return "", 0, false
		}
		i += from
		if i == 0 || body[i-1] == ' ' {
			start := i + len(key)
			if j := strings.IndexByte(body[start:], ' '); j >= 0 {
				return body[start : start+j], start + j + 1, true
			}
			return body[start:], len(body), true
		}
		from = i + 1
	}
}
