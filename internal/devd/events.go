package devd

// Action is the kind of device event. Values are bit flags so they can be
// combined into a registration mask.
type Action uint8

const (
	ActionAdd     Action = 0x02
	ActionRemove  Action = 0x04
	ActionUnknown Action = 0x08

	ActionAll = ActionAdd | ActionRemove | ActionUnknown
)

func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "Add"
	case ActionRemove:
		return "Remove"
	case ActionUnknown:
		return "Unknown"
	default:
		return "Invalid"
	}
}

// Detail is one key=value pair attached to an event.
type Detail struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Details keeps the wire order. Keys may repeat.
type Details []Detail

// Get returns the value of the first detail with the given key.
func (d Details) Get(key string) (string, bool) {
	for _, kv := range d {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Event is either a *DeviceEvent or a *NotifyEvent.
type Event interface {
	eventSealed()
}

// DeviceEvent is an attach, detach or unknown-device line ("+", "-" or "?").
type DeviceEvent struct {
	Action  Action
	Name    string
	Parent  string
	Details Details
}

func (*DeviceEvent) eventSealed() {}

// NotifyEvent is a generic kernel notification line ("!").
type NotifyEvent struct {
	System    string
	Subsystem string
	Type      string
	Details   Details
}

func (*NotifyEvent) eventSealed() {}

type DeviceHandler func(event DeviceEvent)

type NotifyHandler func(event NotifyEvent)
