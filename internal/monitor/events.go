package monitor

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmdmdm-nz/devdwatch/internal/devd"
)

type Kind string

const (
	KindDevice Kind = "device"
	KindNotify Kind = "notify"
)

// Record is the owned, serialisable form of a devd event handed to
// subscribers.
type Record struct {
	ID        string       `json:"id"`
	Time      time.Time    `json:"time"`
	Kind      Kind         `json:"kind"`
	Action    string       `json:"action,omitempty"`
	Name      string       `json:"name,omitempty"`
	Parent    string       `json:"parent,omitempty"`
	System    string       `json:"system,omitempty"`
	Subsystem string       `json:"subsystem,omitempty"`
	Type      string       `json:"type,omitempty"`
	Details   devd.Details `json:"details,omitempty"`
}

func newDeviceRecord(ev devd.DeviceEvent, now time.Time) Record {
	return Record{
		ID:      uuid.NewString(),
		Time:    now,
		Kind:    KindDevice,
		Action:  ev.Action.String(),
		Name:    ev.Name,
		Parent:  ev.Parent,
		Details: slices.Clone(ev.Details),
	}
}

func newNotifyRecord(ev devd.NotifyEvent, now time.Time) Record {
	return Record{
		ID:        uuid.NewString(),
		Time:      now,
		Kind:      KindNotify,
		System:    ev.System,
		Subsystem: ev.Subsystem,
		Type:      ev.Type,
		Details:   slices.Clone(ev.Details),
	}
}
