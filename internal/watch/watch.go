// Package watch loads handler rules from YAML and registers them on a devd
// registry. Every matching event is logged.
package watch

import (
	"errors"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/dmdmdm-nz/devdwatch/internal/devd"
)

// File is the on-disk rule file.
//
//	watches:
//	  - name: usb-storage
//	    device: "umass*"
//	    actions: [add, remove]
//	  - name: devfs
//	    notify:
//	      system: DEVFS
type File struct {
	Watches []Rule `yaml:"watches"`
}

type Rule struct {
	Name    string        `yaml:"name"`
	Device  string        `yaml:"device,omitempty"`
	Actions []string      `yaml:"actions,omitempty"`
	Notify  *NotifyFilter `yaml:"notify,omitempty"`
}

// NotifyFilter patterns default to "*" when empty.
type NotifyFilter struct {
	System    string `yaml:"system"`
	Subsystem string `yaml:"subsystem"`
	Type      string `yaml:"type"`
}

var ErrInvalidRule = errors.New("invalid watch rule")

// Defaults mirror what a plain devd listener usually wants to see.
func Defaults() []Rule {
	return []Rule{
		{Name: "all-notify", Notify: &NotifyFilter{}},
		{Name: "devfs", Notify: &NotifyFilter{System: "DEVFS"}},
		{Name: "all-devices", Device: "*", Actions: []string{"add", "remove"}},
		{Name: "usb-storage", Device: "umass*", Actions: []string{"add", "remove"}},
	}
}

// Load reads rules from path. An empty path yields Defaults.
func Load(path string) ([]Rule, error) {
	if path == "" {
		return Defaults(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, r := range f.Watches {
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("%s: watch %d: %w", path, i, err)
		}
	}
	return f.Watches, nil
}

func (r Rule) validate() error {
	switch {
	case r.Device != "" && r.Notify != nil:
		return fmt.Errorf("%w: %q sets both device and notify", ErrInvalidRule, r.Name)
	case r.Device == "" && r.Notify == nil:
		return fmt.Errorf("%w: %q sets neither device nor notify", ErrInvalidRule, r.Name)
	case r.Device != "":
		_, err := r.mask()
		return err
	}
	return nil
}

// mask turns the action names into a registration mask. No actions means all.
func (r Rule) mask() (devd.Action, error) {
	if len(r.Actions) == 0 {
		return devd.ActionAll, nil
	}
	var m devd.Action
	for _, a := range r.Actions {
		switch strings.ToLower(a) {
		case "add", "+":
			m |= devd.ActionAdd
		case "remove", "-":
			m |= devd.ActionRemove
		case "unknown", "?":
			m |= devd.ActionUnknown
		case "all", "*":
			m |= devd.ActionAll
		default:
			return 0, fmt.Errorf("%w: %q has unknown action %q", ErrInvalidRule, r.Name, a)
		}
	}
	return m, nil
}

func orAny(p string) string {
	if p == "" {
		return "*"
	}
	return p
}

// Register installs a logging handler for every rule. The returned func
// removes them all.
func Register(registry *devd.Registry, rules []Rule) (func(), error) {
	var unregs []func()
	unregisterAll := func() {
		for _, u := range unregs {
			u()
		}
	}

	for _, r := range rules {
		if err := r.validate(); err != nil {
			unregisterAll()
			return nil, err
		}

		if r.Notify != nil {
			unregs = append(unregs, registry.RegisterNotify(
				orAny(r.Notify.System), orAny(r.Notify.Subsystem), orAny(r.Notify.Type),
				notifyLogger(r.Name)))
			continue
		}

		mask, _ := r.mask()
		unreg, err := registry.RegisterDevice(r.Device, mask, deviceLogger(r.Name))
		if err != nil {
			unregisterAll()
			return nil, fmt.Errorf("watch %q: %w", r.Name, err)
		}
		unregs = append(unregs, unreg)
	}

	log.WithField("count", len(rules)).Info("Registered devd watches")
	return unregisterAll, nil
}

func detailFields(fields log.Fields, details devd.Details) log.Fields {
	for _, d := range details {
		// Duplicate keys keep the first value.
		if _, ok := fields[d.Key]; !ok {
			fields[d.Key] = d.Value
		}
	}
	return fields
}

func deviceLogger(name string) devd.DeviceHandler {
	return func(ev devd.DeviceEvent) {
		log.WithFields(detailFields(log.Fields{
			"watch":  name,
			"device": ev.Name,
			"parent": ev.Parent,
		}, ev.Details)).Infof("%s %s on %s", ev.Action, ev.Name, ev.Parent)
	}
}

func notifyLogger(name string) devd.NotifyHandler {
	return func(ev devd.NotifyEvent) {
		log.WithFields(detailFields(log.Fields{
			"watch": name,
		}, ev.Details)).Infof("Notify: %s %s %s", ev.System, ev.Subsystem, ev.Type)
	}
}
