package devd

import "sync"

type registration interface {
	deliver(ev Event) bool
}

type deviceRegistration struct {
	pattern string
	mask    Action
	handler DeviceHandler
}

func (r *deviceRegistration) deliver(ev Event) bool {
	dev, ok := ev.(*DeviceEvent)
	if !ok {
		return false
	}
	if r.mask&dev.Action == 0 || !Match(r.pattern, dev.Name) {
		return false
	}
	r.handler(*dev)
	return true
}

type notifyRegistration struct {
	system    string
	subsystem string
	typ       string
	handler   NotifyHandler
}

func (r *notifyRegistration) deliver(ev Event) bool {
	n, ok := ev.(*NotifyEvent)
	if !ok {
		return false
	}
	if !Match(r.system, n.System) || !Match(r.subsystem, n.Subsystem) || !Match(r.typ, n.Type) {
		return false
	}
	r.handler(*n)
	return true
}

type entry struct {
	id  int
	reg registration
}

// Registry holds the handlers a Conn dispatches to. Newest registrations come
// first. A Registry may be shared between connections.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
	nextID  int
}

func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterNotify adds a handler for notify events whose system, subsystem and
// type match the given patterns. The returned func removes it again.
func (r *Registry) RegisterNotify(systemPattern, subsystemPattern, typePattern string, handler NotifyHandler) func() {
	return r.insert(&notifyRegistration{
		system:    systemPattern,
		subsystem: subsystemPattern,
		typ:       typePattern,
		handler:   handler,
	})
}

// RegisterDevice adds a handler for device events whose action is in mask and
// whose name matches namePattern.
func (r *Registry) RegisterDevice(namePattern string, mask Action, handler DeviceHandler) (func(), error) {
	if mask == 0 || mask&^ActionAll != 0 {
		return nil, ErrInvalidMask
	}
	return r.insert(&deviceRegistration{
		pattern: namePattern,
		mask:    mask,
		handler: handler,
	}), nil
}

func (r *Registry) insert(reg registration) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.entries = append([]entry{{id: id, reg: reg}}, r.entries...)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

func (r *Registry) remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Dispatch invokes every handler matching ev and returns how many ran.
// Handlers run on the calling goroutine, outside the registry lock.
func (r *Registry) Dispatch(ev Event) int {
	r.mu.RLock()
	entries := r.entries
	r.mu.RUnlock()

	invoked := 0
	for _, e := range entries {
		if e.reg.deliver(ev) {
			invoked++
		}
	}
	return invoked
}
