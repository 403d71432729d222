package api

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/devdwatch/internal/devd"
	"github.com/dmdmdm-nz/devdwatch/internal/monitor"
)

// eventFilter narrows the stream using the devd pattern syntax.
type eventFilter struct {
	kind string
	name string
}

func filterFromRequest(r *http.Request) eventFilter {
	q := r.URL.Query()
	return eventFilter{kind: q.Get("kind"), name: q.Get("name")}
}

func (f eventFilter) allows(rec monitor.Record) bool {
	if f.kind != "" && f.kind != string(rec.Kind) {
		return false
	}
	if f.name == "" {
		return true
	}
	switch rec.Kind {
	case monitor.KindDevice:
		return devd.Match(f.name, rec.Name)
	default:
		return devd.Match(f.name, rec.System)
	}
}

// StreamEvents upgrades the request and writes every record as a JSON text
// message until either side goes away. Query parameters "kind" (device or
// notify) and "name" (pattern on device name or notify system) filter the
// stream.
func StreamEvents(mon DeviceMonitor, w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.WithError(err).Error("Failed to accept websocket client")
		return
	}
	defer c.Close(websocket.StatusNormalClosure, "closing")

	// We never expect messages from the client; this also notices when it leaves.
	ctx := c.CloseRead(r.Context())

	filter := filterFromRequest(r)
	records, unsub := mon.Subscribe()
	defer unsub()

	log.WithField("remote", r.RemoteAddr).Debug("Event stream client connected")
	defer log.WithField("remote", r.RemoteAddr).Debug("Event stream client disconnected")

	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-records:
			if !ok {
				c.Close(websocket.StatusGoingAway, "monitor stopped")
				return
			}
			if !filter.allows(rec) {
				continue
			}
			if err := wsjson.Write(ctx, c, rec); err != nil {
				log.WithError(err).Debug("Failed to write event to websocket")
				return
			}
		}
	}
}
