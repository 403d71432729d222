package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/devdwatch/internal/monitor"
)

// DeviceMonitor is the part of monitor.Service the API needs.
type DeviceMonitor interface {
	Devices() []monitor.Record
	Connected() bool
	Subscribe() (<-chan monitor.Record, func())
}

// Service represents the HTTP server for the API
type Service struct {
	address string
	port    int

	mon      DeviceMonitor
	gatherer prometheus.Gatherer

	mu     sync.Mutex
	server *http.Server
	closed bool
}

func NewService(host string, port int) *Service {
	return &Service{
		address: host,
		port:    port,
	}
}

// AttachMonitor wires the device monitor and the metrics to expose (must be
// called before Start).
func (s *Service) AttachMonitor(mon DeviceMonitor, gatherer prometheus.Gatherer) {
	s.mon = mon
	s.gatherer = gatherer
}

// Start serves the API until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	if s.mon == nil {
		log.Error("AttachMonitor was not called before Start")
		<-ctx.Done()
		return nil
	}

	addr := net.JoinHostPort(s.address, fmt.Sprint(s.port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.server = srv
	s.mu.Unlock()

	log.Infof("Starting devdwatch API service at %s", addr)
	defer log.Info("Stopping devdwatch API service")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api: listen on %s: %w", addr, err)
	}
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// Handler returns the API routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if !s.mon.Connected() {
				http.Error(w, "devd not connected", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/devices", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Add("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.mon.Devices()); err != nil {
			http.Error(w, fmt.Sprintf("Failed to encode devices: %v", err), http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("/ws/events", func(w http.ResponseWriter, r *http.Request) {
		StreamEvents(s.mon, w, r)
	})
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}
