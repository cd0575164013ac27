package shield

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// MaintenanceMode returns 503 JSON responses while the site-wide
// maintenance flag is set. The flag lives in the site_settings table
// (key "maintenance", value "1"/"0"; optional "maintenance_message")
// and is cached in memory, refreshed by StartReloader.
type MaintenanceMode struct {
	db      *sql.DB
	active  atomic.Bool
	message atomic.Value // string
	exclude []string     // path prefixes that bypass maintenance
}

// NewMaintenanceMode creates a maintenance checker. Paths matching any
// of excludePrefixes are never blocked (health checks, auth).
func NewMaintenanceMode(db *sql.DB, excludePrefixes ...string) *MaintenanceMode {
	m := &MaintenanceMode{db: db, exclude: excludePrefixes}
	m.message.Store("service en maintenance, veuillez patienter")
	m.reload()
	return m
}

// Active reports whether maintenance mode is currently on.
func (m *MaintenanceMode) Active() bool { return m.active.Load() }

// StartReloader refreshes the cached flag every interval until done is
// closed.
func (m *MaintenanceMode) StartReloader(done <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	tick := time.NewTicker(interval)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				m.reload()
			}
		}
	}()
}

func (m *MaintenanceMode) reload() {
	var value string
	err := m.db.QueryRow(`SELECT value FROM site_settings WHERE key = 'maintenance'`).Scan(&value)
	if err != nil {
		// Missing table or row means maintenance off (normal state).
		if m.active.Load() {
			slog.Info("maintenance: flag cleared")
		}
		m.active.Store(false)
		return
	}

	was := m.active.Load()
	on := value == "1" || value == "true"
	m.active.Store(on)

	var msg string
	if err := m.db.QueryRow(`SELECT value FROM site_settings WHERE key = 'maintenance_message'`).Scan(&msg); err == nil && msg != "" {
		m.message.Store(msg)
	}

	if on && !was {
		slog.Warn("maintenance: mode ENABLED")
	} else if !on && was {
		slog.Info("maintenance: mode DISABLED")
	}
}

// Middleware blocks requests with 503 JSON while maintenance is active.
func (m *MaintenanceMode) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.active.Load() {
			next.ServeHTTP(w, r)
			return
		}
		for _, prefix := range m.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}
		msg, _ := m.message.Load().(string)
		w.Header().Set("Retry-After", "300")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": msg})
	})
}
