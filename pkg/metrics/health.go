package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Component names reported by the manager
const (
	ComponentStore    = "store"
	ComponentBroker   = "broker"
	ComponentListener = "listener"
	ComponentStats    = "stats"
	ComponentTracker  = "tracker"
	ComponentOpenSSL  = "openssl"
	ComponentTools    = "tools"
)

// Overall states reported by /health and /ready
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// ComponentHealth is the last reported state of one subsystem
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`

	// Since is when Healthy last changed
	Since   time.Time `json:"since"`
	Updated time.Time `json:"updated"`
}

// HealthStatus is the body of the /health and /ready endpoints
type HealthStatus struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
	Message    string                     `json:"message,omitempty"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
}

// Registry holds the health of every manager subsystem. Readiness only
// considers the critical components.
type Registry struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	critical   []string
	started    time.Time
	version    string
}

// NewRegistry creates an empty registry
func NewRegistry(critical ...string) *Registry {
	return &Registry{
		components: make(map[string]ComponentHealth),
		critical:   append([]string(nil), critical...),
		started:    time.Now(),
	}
}

var defaultRegistry = NewRegistry(ComponentStore, ComponentBroker)

// Update records the state of a component and mirrors it to the
// component_up gauge
func (r *Registry) Update(name string, healthy bool, message string) {
	now := time.Now()

	r.mu.Lock()
	prev, seen := r.components[name]
	since := prev.Since
	if !seen || prev.Healthy != healthy {
		since = now
	}
	r.components[name] = ComponentHealth{
		Healthy: healthy,
		Message: message,
		Since:   since,
		Updated: now,
	}
	r.mu.Unlock()

	ComponentUp.WithLabelValues(name).Set(boolGauge(healthy))
}

// Get returns the recorded state of name
func (r *Registry) Get(name string) (ComponentHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[name]
	return c, ok
}

// SetCritical replaces the components readiness waits for
func (r *Registry) SetCritical(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.critical = append([]string(nil), names...)
}

// SetVersion sets the build version reported with every status
func (r *Registry) SetVersion(version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.version = version
}

// Health is unhealthy when any reported component is
func (r *Registry) Health() HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := r.status(StatusHealthy)
	for name, c := range r.components {
		status.Components[name] = c
		if !c.Healthy {
			status.Status = StatusUnhealthy
		}
	}
	return status
}

// Readiness is not ready until every critical component has reported
// healthy. The message names the first missing one in sorted order.
func (r *Registry) Readiness() HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := r.status(StatusReady)
	critical := append([]string(nil), r.critical...)
	sort.Strings(critical)

	for _, name := range critical {
		c, ok := r.components[name]
		if ok {
			status.Components[name] = c
		}
		if ok && c.Healthy {
			continue
		}
		if status.Status == StatusReady {
			status.Status = StatusNotReady
			status.Message = "waiting for " + name
		}
	}
	return status
}

func (r *Registry) status(initial string) HealthStatus {
	return HealthStatus{
		Status:     initial,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
		Version:    r.version,
		Uptime:     time.Since(r.started).Round(time.Second).String(),
	}
}

// SetVersion sets the version on the default registry
func SetVersion(version string) { defaultRegistry.SetVersion(version) }

// SetCriticalComponents sets readiness components on the default registry
func SetCriticalComponents(names ...string) { defaultRegistry.SetCritical(names...) }

// UpdateComponent records component health on the default registry
func UpdateComponent(name string, healthy bool, message string) {
	defaultRegistry.Update(name, healthy, message)
}

// GetComponent reads component health from the default registry
func GetComponent(name string) (ComponentHealth, bool) { return defaultRegistry.Get(name) }

// GetHealth reports overall health from the default registry
func GetHealth() HealthStatus { return defaultRegistry.Health() }

// GetReadiness reports readiness from the default registry
func GetReadiness() HealthStatus { return defaultRegistry.Readiness() }

// HealthHandler serves GetHealth, with 503 when unhealthy
func HealthHandler() http.HandlerFunc {
	return statusHandler(GetHealth, StatusUnhealthy)
}

// ReadyHandler serves GetReadiness, with 503 until ready
func ReadyHandler() http.HandlerFunc {
	return statusHandler(GetReadiness, StatusNotReady)
}

func statusHandler(report func() HealthStatus, failing string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := report()
		code := http.StatusOK
		if status.Status == failing {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
