package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/finsight/finsight/pkg/logging"
	"github.com/finsight/finsight/pkg/metrics"
	"github.com/finsight/finsight/pkg/resilience"
)

// HealthState represents the health of a component
type HealthState string

const (
	StateHealthy   HealthState = "healthy"
	StateDegraded  HealthState = "degraded"
	StateUnhealthy HealthState = "unhealthy"
)

// HealthStatus is the current health of one component; last write wins
type HealthStatus struct {
	Component string                 `json:"component"`
	Status    HealthState            `json:"status"`
	LastCheck time.Time              `json:"last_check"`
	Message   string                 `json:"message,omitempty"`
	Metrics   map[string]interface{} `json:"metrics,omitempty"`
}

// SystemMetrics holds process-wide request counters and the exact running
// mean of response times. Created once at service construction, never reset.
type SystemMetrics struct {
	TotalRequests       int64     `json:"total_requests"`
	SuccessfulRequests  int64     `json:"successful_requests"`
	FailedRequests      int64     `json:"failed_requests"`
	AverageResponseTime float64   `json:"average_response_time"`
	StartTime           time.Time `json:"start_time"`
}

// SystemHealth is the aggregated health view returned by GetSystemHealth
type SystemHealth struct {
	Status          HealthState                           `json:"status"`
	Timestamp       time.Time                             `json:"timestamp"`
	UptimeSeconds   float64                               `json:"uptime_seconds"`
	Components      map[string]HealthStatus               `json:"components"`
	SystemMetrics   SystemMetricsView                     `json:"system_metrics"`
	CircuitBreakers map[string]resilience.MetricsSnapshot `json:"circuit_breakers"`
}

// SystemMetricsView is the SystemMetrics snapshot with the derived success rate
type SystemMetricsView struct {
	TotalRequests       int64   `json:"total_requests"`
	SuccessfulRequests  int64   `json:"successful_requests"`
	FailedRequests      int64   `json:"failed_requests"`
	SuccessRate         float64 `json:"success_rate"`
	AverageResponseTime float64 `json:"average_response_time"`
}

// Alert represents a condition that needs attention
type Alert struct {
	Level     string    `json:"level"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Alert levels
const (
	AlertLevelWarning  = "warning"
	AlertLevelCritical = "critical"
)

// Config holds monitoring policy thresholds
type Config struct {
	// HealthySuccessRate is the minimum success rate for a closed breaker
	// to be reported healthy rather than degraded
	HealthySuccessRate float64 `json:"healthy_success_rate"`
	// AlertSuccessRate is the system-wide success rate below which a
	// warning alert is raised
	AlertSuccessRate float64 `json:"alert_success_rate"`
	// MinRequestsToAlert suppresses the system-wide alert until enough
	// requests have been observed
	MinRequestsToAlert int64 `json:"min_requests_to_alert"`
	// CheckInterval is how often the background loop re-derives breaker health
	CheckInterval time.Duration `json:"check_interval"`
}

// DefaultConfig returns default monitoring configuration
func DefaultConfig() *Config {
	return &Config{
		HealthySuccessRate: 0.80,
		AlertSuccessRate:   0.90,
		MinRequestsToAlert: 10,
		CheckInterval:      30 * time.Second,
	}
}

// Service aggregates health statuses, request metrics, and circuit breaker
// snapshots across guarded components. One instance per process, constructed
// at startup and passed by reference to consumers.
type Service struct {
	mu            sync.RWMutex
	healthChecks  map[string]HealthStatus
	systemMetrics SystemMetrics
	breakers      []*resilience.CircuitBreaker
	startTime     time.Time

	config *Config
	logger *logging.Logger
	prom   *metrics.Metrics

	stopCh  chan struct{}
	running bool
}

// NewService creates a new monitoring service. prom may be nil when
// Prometheus export is disabled.
func NewService(config *Config, prom *metrics.Metrics) *Service {
	if config == nil {
		config = DefaultConfig()
	}

	now := time.Now()
	return &Service{
		healthChecks:  make(map[string]HealthStatus),
		systemMetrics: SystemMetrics{StartTime: now},
		startTime:     now,
		config:        config,
		logger:        logging.GetLogger(),
		prom:          prom,
		stopCh:        make(chan struct{}),
	}
}

// RegisterCircuitBreaker adds a breaker (by reference) to the monitored set.
// Name uniqueness is the caller's responsibility.
func (s *Service) RegisterCircuitBreaker(cb *resilience.CircuitBreaker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.breakers = append(s.breakers, cb)
	s.logger.Info("Registered circuit breaker for monitoring", "name", cb.Name())
}

// RecordRequest records a completed unit of work. The running average is an
// exact mean over all recorded requests, not a decayed one.
func (s *Service) RecordRequest(success bool, responseTime time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.systemMetrics.TotalRequests++
	if success {
		s.systemMetrics.SuccessfulRequests++
	} else {
		s.systemMetrics.FailedRequests++
	}

	n := s.systemMetrics.TotalRequests
	s.systemMetrics.AverageResponseTime =
		(s.systemMetrics.AverageResponseTime*float64(n-1) + responseTime.Seconds()) / float64(n)

	if s.prom != nil {
		s.prom.RecordRequest("system", success, responseTime)
	}
}

// RecordCacheHit forwards a read-cache hit to the Prometheus exporter
func (s *Service) RecordCacheHit(cacheType string) {
	if s.prom != nil {
		s.prom.RecordCacheHit(cacheType)
	}
}

// RecordCacheMiss forwards a read-cache miss to the Prometheus exporter
func (s *Service) RecordCacheMiss(cacheType string) {
	if s.prom != nil {
		s.prom.RecordCacheMiss(cacheType)
	}
}

// RecordRetry forwards a retry attempt to the Prometheus exporter
func (s *Service) RecordRetry(component string) {
	if s.prom != nil {
		s.prom.RecordRetry(component)
	}
}

// RecordFallback forwards a fallback invocation to the Prometheus exporter
func (s *Service) RecordFallback(component, source string) {
	if s.prom != nil {
		s.prom.RecordFallback(component, source)
	}
}

// UpdateHealthStatus upserts the health status of a component
func (s *Service) UpdateHealthStatus(component string, status HealthState, message string, componentMetrics map[string]interface{}) {
	s.mu.Lock()
	s.healthChecks[component] = HealthStatus{
		Component: component,
		Status:    status,
		LastCheck: time.Now(),
		Message:   message,
		Metrics:   componentMetrics,
	}
	s.mu.Unlock()

	switch status {
	case StateUnhealthy:
		s.logger.Warn("Component is unhealthy", "component", component, "message", message)
	case StateDegraded:
		s.logger.Info("Component is degraded", "component", component, "message", message)
	}
}

// GetSystemHealth aggregates the overall system health: unhealthy if any
// component is unhealthy, else degraded if any degraded, else healthy.
func (s *Service) GetSystemHealth() SystemHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()

	overall := StateHealthy
	components := make(map[string]HealthStatus, len(s.healthChecks))
	for name, health := range s.healthChecks {
		components[name] = health
		switch {
		case health.Status == StateUnhealthy:
			overall = StateUnhealthy
		case health.Status == StateDegraded && overall != StateUnhealthy:
			overall = StateDegraded
		}
	}

	breakerMetrics := make(map[string]resilience.MetricsSnapshot, len(s.breakers))
	for _, cb := range s.breakers {
		breakerMetrics[cb.Name()] = cb.GetMetrics()
	}

	total := s.systemMetrics.TotalRequests
	if total < 1 {
		total = 1
	}

	return SystemHealth{
		Status:        overall,
		Timestamp:     time.Now(),
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		Components:    components,
		SystemMetrics: SystemMetricsView{
			TotalRequests:       s.systemMetrics.TotalRequests,
			SuccessfulRequests:  s.systemMetrics.SuccessfulRequests,
			FailedRequests:      s.systemMetrics.FailedRequests,
			SuccessRate:         float64(s.systemMetrics.SuccessfulRequests) / float64(total),
			AverageResponseTime: s.systemMetrics.AverageResponseTime,
		},
		CircuitBreakers: breakerMetrics,
	}
}

// GetSystemMetrics returns a copy of the current request counters
func (s *Service) GetSystemMetrics() SystemMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.systemMetrics
}

// CheckCircuitBreakerHealth derives and upserts a health status per
// registered breaker: open is unhealthy, half-open is degraded, closed is
// healthy unless the success rate falls below the configured threshold.
func (s *Service) CheckCircuitBreakerHealth() {
	s.mu.RLock()
	breakers := make([]*resilience.CircuitBreaker, len(s.breakers))
	copy(breakers, s.breakers)
	s.mu.RUnlock()

	for _, cb := range breakers {
		snapshot := cb.GetMetrics()

		var status HealthState
		var message string

		switch cb.State() {
		case resilience.StateOpen:
			status = StateUnhealthy
			message = "circuit breaker is OPEN - dependency unavailable"
		case resilience.StateHalfOpen:
			status = StateDegraded
			message = "circuit breaker is testing recovery"
		default:
			if snapshot.SuccessRate < s.config.HealthySuccessRate {
				status = StateDegraded
				message = fmt.Sprintf("success rate %.1f%% below threshold", snapshot.SuccessRate*100)
			} else {
				status = StateHealthy
				message = fmt.Sprintf("success rate %.1f%%", snapshot.SuccessRate*100)
			}
		}

		snapshotMetrics := map[string]interface{}{
			"state":                snapshot.State,
			"total_calls":          snapshot.TotalCalls,
			"successful_calls":     snapshot.SuccessfulCalls,
			"failed_calls":         snapshot.FailedCalls,
			"success_rate":         snapshot.SuccessRate,
			"consecutive_failures": snapshot.ConsecutiveFailures,
		}

		s.UpdateHealthStatus(breakerComponent(cb.Name()), status, message, snapshotMetrics)

		if s.prom != nil {
			s.prom.RecordBreakerState(cb.Name(), int(cb.State()))
		}
	}
}

// GetAlerts derives the current alert set: one critical per unhealthy
// component, one warning per degraded component, one per breaker in open
// (critical) or half-open (warning) state, and a system-level warning once
// enough requests have been seen with a low success rate.
func (s *Service) GetAlerts() []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	alerts := make([]Alert, 0)

	for component, health := range s.healthChecks {
		switch health.Status {
		case StateUnhealthy:
			alerts = append(alerts, Alert{
				Level:     AlertLevelCritical,
				Component: component,
				Message:   health.Message,
				Timestamp: health.LastCheck,
			})
		case StateDegraded:
			alerts = append(alerts, Alert{
				Level:     AlertLevelWarning,
				Component: component,
				Message:   health.Message,
				Timestamp: health.LastCheck,
			})
		}
	}

	for _, cb := range s.breakers {
		switch cb.State() {
		case resilience.StateOpen:
			alerts = append(alerts, Alert{
				Level:     AlertLevelCritical,
				Component: breakerComponent(cb.Name()),
				Message:   "circuit breaker is OPEN - calls are blocked",
				Timestamp: now,
			})
		case resilience.StateHalfOpen:
			alerts = append(alerts, Alert{
				Level:     AlertLevelWarning,
				Component: breakerComponent(cb.Name()),
				Message:   "circuit breaker is testing recovery",
				Timestamp: now,
			})
		}
	}

	total := s.systemMetrics.TotalRequests
	if total > s.config.MinRequestsToAlert {
		successRate := float64(s.systemMetrics.SuccessfulRequests) / float64(total)
		if successRate < s.config.AlertSuccessRate {
			alerts = append(alerts, Alert{
				Level:     AlertLevelWarning,
				Component: "system",
				Message:   fmt.Sprintf("system success rate %.1f%% below threshold", successRate*100),
				Timestamp: now,
			})
		}
	}

	return alerts
}

// Start runs the periodic breaker health check loop until the context is
// cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.checkLoop(ctx)
	s.logger.Info("Monitoring service started", "check_interval", s.config.CheckInterval)
}

// Stop stops the background health check loop
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	close(s.stopCh)
	s.running = false
	s.logger.Info("Monitoring service stopped")
}

func (s *Service) checkLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.CheckCircuitBreakerHealth()
		}
	}
}

func breakerComponent(name string) string {
	return "circuit_breaker_" + name
}
