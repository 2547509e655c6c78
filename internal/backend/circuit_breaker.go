package backend

import (
	"log/slog"
	"sync"
	"time"
)

// minRequestsForRate is how many requests the breaker observes before the
// failure rate alone may open it.
const minRequestsForRate = 20

// CircuitBreaker stops calling the backend after it keeps failing
type CircuitBreaker struct {
	failureThreshold int
	failureRate      float64
	resetTimeout     time.Duration
	now              func() time.Time
	logger           *slog.Logger

	failures            int
	totalRequests       int
	consecutiveFailures int
	isOpen              bool
	openedAt            time.Time

	mutex sync.Mutex
}

// NewCircuitBreaker creates a breaker that opens after failureThreshold
// consecutive failures, or when 40% of at least 20 requests failed.
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration, logger *slog.Logger) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreaker{
		logger:           logger,
		failureThreshold: failureThreshold,
		failureRate:      0.40,
		resetTimeout:     resetTimeout,
		now:              time.Now,
	}
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalRequests++
	cb.consecutiveFailures = 0
}

// RecordFailure records a failed request. statusCode is 0 for transport errors.
func (cb *CircuitBreaker) RecordFailure(statusCode int) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++
	cb.consecutiveFailures++
	cb.totalRequests++

	if cb.isOpen {
		return
	}

	if cb.consecutiveFailures >= cb.failureThreshold {
		cb.open()
		cb.logger.Warn("backend circuit breaker open",
			"consecutive_failures", cb.consecutiveFailures,
			"status", statusCode,
			"retry_after", cb.resetTimeout)
		return
	}

	if cb.totalRequests >= minRequestsForRate {
		rate := float64(cb.failures) / float64(cb.totalRequests)
		if rate >= cb.failureRate {
			cb.open()
			cb.logger.Warn("backend circuit breaker open",
				"failure_rate", rate,
				"failures", cb.failures,
				"total", cb.totalRequests,
				"retry_after", cb.resetTimeout)
		}
	}
}

func (cb *CircuitBreaker) open() {
	cb.isOpen = true
	cb.openedAt = cb.now()
}

// CanProceed checks if requests are allowed
func (cb *CircuitBreaker) CanProceed() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if !cb.isOpen {
		return true
	}

	if cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		cb.logger.Info("backend circuit breaker half-open", "after", cb.resetTimeout)
		cb.isOpen = false
		cb.failures = 0
		cb.totalRequests = 0
		cb.consecutiveFailures = 0
		return true
	}

	return false
}

// GetStatus returns current circuit breaker status
func (cb *CircuitBreaker) GetStatus() (isOpen bool, failures int, total int) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.isOpen, cb.failures, cb.totalRequests
}
