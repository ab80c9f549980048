// Package health provides system health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the feeder.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// PassHealth summarizes recent synchronization passes.
type PassHealth struct {
	Status              SystemStatus `json:"status"`
	LastPassID          string       `json:"last_pass_id,omitempty"`
	LastSuccess         *time.Time   `json:"last_success,omitempty"`
	LastFailure         *time.Time   `json:"last_failure,omitempty"`
	LastSkipped         *time.Time   `json:"last_skipped,omitempty"`
	LastError           string       `json:"last_error,omitempty"`
	LastErrorCategory   string       `json:"last_error_category,omitempty"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	TotalPasses         uint64       `json:"total_passes"`
	PeakHeight          int64        `json:"peak_height"`
	Standby             bool         `json:"standby"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus `json:"system_status"`
	Network      string       `json:"network,omitempty"`
	Passes       PassHealth   `json:"passes"`
}
