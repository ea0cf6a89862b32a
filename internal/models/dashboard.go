package models

import "time"

// SystemMetric is one point of the DevOps resource chart
type SystemMetric struct {
	Time    string `json:"time"`
	CPU     int    `json:"cpu"`
	Memory  int    `json:"memory"`
	Network int    `json:"network"`
}

// PipelineStage is one step of the CI/CD pipeline panel
type PipelineStage struct {
	Name      string `json:"name"`
	Status    string `json:"status"` // success, running, pending, failed
	Duration  string `json:"duration"`
	Timestamp string `json:"timestamp"`
}

// ServiceStatus describes one deployed service
type ServiceStatus struct {
	Name     string `json:"name"`
	Status   string `json:"status"` // running, degraded, stopped
	Version  string `json:"version"`
	Replicas string `json:"replicas"`
	CPU      string `json:"cpu"`
	Memory   string `json:"memory"`
	Uptime   string `json:"uptime"`
}

// LogEntry is one line of the recent logs panel
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Service   string `json:"service"`
	Message   string `json:"message"`
}

// SystemAlert is an operational alert shown to DevOps
type SystemAlert struct {
	ID       int    `json:"id"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Time     string `json:"time"`
	Service  string `json:"service"`
}

// LoggedAlert is a historical attack alert returned by the alert log API
type LoggedAlert struct {
	Label     string    `json:"label"`
	Src       string    `json:"src"`
	Dst       string    `json:"dst"`
	Sample    int64     `json:"sample"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}
