package mockbackend

import (
	"math/rand"

	"github.com/nshruti113/ddos-defense-dashboard/internal/models"
)

var metricTimes = []string{"10:00", "10:05", "10:10", "10:15", "10:20", "10:25", "10:30"}

type intRange struct{ min, max int }

func (r intRange) pick(rng *rand.Rand) int {
	return r.min + rng.Intn(r.max-r.min+1)
}

// systemMetrics returns resource usage; ranges rise while an attack runs
func systemMetrics(rng *rand.Rand, underAttack bool) []models.SystemMetric {
	cpu, memory, network := intRange{20, 70}, intRange{50, 70}, intRange{300, 1500}
	if underAttack {
		cpu, memory, network = intRange{70, 95}, intRange{70, 99}, intRange{1000, 2000}
	}

	out := make([]models.SystemMetric, 0, len(metricTimes))
	for _, t := range metricTimes {
		out = append(out, models.SystemMetric{
			Time:    t,
			CPU:     cpu.pick(rng),
			Memory:  memory.pick(rng),
			Network: network.pick(rng),
		})
	}
	return out
}

var services = []models.ServiceStatus{
	{Name: "ml-inference-api", Status: "running", Version: "v2.4.1", Replicas: "3/3", CPU: "42%", Memory: "1.8 GB", Uptime: "12d 5h"},
	{Name: "traffic-collector", Status: "running", Version: "v1.9.3", Replicas: "5/5", CPU: "68%", Memory: "3.2 GB", Uptime: "12d 5h"},
	{Name: "alert-manager", Status: "running", Version: "v3.1.0", Replicas: "2/2", CPU: "12%", Memory: "512 MB", Uptime: "12d 5h"},
	{Name: "model-trainer", Status: "degraded", Version: "v2.4.0", Replicas: "1/2", CPU: "89%", Memory: "4.1 GB", Uptime: "2h 34m"},
	{Name: "metrics-exporter", Status: "running", Version: "v1.2.1", Replicas: "3/3", CPU: "8%", Memory: "256 MB", Uptime: "12d 5h"},
}

var logs = []models.LogEntry{
	{Timestamp: "10:30:42", Level: "INFO", Service: "ml-inference-api", Message: "Prediction request processed successfully"},
	{Timestamp: "10:30:38", Level: "WARN", Service: "model-trainer", Message: "High memory usage detected: 4.1GB/4.5GB"},
	{Timestamp: "10:30:35", Level: "ERROR", Service: "model-trainer", Message: "Replica 2 failed health check, attempting restart"},
	{Timestamp: "10:30:32", Level: "INFO", Service: "traffic-collector", Message: "Processed 45,230 packets in last minute"},
	{Timestamp: "10:30:28", Level: "INFO", Service: "alert-manager", Message: "Critical alert sent to Network Admin dashboard"},
	{Timestamp: "10:30:25", Level: "WARN", Service: "ml-inference-api", Message: "Response time exceeded threshold: 245ms"},
	{Timestamp: "10:30:21", Level: "INFO", Service: "metrics-exporter", Message: "Metrics exported to Prometheus"},
}

var systemAlerts = []models.SystemAlert{
	{ID: 1, Severity: "critical", Message: "Model trainer service degraded - 1/2 replicas running", Time: "2 min ago", Service: "model-trainer"},
	{ID: 2, Severity: "warning", Message: "High CPU usage on inference API pods (>80%)", Time: "5 min ago", Service: "ml-inference-api"},
	{ID: 3, Severity: "warning", Message: "Network bandwidth approaching limit (85%)", Time: "8 min ago", Service: "traffic-collector"},
}

var pipeline = []models.PipelineStage{
	{Name: "Source", Status: "success", Duration: "2s", Timestamp: "10:15:23"},
	{Name: "Build", Status: "success", Duration: "45s", Timestamp: "10:16:08"},
	{Name: "Test", Status: "success", Duration: "1m 23s", Timestamp: "10:17:31"},
	{Name: "Security Scan", Status: "success", Duration: "34s", Timestamp: "10:18:05"},
	{Name: "Deploy to Staging", Status: "success", Duration: "28s", Timestamp: "10:18:33"},
	{Name: "Integration Tests", Status: "running", Duration: "12s", Timestamp: "10:18:45"},
	{Name: "Deploy to Production", Status: "pending", Duration: "-", Timestamp: "-"},
}

// featureColumns are the flow features the detection model is trained on
var featureColumns = []string{
	"Packet Length Mean", "Avg Packet Size", "ACK Flag Count", "Packet Length Min",
	"Fwd Packet Length Mean", "Fwd Packet Length Min", "Init Fwd Win Bytes",
	"Fwd Packet Length Max", "Flow IAT Mean", "Packet Length Max", "Subflow Fwd Bytes",
	"Fwd Packets Length Total", "Flow Packets/s", "Packet Length Std", "Idle Max",
	"Flow Bytes/s", "Fwd IAT Max", "Idle Std", "Total Backward Packets", "Fwd IAT Mean",
}
