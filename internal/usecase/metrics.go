package usecase

// MetricsSummary represents aggregated extraction insights.
type MetricsSummary struct {
	TotalRequests      int64   `json:"total_requests"`
	PortraitsExtracted int64   `json:"portraits_extracted"`
	NoFaceResponses    int64   `json:"no_face_responses"`
	SuccessRate        float64 `json:"success_rate"`
	AverageLatencyMs   float64 `json:"average_latency_ms"`
}
