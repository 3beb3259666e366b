package ports

// Metric names recorded through MetricsCollector.
const (
	MetricHandoffEvaluations = "handoff_evaluations_total"
	MetricHandoffScore       = "handoff_score"
	MetricPipelineFinalize   = "pipeline_finalize_total"
	MetricJudgeResults       = "judge_results_total"
	MetricLLMRequests        = "llm_requests_total"
	MetricLLMLatency         = "llm_latency_seconds"
	MetricLLMTokens          = "llm_tokens_total"
	MetricLLMCircuitState    = "llm_circuit_state"
	MetricLLMCircuitTrips    = "llm_circuit_trips_total"
)
