package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "planforge"

// Metrics holds all PlanForge metric instruments.
type Metrics struct {
	SessionsStarted   metric.Int64Counter
	SessionsCompleted metric.Int64Counter
	SessionsFailed    metric.Int64Counter
	AgentTurns        metric.Int64Counter
	ToolCalls         metric.Int64Counter
	DocsIngested      metric.Int64Counter
	SessionDuration   metric.Float64Histogram
	RAGQueryDuration  metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.SessionsStarted, err = meter.Int64Counter("planforge.sessions.started",
		metric.WithDescription("Number of planning sessions started"))
	if err != nil {
		return nil, err
	}

	m.SessionsCompleted, err = meter.Int64Counter("planforge.sessions.completed",
		metric.WithDescription("Number of planning sessions reaching ready"))
	if err != nil {
		return nil, err
	}

	m.SessionsFailed, err = meter.Int64Counter("planforge.sessions.failed",
		metric.WithDescription("Number of planning sessions ending in error"))
	if err != nil {
		return nil, err
	}

	m.AgentTurns, err = meter.Int64Counter("planforge.agent.turns",
		metric.WithDescription("Number of agent turns executed"))
	if err != nil {
		return nil, err
	}

	m.ToolCalls, err = meter.Int64Counter("planforge.toolcalls",
		metric.WithDescription("Number of tool calls dispatched"))
	if err != nil {
		return nil, err
	}

	m.DocsIngested, err = meter.Int64Counter("planforge.ingest.documents",
		metric.WithDescription("Number of documents ingested into retrieval stores"))
	if err != nil {
		return nil, err
	}

	m.SessionDuration, err = meter.Float64Histogram("planforge.session.duration_seconds",
		metric.WithDescription("Planning session duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.RAGQueryDuration, err = meter.Float64Histogram("planforge.rag.query_seconds",
		metric.WithDescription("Retrieval query duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
