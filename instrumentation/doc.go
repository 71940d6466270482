// Package instrumentation provides OpenTelemetry (OTEL) instrumentation for the mcp-oauth library.
//
// This package enables comprehensive observability across all library layers through:
// - Metrics: Counters, histograms, and gauges for monitoring OAuth operations
// - Traces: Distributed tracing for request flows across components
// - Logging: Structured logs with trace context integration
//
// # Quick Start
//
// Create an instrumentation instance:
//
//	import "github.com/ironvault/oidcmw/instrumentation"
//
//	// Initialize instrumentation
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "my-oauth-service",
//		ServiceVersion: "1.0.0",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	// Pass to the middleware options
//	opts, err := provider.New(provider.Options{
//		// ...
//		Instrumentation: inst,
//	})
//
// # Exporters
//
// New installs no-op meter and tracer providers whether or not Config.Enabled
// is set; the package configures no exporter (stdout, OTLP or Prometheus) of
// its own.
//
// # Available Metrics
//
// HTTP Layer:
//   - oidcmw.http.requests.total{method, endpoint, status} - Total HTTP requests
//   - oidcmw.http.request.duration{endpoint} - Request duration in milliseconds
//
// OAuth Flows:
//   - oidcmw.authorization.started{client_id} - Authorization requests signed in
//   - oidcmw.code.exchanged{client_id, pkce_method} - Authorization codes exchanged
//   - oidcmw.token.refreshed{client_id, rotated} - Tokens refreshed
//   - oidcmw.token.revoked{client_id} - Tokens revoked
//
// Security:
//   - oidcmw.rate_limit.exceeded{limiter_type} - Rate limit violations
//   - oidcmw.code.reuse_detected - Authorization code reuse attempts
//
// Storage:
//   - storage.operation.total{operation, result} - Storage operations
//   - storage.operation.duration{operation} - Operation duration in milliseconds
//   - storage.size.entries - Current number of entries held by the cache
//
// Audit:
//   - oidcmw.audit.events.total{event_type} - Security audit events logged
//
// Encryption:
//   - oidcmw.encryption.operations.total{operation} - Opaque-ticket encrypt/decrypt calls
//   - oidcmw.encryption.duration{operation} - Operation duration in milliseconds
//
// # Performance
//
// When instrumentation is not configured or disabled:
//   - Zero overhead (uses no-op providers)
//   - No allocations or latency impact
//
// When enabled, New installs the same no-op providers (see
// Exporters above), so recorded values are discarded.
//
// # Thread Safety
//
// All instrumentation operations are thread-safe and can be called concurrently from multiple goroutines.
//
// # Metric Cardinality Considerations
//
// Metric cardinality refers to the number of unique label combinations for a metric.
// High cardinality can cause memory pressure and slow queries in monitoring systems.
//
// Label cardinality in this library:
//   - client_id: One value per registered OAuth client (typically 1-1000s)
//   - user_id: One value per authenticated user (can be high for consumer apps)
//   - endpoint: Fixed set (5-10 endpoints)
//   - operation: Fixed set (10-20 operations)
//   - status: Fixed set (HTTP status codes ~10-20 values)
//   - provider: Fixed set (number of identity providers, typically 1-5)
//
// Cardinality recommendations:
//
// LOW SCALE (<100 clients):
//   - Use client_id labels freely for detailed per-client metrics
//   - Track individual client operations and error rates
//   - No special configuration needed
//
// MEDIUM SCALE (100-10,000 clients):
//   - Monitor total metric cardinality in your observability platform
//   - Consider aggregating metrics by client type instead of client_id
//   - Set recording rules in Prometheus to pre-aggregate high-cardinality metrics
//   - Example: aggregate rate(oidcmw_token_refreshed_total[5m]) by client_type
//
// HIGH SCALE (>10,000 clients):
//   - REMOVE client_id labels from high-frequency metrics
//   - Use sampling: only record metrics for a subset of clients
//   - Implement custom metric aggregation in your application
//   - Consider using exemplars (Prometheus 2.26+) to link metrics to traces
//   - Use distributed tracing (spans) for per-client debugging instead of metrics
//
// Estimating metric cardinality:
//   - oidcmw.http.requests.total{method, endpoint, status}: ~3 methods * 10 endpoints * 20 statuses = 600 series
//   - oidcmw.authorization.started{client_id}: N clients = N series (HIGH CARDINALITY)
//   - oidcmw.token.refreshed{client_id, rotated}: N clients * 2 = 2N series (HIGH CARDINALITY)
//
// For very high scale (millions of users/clients), consider:
//   - Using aggregated metrics (total counts without client_id)
//   - Sampling metrics (record 1% of operations)
//   - Using logs or traces for per-client debugging
//   - External systems like ClickHouse or BigQuery for high-cardinality analysis
//
// # Security Considerations
//
// IMPORTANT: This package is designed to collect observability data, not sensitive credentials.
//
// When instrumenting OAuth flows, you MUST:
//   - NEVER log actual token values (access tokens, refresh tokens, authorization codes)
//   - NEVER log client secrets or PKCE verifiers
//   - ONLY log metadata (token types, expiry times, validation results, family IDs)
//
// Data collected in traces and metrics may be:
//   - Persisted for extended periods in observability backends
//   - Accessible to operations teams and potentially wider audiences
//   - Subject to compliance requirements (GDPR, PCI-DSS, SOC 2, etc.)
//   - Replicated across monitoring infrastructure
//
// Privacy considerations:
//   - Client IP addresses may be considered PII in some jurisdictions
//   - User IDs may be subject to privacy regulations
//   - Configure appropriate retention policies and access controls
//   - Document data collection in your privacy policy
package instrumentation
