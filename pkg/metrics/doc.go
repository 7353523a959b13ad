/*
Package metrics exposes Prometheus metrics for the zone core's session,
backup-task, chunk and RPC subsystems. Metrics are registered at package
init and served over HTTP for scraping.

# Metrics Catalog

Session metrics:

zonecore_sessions_active:
  - Gauge. Session tokens currently cached by the verify hub.

zonecore_session_logins_total{login_type, outcome}:
  - Counter. Login attempts by login type ("password"/"jwt") and outcome
    ("ok"/"error").

zonecore_session_refreshes_total{outcome}:
  - Counter. Session token refresh attempts by outcome.

Backup task metrics:

zonecore_tasks_active{state}:
  - Gauge. Tasks known to the task store, by lifecycle state (New,
    Working, ErrorAndWillRetry, Idle, Fail, Succeeded).

zonecore_task_runs_total{state}:
  - Counter. RunOnce invocations across all task drivers, by the state
    each run left the task in.

Chunk metrics:

zonecore_chunks_uploaded_total:
  - Gauge. Distinct content-addressed chunks whose bytes have landed on
    a chunk server.

zonecore_chunks_deduped_total:
  - Counter. Chunk uploads skipped because that content hash was already
    recorded as uploaded (by any task, this one included).

zonecore_bytes_uploaded_total:
  - Counter. Total chunk bytes handed to a chunk uploader.

RPC metrics:

zonecore_rpc_requests_total{service, method, outcome}:
  - Counter. kRPC requests dispatched through pkg/rpcenvelope.

zonecore_rpc_request_duration_seconds{service, method}:
  - Histogram. kRPC request handling duration.

Object map metrics:

zonecore_objectmaps_built_total{mode}:
  - Counter. Object maps built, by storage mode (simple/normal/huge).

# Usage

	import "github.com/wugren/buckyos/pkg/metrics"

	metrics.SessionsActive.Set(3)
	metrics.SessionLoginsTotal.WithLabelValues("password", "ok").Inc()

	timer := metrics.NewTimer()
	// ... handle rpc request ...
	timer.ObserveDurationVec(metrics.RPCRequestDuration, "backup", "push_task_info")

	http.Handle("/metrics", metrics.Handler())

# Health and Readiness

RegisterComponent/UpdateComponent track liveness of named components
("kv_store", "verify_hub", "rpc_server"); HealthHandler, ReadyHandler and
LivenessHandler expose /health, /ready and /live respectively.
*/
package metrics
