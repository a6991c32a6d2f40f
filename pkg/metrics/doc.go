/*
Package metrics provides Prometheus metrics and component health for
Mosquitto Manager.

All metrics are package-level collectors registered with the default
registry at init and served by Handler on /metrics.

# Metrics

Reconciler:

	mosquitto_manager_reconcile_runs_total{trigger,result}
	mosquitto_manager_reconcile_duration_seconds{trigger}
	mosquitto_manager_reconcile_step_duration_seconds{step}
	mosquitto_manager_credential_failures_total
	mosquitto_manager_secure_sync_failures_total

Broker process:

	mosquitto_manager_broker_signals_total{action,result}
	mosquitto_manager_broker_up

Live views:

	mosquitto_manager_sessions_connected
	mosquitto_manager_log_lines_total{shape}
	mosquitto_manager_broker_stat{metric}
	mosquitto_manager_stats_connected

API:

	mosquitto_manager_api_requests_total{route,status}
	mosquitto_manager_api_request_duration_seconds{route}
	mosquitto_manager_push_subscribers

Health:

	mosquitto_manager_component_up{component}

broker_stat mirrors each $SYS value the stats aggregator tracks, labelled by
the same names used in the JSON snapshot (uptime, clientsActive, ...).

# Timing

	timer := metrics.NewTimer()
	err := step.Run(ctx)
	timer.ObserveDurationVec(metrics.ReconcileStepDuration, step.Name)

# Component Health

Subsystems report their state with UpdateComponent on the default Registry.
Each component keeps the time its state last flipped, so /health shows how
long the broker has been down rather than just that it is. GetHealth is
unhealthy if any component is; GetReadiness only considers the critical
components (store and broker by default). HealthHandler and ReadyHandler
expose both as JSON with 503 on failure.

The Collector runs health.Checker probes on an interval, debounces them
with health.Status and feeds the verdicts into the registry. A process
probe also drives the broker_up gauge.
*/
package metrics
