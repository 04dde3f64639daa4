/*
Package metrics defines the Prometheus instruments greenfleet records during
a deploy run.

All instruments live in the default registry and are registered at package
init. greenfleet is a one-shot CLI, so nothing is scraped: when a run is
given --metrics-file the registry is written once, at the end, in the
node-exporter textfile format so a collector on the host can pick it up.

# Metrics

	greenfleet_deploys_total{outcome}                 succeeded|failed|cancelled|aborted
	greenfleet_deploy_duration_seconds                histogram
	greenfleet_rollback_resources_total{kind,result}  fleet|launch_spec, destroyed|failed
	greenfleet_lock_acquisitions_total{result}        acquired|held|error
	greenfleet_wait_iterations_total                  predicate evaluations
	greenfleet_api_requests_total{operation,status}   fleet API calls
	greenfleet_api_request_duration_seconds{operation}

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DeployDuration)
*/
package metrics
