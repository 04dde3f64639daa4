/*
Package config loads greenfleet's per-environment YAML configuration.

One file describes one environment: where the fleet manager and the
parameter database live, and the declared launch spec and fleet shape of
every deploy target.

	namespace: greenfleet
	environment: prod
	fleet_api:
	  endpoint: https://fleet.example.internal
	  timeout: 30s
	param_store:
	  path: /var/lib/greenfleet/params.db
	targets:
	  web:
	    launch_spec:
	      instance_type: t3.small
	    fleet:
	      min_capacity: 1
	      desired_capacity: 2
	      max_capacity: 4
	      subnet_ids: [subnet-a]

Load applies defaults and validates every target, reporting all problems in
one error. The file is read-only input: nothing is merged or layered.
*/
package config
