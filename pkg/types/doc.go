/*
Package types defines the core data structures used throughout greenfleet.

These types describe the fleet manager's domain as greenfleet sees it:
fleets and their members, launch specs, declared fleet configuration and
the resource kinds recorded while a deploy creates things. They carry
semantic field names; translation to the remote API's wire names happens in
pkg/fleetapi and pkg/resource, never here.

# Core Types

Fleet: a snapshot of a managed instance group, read fresh from the remote
API on every access.

	Fleet
	├── Name, LaunchSpec (name + version)
	├── Min / Desired / Max capacity
	├── SubnetIDs, AvailabilityZones, TargetGroupARNs
	├── HealthCheck (type, grace period)
	└── Members []Member (health + lifecycle)

Member readiness is a two-field check:

	health      lifecycle    ready
	Healthy     InService    yes
	Healthy     other        no
	Unhealthy   InService    no
	Unhealthy   other        no

A fleet is ready when ReadyCount equals DesiredCapacity.

FleetConfig: declared sizing and placement. Validate enforces
min <= desired <= max, and WithDesired resizes while keeping that ordering.

LaunchSpec / LaunchSpecData: the immutable template members are created
from. Deploys always create a new named spec; nothing is mutated in place.
*/
package types
