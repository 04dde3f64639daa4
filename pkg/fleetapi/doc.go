/*
Package fleetapi is the wire contract of the remote fleet manager and its
JSON/HTTP client.

Types here use the fleet manager's own field names (FleetName, MinSize,
VPCZoneIdentifier, MemberId, ...). Higher layers work with pkg/types and
translate at the boundary, so nothing outside pkg/resource ever sees these
names.

# Routes

	POST   /fleets                              CreateFleet
	GET    /fleets?names=&next_token=           DescribeFleets
	PATCH  /fleets/{name}                       UpdateFleet
	DELETE /fleets/{name}                       DeleteFleet
	POST   /members/{id}/terminate              TerminateMember
	POST   /fleets/{name}/policies              PutScalingPolicy
	POST   /launch-specs                        CreateLaunchSpec
	GET    /launch-specs/{name}/versions        DescribeLaunchSpecVersions
	DELETE /launch-specs/{name}                 DeleteLaunchSpec

Error responses decode into *APIError. When the body carries no code one is
derived from the HTTP status. The client performs no retries.

Package fleetapitest holds an in-memory implementation of API for tests.
*/
package fleetapi
