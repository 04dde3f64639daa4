package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// HealthStatus is the health indicator the fleet manager reports for a member
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "Healthy"
	HealthStatusUnhealthy HealthStatus = "Unhealthy"
)

// LifecycleState is the lifecycle phase of a fleet member
type LifecycleState string

const (
	LifecyclePending     LifecycleState = "Pending"
	LifecycleInService   LifecycleState = "InService"
	LifecycleStandby     LifecycleState = "Standby"
	LifecycleTerminating LifecycleState = "Terminating"
	LifecycleTerminated  LifecycleState = "Terminated"
	LifecycleDetaching   LifecycleState = "Detaching"
)

// Member is one compute instance belonging to a fleet
type Member struct {
	ID             string
	HealthStatus   HealthStatus
	LifecycleState LifecycleState
}

// MemberReady reports whether a member counts towards fleet readiness.
// Only a healthy, in-service member is ready; every other combination,
// including unknown states, is not.
func MemberReady(m Member) bool {
	return m.HealthStatus == HealthStatusHealthy && m.LifecycleState == LifecycleInService
}

// LaunchSpecRef identifies the launch spec a fleet creates members from
type LaunchSpecRef struct {
	Name    string
	Version string
}

// HealthCheck is the fleet's member health-check policy
type HealthCheck struct {
	Type        string // "EC2", "ELB"
	GracePeriod time.Duration
}

// ScalingPolicy is attached to a fleet after creation
type ScalingPolicy struct {
	Name                    string
	AdjustmentType          string // "ChangeInCapacity", "ExactCapacity", "PercentChangeInCapacity"
	ScalingAdjustment       int
	Cooldown                time.Duration
	MinAdjustmentMagnitude  int
	EstimatedInstanceWarmup time.Duration
}

// Fleet is a snapshot of a managed group of compute instances
type Fleet struct {
	Name              string
	LaunchSpec        LaunchSpecRef
	MinCapacity       int
	MaxCapacity       int
	DesiredCapacity   int
	SubnetIDs         []string
	AvailabilityZones []string
	TargetGroupARNs   []string
	HealthCheck       HealthCheck
	Members           []Member
	CreatedAt         time.Time
}

// ReadyCount returns the number of ready members
func (f *Fleet) ReadyCount() int {
	n := 0
	for _, m := range f.Members {
		if MemberReady(m) {
			n++
		}
	}
	return n
}

// Ready reports whether the ready-member count equals desired capacity
func (f *Fleet) Ready() bool {
	return f.ReadyCount() == f.DesiredCapacity
}

// InServiceMembers returns the members currently in service, regardless of health
func (f *Fleet) InServiceMembers() []Member {
	var out []Member
	for _, m := range f.Members {
		if m.LifecycleState == LifecycleInService {
			out = append(out, m)
		}
	}
	return out
}

// LifecycleSummary counts members per lifecycle phase
func (f *Fleet) LifecycleSummary() map[LifecycleState]int {
	summary := make(map[LifecycleState]int)
	for _, m := range f.Members {
		summary[m.LifecycleState]++
	}
	return summary
}

// FormatSummary renders a lifecycle summary as "InService=2 Terminating=1",
// sorted by phase name so log lines are stable.
func FormatSummary(summary map[LifecycleState]int) string {
	if len(summary) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, summary[LifecycleState(k)]))
	}
	return strings.Join(parts, " ")
}

// FleetConfig is the declared sizing, placement and health-check settings
// used to create a fleet
type FleetConfig struct {
	MinCapacity       int
	MaxCapacity       int
	DesiredCapacity   int
	SubnetIDs         []string
	AvailabilityZones []string
	TargetGroupARNs   []string
	HealthCheck       HealthCheck
	Policies          []ScalingPolicy
}

// Validate checks capacity ordering and placement
func (c FleetConfig) Validate() error {
	if c.MinCapacity < 0 {
		return fmt.Errorf("min capacity must not be negative, got %d", c.MinCapacity)
	}
	if c.MinCapacity > c.DesiredCapacity || c.DesiredCapacity > c.MaxCapacity {
		return fmt.Errorf("capacity must satisfy min <= desired <= max, got %d/%d/%d",
			c.MinCapacity, c.DesiredCapacity, c.MaxCapacity)
	}
	if len(c.SubnetIDs) == 0 && len(c.AvailabilityZones) == 0 {
		return fmt.Errorf("fleet needs at least one subnet or availability zone")
	}
	return nil
}

// WithDesired returns a copy of the config resized to desired, widening
// min and max where needed so min <= desired <= max still holds.
func (c FleetConfig) WithDesired(desired int) FleetConfig {
	c.DesiredCapacity = desired
	if c.MinCapacity > desired {
		c.MinCapacity = desired
	}
	if c.MaxCapacity < desired {
		c.MaxCapacity = desired
	}
	return c
}

// LaunchSpecData is the content of a launch spec version
type LaunchSpecData struct {
	ImageID            string
	InstanceType       string
	KeyPair            string
	SecurityGroupIDs   []string
	InstanceProfileARN string
}

// LaunchSpec is a named, versioned, immutable member template
type LaunchSpec struct {
	Name      string
	Version   string
	Data      LaunchSpecData
	CreatedAt time.Time
}

// ResourceKind tags entries in the created-resource ledger
type ResourceKind string

const (
	ResourceFleet      ResourceKind = "fleet"
	ResourceLaunchSpec ResourceKind = "launch_spec"
)
