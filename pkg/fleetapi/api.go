package fleetapi

import (
	"context"
	"time"
)

// API is the remote fleet-manager contract. Every request and response
// carries the API's own wire field names.
type API interface {
	CreateFleet(ctx context.Context, in *CreateFleetInput) error
	DescribeFleets(ctx context.Context, in *DescribeFleetsInput) (*DescribeFleetsOutput, error)
	UpdateFleet(ctx context.Context, in *UpdateFleetInput) error
	DeleteFleet(ctx context.Context, in *DeleteFleetInput) error
	TerminateMember(ctx context.Context, in *TerminateMemberInput) error
	PutScalingPolicy(ctx context.Context, in *PutScalingPolicyInput) error

	CreateLaunchSpec(ctx context.Context, in *CreateLaunchSpecInput) (*CreateLaunchSpecOutput, error)
	DescribeLaunchSpecVersions(ctx context.Context, in *DescribeLaunchSpecVersionsInput) (*DescribeLaunchSpecVersionsOutput, error)
	DeleteLaunchSpec(ctx context.Context, in *DeleteLaunchSpecInput) error
}

// LatestVersion selects the newest launch spec version
const LatestVersion = "$Latest"

// LaunchSpecSpecification references a launch spec from a fleet
type LaunchSpecSpecification struct {
	LaunchSpecName string `json:"LaunchSpecName"`
	Version        string `json:"Version,omitempty"`
}

// CreateFleetInput creates a fleet
type CreateFleetInput struct {
	FleetName              string                   `json:"FleetName"`
	LaunchSpec             *LaunchSpecSpecification `json:"LaunchSpec"`
	MinSize                int                      `json:"MinSize"`
	MaxSize                int                      `json:"MaxSize"`
	DesiredCapacity        int                      `json:"DesiredCapacity"`
	VPCZoneIdentifier      string                   `json:"VPCZoneIdentifier,omitempty"` // comma-separated subnet ids
	AvailabilityZones      []string                 `json:"AvailabilityZones,omitempty"`
	TargetGroupARNs        []string                 `json:"TargetGroupARNs,omitempty"`
	HealthCheckType        string                   `json:"HealthCheckType,omitempty"`
	HealthCheckGracePeriod int                      `json:"HealthCheckGracePeriod,omitempty"` // seconds
}

// DescribeFleetsInput filters by name; empty FleetNames lists every fleet
type DescribeFleetsInput struct {
	FleetNames []string
	NextToken  string
	MaxRecords int
}

// MemberDescription is one member as reported on a fleet read
type MemberDescription struct {
	MemberId       string `json:"MemberId"`
	HealthStatus   string `json:"HealthStatus"`
	LifecycleState string `json:"LifecycleState"`
}

// FleetDescription is a fleet as reported by DescribeFleets
type FleetDescription struct {
	FleetName              string                   `json:"FleetName"`
	LaunchSpec             *LaunchSpecSpecification `json:"LaunchSpec,omitempty"`
	MinSize                int                      `json:"MinSize"`
	MaxSize                int                      `json:"MaxSize"`
	DesiredCapacity        int                      `json:"DesiredCapacity"`
	VPCZoneIdentifier      string                   `json:"VPCZoneIdentifier,omitempty"`
	AvailabilityZones      []string                 `json:"AvailabilityZones,omitempty"`
	TargetGroupARNs        []string                 `json:"TargetGroupARNs,omitempty"`
	HealthCheckType        string                   `json:"HealthCheckType,omitempty"`
	HealthCheckGracePeriod int                      `json:"HealthCheckGracePeriod,omitempty"`
	Members                []MemberDescription      `json:"Members"`
	CreatedTime            time.Time                `json:"CreatedTime"`
}

// DescribeFleetsOutput is one page of fleets
type DescribeFleetsOutput struct {
	Fleets    []FleetDescription `json:"Fleets"`
	NextToken string             `json:"NextToken,omitempty"`
}

// UpdateFleetInput is a partial update; nil fields are left unchanged
type UpdateFleetInput struct {
	FleetName              string                   `json:"FleetName"`
	LaunchSpec             *LaunchSpecSpecification `json:"LaunchSpec,omitempty"`
	MinSize                *int                     `json:"MinSize,omitempty"`
	MaxSize                *int                     `json:"MaxSize,omitempty"`
	DesiredCapacity        *int                     `json:"DesiredCapacity,omitempty"`
	HealthCheckType        *string                  `json:"HealthCheckType,omitempty"`
	HealthCheckGracePeriod *int                     `json:"HealthCheckGracePeriod,omitempty"`
}

// DeleteFleetInput deletes a fleet
type DeleteFleetInput struct {
	FleetName   string `json:"FleetName"`
	ForceDelete bool   `json:"ForceDelete,omitempty"`
}

// TerminateMemberInput terminates a single member
type TerminateMemberInput struct {
	MemberId                       string `json:"MemberId"`
	ShouldDecrementDesiredCapacity bool   `json:"ShouldDecrementDesiredCapacity"`
}

// PutScalingPolicyInput attaches a scaling policy to a fleet
type PutScalingPolicyInput struct {
	FleetName               string `json:"FleetName"`
	PolicyName              string `json:"PolicyName"`
	AdjustmentType          string `json:"AdjustmentType,omitempty"`
	ScalingAdjustment       int    `json:"ScalingAdjustment"`
	Cooldown                int    `json:"Cooldown,omitempty"` // seconds
	MinAdjustmentMagnitude  int    `json:"MinAdjustmentMagnitude,omitempty"`
	EstimatedInstanceWarmup int    `json:"EstimatedInstanceWarmup,omitempty"` // seconds
}

// IamInstanceProfile references the role members run with
type IamInstanceProfile struct {
	Arn string `json:"Arn,omitempty"`
}

// LaunchSpecData is the content of a launch spec version
type LaunchSpecData struct {
	ImageId            string              `json:"ImageId"`
	InstanceType       string              `json:"InstanceType"`
	KeyName            string              `json:"KeyName,omitempty"`
	SecurityGroupIds   []string            `json:"SecurityGroupIds,omitempty"`
	IamInstanceProfile *IamInstanceProfile `json:"IamInstanceProfile,omitempty"`
}

// CreateLaunchSpecInput creates a launch spec and its first version
type CreateLaunchSpecInput struct {
	LaunchSpecName string         `json:"LaunchSpecName"`
	LaunchSpecData LaunchSpecData `json:"LaunchSpecData"`
}

// LaunchSpecSummary describes a created launch spec
type LaunchSpecSummary struct {
	LaunchSpecId        string    `json:"LaunchSpecId"`
	LaunchSpecName      string    `json:"LaunchSpecName"`
	LatestVersionNumber int64     `json:"LatestVersionNumber"`
	CreateTime          time.Time `json:"CreateTime"`
}

// CreateLaunchSpecOutput is returned by CreateLaunchSpec
type CreateLaunchSpecOutput struct {
	LaunchSpec LaunchSpecSummary `json:"LaunchSpec"`
}

// DescribeLaunchSpecVersionsInput selects versions of one launch spec
type DescribeLaunchSpecVersionsInput struct {
	LaunchSpecName string
	Versions       []string
}

// LaunchSpecVersion is one immutable version of a launch spec
type LaunchSpecVersion struct {
	LaunchSpecName string         `json:"LaunchSpecName"`
	VersionNumber  int64          `json:"VersionNumber"`
	LaunchSpecData LaunchSpecData `json:"LaunchSpecData"`
	CreateTime     time.Time      `json:"CreateTime"`
}

// DescribeLaunchSpecVersionsOutput lists the selected versions
type DescribeLaunchSpecVersionsOutput struct {
	LaunchSpecVersions []LaunchSpecVersion `json:"LaunchSpecVersions"`
}

// DeleteLaunchSpecInput deletes a launch spec and all its versions
type DeleteLaunchSpecInput struct {
	LaunchSpecName string `json:"LaunchSpecName"`
}
