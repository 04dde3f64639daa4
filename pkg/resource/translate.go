package resource

import (
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/greenfleet/pkg/fleetapi"
	"github.com/cuemby/greenfleet/pkg/types"
)

// Field-name translation between pkg/types and the fleet manager wire format.

func createFleetInput(name, launchSpecName string, cfg types.FleetConfig) *fleetapi.CreateFleetInput {
	return &fleetapi.CreateFleetInput{
		FleetName:              name,
		LaunchSpec:             &fleetapi.LaunchSpecSpecification{LaunchSpecName: launchSpecName, Version: fleetapi.LatestVersion},
		MinSize:                cfg.MinCapacity,
		MaxSize:                cfg.MaxCapacity,
		DesiredCapacity:        cfg.DesiredCapacity,
		VPCZoneIdentifier:      strings.Join(cfg.SubnetIDs, ","),
		AvailabilityZones:      cfg.AvailabilityZones,
		TargetGroupARNs:        cfg.TargetGroupARNs,
		HealthCheckType:        cfg.HealthCheck.Type,
		HealthCheckGracePeriod: seconds(cfg.HealthCheck.GracePeriod),
	}
}

func scalingPolicyInput(fleetName string, p types.ScalingPolicy) *fleetapi.PutScalingPolicyInput {
	return &fleetapi.PutScalingPolicyInput{
		FleetName:               fleetName,
		PolicyName:              p.Name,
		AdjustmentType:          p.AdjustmentType,
		ScalingAdjustment:       p.ScalingAdjustment,
		Cooldown:                seconds(p.Cooldown),
		MinAdjustmentMagnitude:  p.MinAdjustmentMagnitude,
		EstimatedInstanceWarmup: seconds(p.EstimatedInstanceWarmup),
	}
}

func updateFleetInput(name string, u FleetUpdate) *fleetapi.UpdateFleetInput {
	in := &fleetapi.UpdateFleetInput{
		FleetName:       name,
		MinSize:         u.MinCapacity,
		MaxSize:         u.MaxCapacity,
		DesiredCapacity: u.DesiredCapacity,
	}
	if u.LaunchSpec != nil {
		in.LaunchSpec = &fleetapi.LaunchSpecSpecification{
			LaunchSpecName: u.LaunchSpec.Name,
			Version:        u.LaunchSpec.Version,
		}
	}
	if u.HealthCheck != nil {
		hcType := u.HealthCheck.Type
		grace := seconds(u.HealthCheck.GracePeriod)
		in.HealthCheckType = &hcType
		in.HealthCheckGracePeriod = &grace
	}
	return in
}

func fleetFromDescription(d fleetapi.FleetDescription) *types.Fleet {
	f := &types.Fleet{
		Name:              d.FleetName,
		MinCapacity:       d.MinSize,
		MaxCapacity:       d.MaxSize,
		DesiredCapacity:   d.DesiredCapacity,
		SubnetIDs:         splitList(d.VPCZoneIdentifier),
		AvailabilityZones: d.AvailabilityZones,
		TargetGroupARNs:   d.TargetGroupARNs,
		HealthCheck: types.HealthCheck{
			Type:        d.HealthCheckType,
			GracePeriod: time.Duration(d.HealthCheckGracePeriod) * time.Second,
		},
		CreatedAt: d.CreatedTime,
	}
	if d.LaunchSpec != nil {
		f.LaunchSpec = types.LaunchSpecRef{Name: d.LaunchSpec.LaunchSpecName, Version: d.LaunchSpec.Version}
	}
	for _, m := range d.Members {
		f.Members = append(f.Members, types.Member{
			ID:             m.MemberId,
			HealthStatus:   types.HealthStatus(m.HealthStatus),
			LifecycleState: types.LifecycleState(m.LifecycleState),
		})
	}
	return f
}

func launchSpecDataToWire(d types.LaunchSpecData) fleetapi.LaunchSpecData {
	out := fleetapi.LaunchSpecData{
		ImageId:          d.ImageID,
		InstanceType:     d.InstanceType,
		KeyName:          d.KeyPair,
		SecurityGroupIds: d.SecurityGroupIDs,
	}
	if d.InstanceProfileARN != "" {
		out.IamInstanceProfile = &fleetapi.IamInstanceProfile{Arn: d.InstanceProfileARN}
	}
	return out
}

func launchSpecFromVersion(v fleetapi.LaunchSpecVersion) *types.LaunchSpec {
	ls := &types.LaunchSpec{
		Name:    v.LaunchSpecName,
		Version: strconv.FormatInt(v.VersionNumber, 10),
		Data: types.LaunchSpecData{
			ImageID:          v.LaunchSpecData.ImageId,
			InstanceType:     v.LaunchSpecData.InstanceType,
			KeyPair:          v.LaunchSpecData.KeyName,
			SecurityGroupIDs: v.LaunchSpecData.SecurityGroupIds,
		},
		CreatedAt: v.CreateTime,
	}
	if v.LaunchSpecData.IamInstanceProfile != nil {
		ls.Data.InstanceProfileARN = v.LaunchSpecData.IamInstanceProfile.Arn
	}
	return ls
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
