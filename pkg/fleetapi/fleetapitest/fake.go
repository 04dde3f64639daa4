// Package fleetapitest provides an in-memory fleet manager for tests.
package fleetapitest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/greenfleet/pkg/fleetapi"
)

// Operation names used for call recording and error injection
const (
	OpCreateFleet                = "CreateFleet"
	OpDescribeFleets             = "DescribeFleets"
	OpUpdateFleet                = "UpdateFleet"
	OpDeleteFleet                = "DeleteFleet"
	OpTerminateMember            = "TerminateMember"
	OpPutScalingPolicy           = "PutScalingPolicy"
	OpCreateLaunchSpec           = "CreateLaunchSpec"
	OpDescribeLaunchSpecVersions = "DescribeLaunchSpecVersions"
	OpDeleteLaunchSpec           = "DeleteLaunchSpec"
)

// Call is one recorded API call
type Call struct {
	Op     string
	Target string // fleet, member or launch spec name
}

type member struct {
	desc fleetapi.MemberDescription
	age  int // describes seen while pending or terminating
}

type fleet struct {
	desc     fleetapi.FleetDescription
	members  []*member
	policies []fleetapi.PutScalingPolicyInput
}

type launchSpec struct {
	summary  fleetapi.LaunchSpecSummary
	versions []fleetapi.LaunchSpecVersion
}

// Fake is an in-memory fleet manager. New members start Pending and become
// Healthy/InService after ReadyAfter fleet reads; terminated members show as
// Terminating for one read and are gone on the next.
type Fake struct {
	// ReadyAfter is the number of reads a pending member needs to become
	// ready. Negative means members never become ready.
	ReadyAfter int
	// PageSize caps fleets per DescribeFleets page; 0 means unlimited.
	PageSize int

	mu          sync.Mutex
	fleets      map[string]*fleet
	launchSpecs map[string]*launchSpec
	calls       []Call
	failures    map[string][]error
	lost        map[string][]error
	nextMember  int
	now         func() time.Time
}

var _ fleetapi.API = (*Fake)(nil)

// New creates an empty fake
func New() *Fake {
	return &Fake{
		ReadyAfter:  1,
		fleets:      make(map[string]*fleet),
		launchSpecs: make(map[string]*launchSpec),
		failures:    make(map[string][]error),
		lost:        make(map[string][]error),
		now:         time.Now,
	}
}

// FailNext queues err to be returned by the next calls of op, in order
func (f *Fake) FailNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

// LoseNext queues err to be returned by the next successful creates of op
// after they have been applied, as if the response never reached the
// client. Only OpCreateFleet and OpCreateLaunchSpec consult it.
func (f *Fake) LoseNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lost[op] = append(f.lost[op], errs...)
}

// Calls returns every recorded call
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsFor returns the recorded calls of one operation
func (f *Fake) CallsFor(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// SeedLaunchSpec stores a launch spec without recording a call
func (f *Fake) SeedLaunchSpec(name string, data fleetapi.LaunchSpecData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putLaunchSpec(name, data)
}

// SeedFleet stores a fleet with desired capacity healthy, in-service members
func (f *Fake) SeedFleet(desc fleetapi.FleetDescription) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fl := &fleet{desc: desc}
	for i := 0; i < desc.DesiredCapacity; i++ {
		fl.members = append(fl.members, &member{desc: fleetapi.MemberDescription{
			MemberId:       f.memberID(),
			HealthStatus:   "Healthy",
			LifecycleState: "InService",
		}})
	}
	fl.desc.Members = nil
	f.fleets[desc.FleetName] = fl
}

// Fleet returns the stored fleet, as the last read saw it
func (f *Fake) Fleet(name string) (fleetapi.FleetDescription, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl, ok := f.fleets[name]
	if !ok {
		return fleetapi.FleetDescription{}, false
	}
	return fl.snapshot(), true
}

// FleetNames returns the names of every stored fleet
func (f *Fake) FleetNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedKeys(f.fleets)
}

// Policies returns the scaling policies attached to a fleet
func (f *Fake) Policies(name string) []fleetapi.PutScalingPolicyInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fl, ok := f.fleets[name]; ok {
		return append([]fleetapi.PutScalingPolicyInput(nil), fl.policies...)
	}
	return nil
}

// LaunchSpec returns the latest data of a stored launch spec
func (f *Fake) LaunchSpec(name string) (fleetapi.LaunchSpecData, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ls, ok := f.launchSpecs[name]
	if !ok {
		return fleetapi.LaunchSpecData{}, false
	}
	return ls.versions[len(ls.versions)-1].LaunchSpecData, true
}

// LaunchSpecNames returns the names of every stored launch spec
func (f *Fake) LaunchSpecNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedKeys(f.launchSpecs)
}

// CreateFleet implements fleetapi.API
func (f *Fake) CreateFleet(_ context.Context, in *fleetapi.CreateFleetInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpCreateFleet, in.FleetName); err != nil {
		return err
	}

	if _, ok := f.fleets[in.FleetName]; ok {
		return fleetapi.NewAPIError(fleetapi.CodeAlreadyExists, fmt.Sprintf("fleet %s already exists", in.FleetName))
	}
	if in.LaunchSpec == nil {
		return fleetapi.NewAPIError(fleetapi.CodeValidationError, "launch spec is required")
	}
	if _, ok := f.launchSpecs[in.LaunchSpec.LaunchSpecName]; !ok {
		return fleetapi.NewAPIError(fleetapi.CodeValidationError,
			fmt.Sprintf("launch spec %s does not exist", in.LaunchSpec.LaunchSpecName))
	}
	if in.MinSize > in.DesiredCapacity || in.DesiredCapacity > in.MaxSize {
		return fleetapi.NewAPIError(fleetapi.CodeValidationError, "desired capacity must be within min and max")
	}

	spec := *in.LaunchSpec
	f.fleets[in.FleetName] = &fleet{desc: fleetapi.FleetDescription{
		FleetName:              in.FleetName,
		LaunchSpec:             &spec,
		MinSize:                in.MinSize,
		MaxSize:                in.MaxSize,
		DesiredCapacity:        in.DesiredCapacity,
		VPCZoneIdentifier:      in.VPCZoneIdentifier,
		AvailabilityZones:      append([]string(nil), in.AvailabilityZones...),
		TargetGroupARNs:        append([]string(nil), in.TargetGroupARNs...),
		HealthCheckType:        in.HealthCheckType,
		HealthCheckGracePeriod: in.HealthCheckGracePeriod,
		CreatedTime:            f.now(),
	}}
	return f.pop(f.lost, OpCreateFleet)
}

// DescribeFleets implements fleetapi.API. Every read advances member
// lifecycles by one step.
func (f *Fake) DescribeFleets(_ context.Context, in *fleetapi.DescribeFleetsInput) (*fleetapi.DescribeFleetsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpDescribeFleets, joinNames(in.FleetNames)); err != nil {
		return nil, err
	}

	names := in.FleetNames
	if len(names) == 0 {
		names = sortedKeys(f.fleets)
	}

	start := 0
	if in.NextToken != "" {
		n, err := strconv.Atoi(in.NextToken)
		if err != nil || n < 0 || n > len(names) {
			return nil, fleetapi.NewAPIError(fleetapi.CodeInvalidNextToken, "invalid next token")
		}
		start = n
	}

	pageSize := f.PageSize
	if in.MaxRecords > 0 && (pageSize == 0 || in.MaxRecords < pageSize) {
		pageSize = in.MaxRecords
	}

	out := &fleetapi.DescribeFleetsOutput{}
	i := start
	for ; i < len(names); i++ {
		if pageSize > 0 && len(out.Fleets) == pageSize {
			out.NextToken = strconv.Itoa(i)
			break
		}
		fl, ok := f.fleets[names[i]]
		if !ok {
			continue
		}
		f.step(fl)
		out.Fleets = append(out.Fleets, fl.snapshot())
	}
	return out, nil
}

// UpdateFleet implements fleetapi.API
func (f *Fake) UpdateFleet(_ context.Context, in *fleetapi.UpdateFleetInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpUpdateFleet, in.FleetName); err != nil {
		return err
	}

	fl, ok := f.fleets[in.FleetName]
	if !ok {
		return fleetapi.NewAPIError(fleetapi.CodeNotFound, fmt.Sprintf("fleet %s not found", in.FleetName))
	}

	d := fl.desc
	if in.MinSize != nil {
		d.MinSize = *in.MinSize
	}
	if in.MaxSize != nil {
		d.MaxSize = *in.MaxSize
	}
	if in.DesiredCapacity != nil {
		d.DesiredCapacity = *in.DesiredCapacity
	}
	if in.HealthCheckType != nil {
		d.HealthCheckType = *in.HealthCheckType
	}
	if in.HealthCheckGracePeriod != nil {
		d.HealthCheckGracePeriod = *in.HealthCheckGracePeriod
	}
	if in.LaunchSpec != nil {
		spec := *in.LaunchSpec
		d.LaunchSpec = &spec
	}
	if d.MinSize > d.DesiredCapacity || d.DesiredCapacity > d.MaxSize {
		return fleetapi.NewAPIError(fleetapi.CodeValidationError, "desired capacity must be within min and max")
	}
	fl.desc = d
	return nil
}

// DeleteFleet implements fleetapi.API
func (f *Fake) DeleteFleet(_ context.Context, in *fleetapi.DeleteFleetInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpDeleteFleet, in.FleetName); err != nil {
		return err
	}

	fl, ok := f.fleets[in.FleetName]
	if !ok {
		return fleetapi.NewAPIError(fleetapi.CodeNotFound, fmt.Sprintf("fleet %s not found", in.FleetName))
	}
	if len(fl.members) > 0 && !in.ForceDelete {
		return fleetapi.NewAPIError(fleetapi.CodeResourceInUse,
			fmt.Sprintf("fleet %s still has %d members", in.FleetName, len(fl.members)))
	}
	delete(f.fleets, in.FleetName)
	return nil
}

// TerminateMember implements fleetapi.API
func (f *Fake) TerminateMember(_ context.Context, in *fleetapi.TerminateMemberInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpTerminateMember, in.MemberId); err != nil {
		return err
	}

	for _, fl := range f.fleets {
		for _, m := range fl.members {
			if m.desc.MemberId != in.MemberId {
				continue
			}
			if m.desc.LifecycleState == "Terminating" {
				return nil
			}
			if in.ShouldDecrementDesiredCapacity {
				if fl.desc.DesiredCapacity-1 < fl.desc.MinSize {
					return fleetapi.NewAPIError(fleetapi.CodeValidationError,
						"decrementing desired capacity would go below min size")
				}
				fl.desc.DesiredCapacity--
			}
			m.desc.LifecycleState = "Terminating"
			m.age = 0
			return nil
		}
	}
	return fleetapi.NewAPIError(fleetapi.CodeNotFound, fmt.Sprintf("member %s not found", in.MemberId))
}

// PutScalingPolicy implements fleetapi.API
func (f *Fake) PutScalingPolicy(_ context.Context, in *fleetapi.PutScalingPolicyInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpPutScalingPolicy, in.FleetName); err != nil {
		return err
	}

	fl, ok := f.fleets[in.FleetName]
	if !ok {
		return fleetapi.NewAPIError(fleetapi.CodeNotFound, fmt.Sprintf("fleet %s not found", in.FleetName))
	}
	fl.policies = append(fl.policies, *in)
	return nil
}

// CreateLaunchSpec implements fleetapi.API
func (f *Fake) CreateLaunchSpec(_ context.Context, in *fleetapi.CreateLaunchSpecInput) (*fleetapi.CreateLaunchSpecOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpCreateLaunchSpec, in.LaunchSpecName); err != nil {
		return nil, err
	}

	if _, ok := f.launchSpecs[in.LaunchSpecName]; ok {
		return nil, fleetapi.NewAPIError(fleetapi.CodeAlreadyExists,
			fmt.Sprintf("launch spec %s already exists", in.LaunchSpecName))
	}
	if in.LaunchSpecData.ImageId == "" {
		return nil, fleetapi.NewAPIError(fleetapi.CodeValidationError, "image id is required")
	}
	ls := f.putLaunchSpec(in.LaunchSpecName, in.LaunchSpecData)
	if err := f.pop(f.lost, OpCreateLaunchSpec); err != nil {
		return nil, err
	}
	return &fleetapi.CreateLaunchSpecOutput{LaunchSpec: ls.summary}, nil
}

// DescribeLaunchSpecVersions implements fleetapi.API
func (f *Fake) DescribeLaunchSpecVersions(_ context.Context, in *fleetapi.DescribeLaunchSpecVersionsInput) (*fleetapi.DescribeLaunchSpecVersionsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpDescribeLaunchSpecVersions, in.LaunchSpecName); err != nil {
		return nil, err
	}

	ls, ok := f.launchSpecs[in.LaunchSpecName]
	if !ok {
		return nil, fleetapi.NewAPIError(fleetapi.CodeNotFound,
			fmt.Sprintf("launch spec %s not found", in.LaunchSpecName))
	}

	out := &fleetapi.DescribeLaunchSpecVersionsOutput{}
	if len(in.Versions) == 0 {
		out.LaunchSpecVersions = append(out.LaunchSpecVersions, ls.versions...)
		return out, nil
	}
	for _, v := range in.Versions {
		if v == fleetapi.LatestVersion {
			out.LaunchSpecVersions = append(out.LaunchSpecVersions, ls.versions[len(ls.versions)-1])
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 || int(n) > len(ls.versions) {
			return nil, fleetapi.NewAPIError(fleetapi.CodeNotFound,
				fmt.Sprintf("version %s of launch spec %s not found", v, in.LaunchSpecName))
		}
		out.LaunchSpecVersions = append(out.LaunchSpecVersions, ls.versions[n-1])
	}
	return out, nil
}

// DeleteLaunchSpec implements fleetapi.API
func (f *Fake) DeleteLaunchSpec(_ context.Context, in *fleetapi.DeleteLaunchSpecInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpDeleteLaunchSpec, in.LaunchSpecName); err != nil {
		return err
	}

	if _, ok := f.launchSpecs[in.LaunchSpecName]; !ok {
		return fleetapi.NewAPIError(fleetapi.CodeNotFound,
			fmt.Sprintf("launch spec %s not found", in.LaunchSpecName))
	}
	for _, fl := range f.fleets {
		if fl.desc.LaunchSpec != nil && fl.desc.LaunchSpec.LaunchSpecName == in.LaunchSpecName {
			return fleetapi.NewAPIError(fleetapi.CodeResourceInUse,
				fmt.Sprintf("launch spec %s is used by fleet %s", in.LaunchSpecName, fl.desc.FleetName))
		}
	}
	delete(f.launchSpecs, in.LaunchSpecName)
	return nil
}

// record logs the call and pops a queued failure for op, if any
func (f *Fake) record(op, target string) error {
	f.calls = append(f.calls, Call{Op: op, Target: target})
	return f.pop(f.failures, op)
}

func (f *Fake) pop(queues map[string][]error, op string) error {
	queue := queues[op]
	if len(queue) == 0 {
		return nil
	}
	queues[op] = queue[1:]
	return queue[0]
}

// step advances one fleet by one read: terminating members disappear after
// being seen once, pending members age towards ready, and the fleet grows
// up to its desired capacity.
func (f *Fake) step(fl *fleet) {
	kept := fl.members[:0]
	live := 0
	for _, m := range fl.members {
		switch m.desc.LifecycleState {
		case "Terminating":
			if m.age >= 1 {
				continue
			}
			m.age++
		case "Pending":
			if f.ReadyAfter >= 0 && m.age >= f.ReadyAfter {
				m.desc.LifecycleState = "InService"
				m.desc.HealthStatus = "Healthy"
			} else {
				m.age++
			}
			live++
		default:
			live++
		}
		kept = append(kept, m)
	}
	fl.members = kept

	for ; live < fl.desc.DesiredCapacity; live++ {
		m := &member{desc: fleetapi.MemberDescription{
			MemberId:       f.memberID(),
			HealthStatus:   "Unhealthy",
			LifecycleState: "Pending",
		}}
		if f.ReadyAfter == 0 {
			m.desc.HealthStatus = "Healthy"
			m.desc.LifecycleState = "InService"
		} else {
			m.age = 1
		}
		fl.members = append(fl.members, m)
	}
}

func (f *Fake) memberID() string {
	f.nextMember++
	return fmt.Sprintf("m-%04d", f.nextMember)
}

func (f *Fake) putLaunchSpec(name string, data fleetapi.LaunchSpecData) *launchSpec {
	created := f.now()
	ls := &launchSpec{
		summary: fleetapi.LaunchSpecSummary{
			LaunchSpecId:        fmt.Sprintf("ls-%s", name),
			LaunchSpecName:      name,
			LatestVersionNumber: 1,
			CreateTime:          created,
		},
		versions: []fleetapi.LaunchSpecVersion{{
			LaunchSpecName: name,
			VersionNumber:  1,
			LaunchSpecData: data,
			CreateTime:     created,
		}},
	}
	f.launchSpecs[name] = ls
	return ls
}

func (fl *fleet) snapshot() fleetapi.FleetDescription {
	d := fl.desc
	d.Members = make([]fleetapi.MemberDescription, 0, len(fl.members))
	for _, m := range fl.members {
		d.Members = append(d.Members, m.desc)
	}
	return d
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinNames(names []string) string {
	if len(names) == 0 {
		return "*"
	}
	out := names[0]
	for _, n := range names[1:] {
		out += "," + n
	}
	return out
}
