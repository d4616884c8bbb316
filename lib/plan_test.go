package zclone

import (
	"errors"
	"reflect"
	"testing"
)

type planTest struct {
	name     string
	source   []string
	dest     []string
	take     string
	expected Plan
}

func TestReconcile(t *testing.T) {
	tests := []planTest{
		{
			name:   "incremental",
			source: []string{"2021-12-11-0357", "2021-12-11-0457"},
			dest:   []string{"2021-12-11-0357"},
			take:   "2021-12-11-0557",
			expected: Plan{
				Case: CaseIncremental, Source: "tank", Destination: "backup/tank",
				Earliest: snap("tank", "2021-12-11-0357"), Latest: snap("tank", "2021-12-11-0557"),
			},
		},
		{
			name:   "full",
			source: []string{"2021-12-11-0357", "2021-12-11-0457"},
			take:   "2021-12-11-0557",
			expected: Plan{
				Case: CaseFull, Source: "tank", Destination: "backup/tank",
				Earliest: snap("tank", "2021-12-11-0357"), Latest: snap("tank", "2021-12-11-0557"),
			},
		},
		{
			name: "full single point",
			take: "2021-12-11-0557",
			expected: Plan{
				Case: CaseFull, Source: "tank", Destination: "backup/tank",
				Earliest: snap("tank", "2021-12-11-0557"), Latest: snap("tank", "2021-12-11-0557"),
			},
		},
		{
			name:   "unrelated destination",
			source: []string{"2021-12-11-0457"},
			dest:   []string{"2020-01-01-0000"},
			take:   "2021-12-11-0557",
			expected: Plan{
				Case: CaseFull, Source: "tank", Destination: "backup/tank",
				Earliest: snap("tank", "2021-12-11-0457"), Latest: snap("tank", "2021-12-11-0557"),
			},
		},
	}

	for _, test := range tests {
		source := newMemorySource()
		for _, ts := range test.source {
			source.snapshots["tank"] = append(source.snapshots["tank"], snap("tank", ts))
		}
		for _, ts := range test.dest {
			source.snapshots["backup/tank"] = append(source.snapshots["backup/tank"], snap("backup/tank", ts))
		}
		source.pending["tank"] = []SnapshotID{snap("tank", test.take)}

		plan, err := Reconcile(NewHistory("tank", source), NewHistory("backup/tank", source))
		if err != nil {
			t.Errorf("%s: %v", test.name, err)
			continue
		}
		if !reflect.DeepEqual(plan, test.expected) {
			t.Errorf("%s: result: %v ; expected: %v", test.name, plan, test.expected)
		}
		if source.takes != 1 {
			t.Errorf("%s: %d snapshots taken", test.name, source.takes)
		}
	}
}

func TestComputePlanKeep(t *testing.T) {
	source := newMemorySource()
	source.snapshots["tank"] = []SnapshotID{snap("tank", "2021-12-11-0457"), snap("tank", "2021-12-11-0557")}
	source.snapshots["backup/tank"] = []SnapshotID{snap("backup/tank", "2021-12-11-0457"), snap("backup/tank", "2021-12-11-0557")}

	src := NewHistory("tank", source)
	dst := NewHistory("backup/tank", source)

	expected := Plan{
		Case: CaseKeep, Source: "tank", Destination: "backup/tank",
		Earliest: snap("tank", "2021-12-11-0557"), Latest: snap("tank", "2021-12-11-0557"),
	}

	// Computing twice on unchanged histories gives the same plan and takes no snapshot
	for i := 0; i < 2; i++ {
		plan, err := ComputePlan(src, dst)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(plan, expected) {
			t.Errorf("result: %v ; expected: %v", plan, expected)
		}
	}
	if source.takes != 0 {
		t.Errorf("%d snapshots taken", source.takes)
	}
}

func TestReconcileSimulated(t *testing.T) {
	source := newMemorySource()
	source.simulate = true
	source.snapshots["tank"] = []SnapshotID{snap("tank", "2021-12-11-0457")}
	source.snapshots["backup/tank"] = []SnapshotID{snap("backup/tank", "2021-12-11-0457")}
	source.pending["tank"] = []SnapshotID{snap("tank", "2021-12-11-0557")}

	plan, err := Reconcile(NewHistory("tank", source), NewHistory("backup/tank", source))
	if err != nil {
		t.Fatal(err)
	}
	if plan.Case != CaseIncremental || plan.Latest != snap("tank", "2021-12-11-0557") {
		t.Errorf("plan: %v", plan)
	}
}

func TestPlanString(t *testing.T) {
	plan := Plan{
		Case: CaseIncremental, Source: "tank", Destination: "backup/tank",
		Earliest: snap("tank", "2021-12-11-0457"), Latest: snap("tank", "2021-12-11-0557"),
	}
	expected := "tank -> backup/tank: incremental (zfs-auto-snap_hourly-2021-12-11-0457 .. zfs-auto-snap_hourly-2021-12-11-0557)"
	if plan.String() != expected {
		t.Errorf("string: %q", plan.String())
	}
	if plan.SinglePoint() {
		t.Error("incremental plan is not a single point")
	}
}

func TestComputePlanPlainLabels(t *testing.T) {
	source := newMemorySource()
	source.snapshots["tank"] = []SnapshotID{"tank@2", "tank@1"}
	source.snapshots["backup/tank"] = []SnapshotID{"backup/tank@1"}
	source.snapshots["backup/other"] = []SnapshotID{"backup/other@0"}

	plan, err := ComputePlan(NewHistory("tank", source), NewHistory("backup/tank", source))
	if err != nil {
		t.Fatal(err)
	}
	expected := Plan{Case: CaseIncremental, Source: "tank", Destination: "backup/tank", Earliest: "tank@1", Latest: "tank@2"}
	if !reflect.DeepEqual(plan, expected) {
		t.Errorf("result: %v ; expected: %v", plan, expected)
	}

	plan, err = ComputePlan(NewHistory("tank", source), NewHistory("backup/other", source))
	if err != nil {
		t.Fatal(err)
	}
	expected = Plan{Case: CaseFull, Source: "tank", Destination: "backup/other", Earliest: "tank@1", Latest: "tank@2"}
	if !reflect.DeepEqual(plan, expected) {
		t.Errorf("result: %v ; expected: %v", plan, expected)
	}
}

func TestComputePlanSharedLabelWithoutTimestamp(t *testing.T) {
	source := newMemorySource()
	source.snapshots["tank"] = []SnapshotID{snap("tank", "2021-12-11-0557"), "tank@pre-upgrade", snap("tank", "2021-12-10-0000")}
	source.snapshots["backup/tank"] = []SnapshotID{"backup/tank@pre-upgrade"}

	// Unordered history: no plan rather than a full send over the shared snapshot
	_, err := ComputePlan(NewHistory("tank", source), NewHistory("backup/tank", source))
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("expected a ParseError, got %v", err)
	}
}
