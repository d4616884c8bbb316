package zclone

import (
	"errors"
	"reflect"
	"testing"
)

// In-memory SnapshotSource. TakeSnapshot appends the next snapshot of pending, or returns it as a
// simulated identifier when simulate is set.
type memorySource struct {
	snapshots map[string][]SnapshotID
	pending   map[string][]SnapshotID
	simulate  bool
	lists     int
	takes     int
}

func newMemorySource() *memorySource {
	return &memorySource{snapshots: make(map[string][]SnapshotID), pending: make(map[string][]SnapshotID)}
}

func (m *memorySource) ListSnapshots(volume string) ([]SnapshotID, error) {
	m.lists++
	return append([]SnapshotID{}, m.snapshots[volume]...), nil
}

func (m *memorySource) TakeSnapshot(volume string) (*SnapshotID, error) {
	m.takes++
	if len(m.pending[volume]) == 0 {
		return nil, errors.New("no snapshot to take")
	}
	next := m.pending[volume][0]
	m.pending[volume] = m.pending[volume][1:]

	if m.simulate {
		return &next, nil
	}
	m.snapshots[volume] = append(m.snapshots[volume], next)
	return nil, nil
}

func snap(volume, timestamp string) SnapshotID {
	return SnapshotID(volume + "@zfs-auto-snap_hourly-" + timestamp)
}

func TestSnapshotID(t *testing.T) {
	s := SnapshotID("tank/data@zfs-auto-snap_hourly-2021-12-11-0557")
	if s.Volume() != "tank/data" {
		t.Errorf("volume: %v", s.Volume())
	}
	if s.Label() != "zfs-auto-snap_hourly-2021-12-11-0557" {
		t.Errorf("label: %v", s.Label())
	}
	if s.Timestamp() != "2021-12-11-0557" {
		t.Errorf("timestamp: %v", s.Timestamp())
	}
	if s.WithVolume("backup/tank/data") != "backup/tank/data@zfs-auto-snap_hourly-2021-12-11-0557" {
		t.Errorf("with volume: %v", s.WithVolume("backup/tank/data"))
	}
	if !s.SameLabel("backup/tank/data@zfs-auto-snap_hourly-2021-12-11-0557") {
		t.Error("same label across volumes")
	}
}

func TestSortSnapshots(t *testing.T) {
	listed := []SnapshotID{
		snap("tank", "2021-12-11-0457"),
		SnapshotID("tank@zfs-auto-snap_daily-2021-12-12-0000"),
		snap("tank", "2021-12-11-0557"),
		snap("other", "2021-12-13-0000"),
		snap("tank", "2021-12-10-2357"),
	}

	expected := []SnapshotID{
		SnapshotID("tank@zfs-auto-snap_daily-2021-12-12-0000"),
		snap("tank", "2021-12-11-0557"),
		snap("tank", "2021-12-11-0457"),
		snap("tank", "2021-12-10-2357"),
	}

	result, err := SortSnapshots("tank", listed)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(result, expected) {
		t.Errorf("result: %v ; expected: %v", result, expected)
	}
}

func TestSortSnapshotsWithoutTimestamps(t *testing.T) {
	result, err := SortSnapshots("tank", []SnapshotID{"tank@1", "tank@3", "tank@2"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(result, []SnapshotID{"tank@3", "tank@2", "tank@1"}) {
		t.Errorf("result: %v", result)
	}
}

func TestSortSnapshotsMixedLabels(t *testing.T) {
	_, err := SortSnapshots("tank", []SnapshotID{snap("tank", "2021-12-11-0557"), "tank@pre-upgrade"})
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected a ParseError, got %v", err)
	}
	if parseErr.Input != "tank@pre-upgrade" {
		t.Errorf("input: %v", parseErr.Input)
	}
}

func TestHistoryFetchCached(t *testing.T) {
	source := newMemorySource()
	source.snapshots["tank"] = []SnapshotID{snap("tank", "2021-12-11-0457"), snap("tank", "2021-12-11-0557")}
	history := NewHistory("tank", source)

	for i := 0; i < 3; i++ {
		snapshots, err := history.Fetch()
		if err != nil {
			t.Fatal(err)
		}
		if len(snapshots) != 2 || snapshots[0] != snap("tank", "2021-12-11-0557") {
			t.Errorf("snapshots: %v", snapshots)
		}
	}
	if source.lists != 1 {
		t.Errorf("listing should happen once, got %d", source.lists)
	}

	latest, _ := history.Latest()
	earliest, _ := history.Earliest()
	if latest != snap("tank", "2021-12-11-0557") || earliest != snap("tank", "2021-12-11-0457") {
		t.Errorf("latest: %v ; earliest: %v", latest, earliest)
	}
}

func TestHistoryTake(t *testing.T) {
	source := newMemorySource()
	source.snapshots["tank"] = []SnapshotID{snap("tank", "2021-12-11-0457")}
	source.pending["tank"] = []SnapshotID{snap("tank", "2021-12-11-0557")}
	history := NewHistory("tank", source)

	if _, err := history.Fetch(); err != nil {
		t.Fatal(err)
	}
	if err := history.Take(); err != nil {
		t.Fatal(err)
	}

	latest, err := history.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if latest != snap("tank", "2021-12-11-0557") {
		t.Errorf("latest after take: %v", latest)
	}
	if source.lists != 2 {
		t.Errorf("take should invalidate the listing, got %d listings", source.lists)
	}
}

func TestHistoryTakeSimulated(t *testing.T) {
	source := newMemorySource()
	source.simulate = true
	source.snapshots["tank"] = []SnapshotID{snap("tank", "2021-12-11-0457")}
	source.pending["tank"] = []SnapshotID{snap("tank", "2021-12-11-0557")}
	history := NewHistory("tank", source)

	if err := history.Take(); err != nil {
		t.Fatal(err)
	}

	snapshots, err := history.Fetch()
	if err != nil {
		t.Fatal(err)
	}
	expected := []SnapshotID{snap("tank", "2021-12-11-0557"), snap("tank", "2021-12-11-0457")}
	if !reflect.DeepEqual(snapshots, expected) {
		t.Errorf("snapshots: %v ; expected: %v", snapshots, expected)
	}
	if len(source.snapshots["tank"]) != 1 {
		t.Error("a simulated snapshot should not reach the source")
	}
}

func TestHistoryEmpty(t *testing.T) {
	history := NewHistory("backup/tank", newMemorySource())
	if _, err := history.Latest(); !errors.Is(err, ErrEmptyHistory) {
		t.Errorf("latest: %v", err)
	}
	if _, err := history.Earliest(); !errors.Is(err, ErrEmptyHistory) {
		t.Errorf("earliest: %v", err)
	}
}

func TestEarliestCommon(t *testing.T) {
	source := newMemorySource()
	source.snapshots["tank"] = []SnapshotID{
		snap("tank", "2021-12-11-0357"),
		snap("tank", "2021-12-11-0457"),
		snap("tank", "2021-12-11-0557"),
	}
	source.snapshots["backup/tank"] = []SnapshotID{
		snap("backup/tank", "2021-12-11-0357"),
		snap("backup/tank", "2021-12-11-0457"),
	}
	source.snapshots["other"] = []SnapshotID{snap("other", "2020-01-01-0000")}

	src := NewHistory("tank", source)

	common, err := src.EarliestCommon(NewHistory("backup/tank", source))
	if err != nil {
		t.Fatal(err)
	}
	if common == nil || *common != snap("tank", "2021-12-11-0457") {
		t.Errorf("common: %v", common)
	}

	common, err = src.EarliestCommon(NewHistory("other", source))
	if err != nil {
		t.Fatal(err)
	}
	if common != nil {
		t.Errorf("no common snapshot expected, got %v", *common)
	}

	ok, err := src.Contains(snap("tank", "2021-12-11-0357"))
	if err != nil || !ok {
		t.Errorf("contains: %v %v", ok, err)
	}
	ok, err = src.Contains(snap("backup/tank", "2021-12-11-0357"))
	if err != nil || ok {
		t.Errorf("contains on another volume: %v %v", ok, err)
	}
}
