package zclone

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	// Timestamp embedded in a snapshot label, as produced by zfs-auto-snapshot
	SnapshotTimestampRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}-\d{4}`)

	snapshotLog = logrus.WithFields(logrus.Fields{
		"component": "snapshot",
	})
)

func (s SnapshotID) Volume() string {
	volume, _, _ := strings.Cut(string(s), "@")
	return volume
}

func (s SnapshotID) Label() string {
	_, label, _ := strings.Cut(string(s), "@")
	return label
}

// The same point in time on another volume
func (s SnapshotID) WithVolume(volume string) SnapshotID {
	return SnapshotID(volume + "@" + s.Label())
}

// Sort key of the snapshot ; empty if the label embeds no timestamp
func (s SnapshotID) Timestamp() string {
	return SnapshotTimestampRe.FindString(s.Label())
}

// Whether both identifiers denote the same point in time, regardless of their volume
func (s SnapshotID) SameLabel(other SnapshotID) bool {
	return s.Label() == other.Label()
}

// Ordering key: the timestamp of the label, or the whole label if it embeds none
func (s SnapshotID) sortKey() string {
	if ts := s.Timestamp(); ts != "" {
		return ts
	}
	return s.Label()
}

// Compare snapshots by the timestamp of their label, or by label when it has none
func CompareSnapshots(a, b SnapshotID) int {
	return strings.Compare(a.sortKey(), b.sortKey())
}

// Sorted from most recent to least recent. Identifiers of other volumes are dropped.
// Labels are ordered by their timestamp, or by themselves when no label of the listing has one ;
// a listing mixing both has no order and is a ParseError.
func SortSnapshots(volume string, snapshots []SnapshotID) ([]SnapshotID, error) {
	res := make([]SnapshotID, 0, len(snapshots))
	var stamped, unstamped *SnapshotID
	for i, s := range snapshots {
		if s.Volume() != volume || s.Label() == "" {
			snapshotLog.WithFields(logrus.Fields{"snapshot": string(s)}).Warnf("invalid snapshot name")
			continue
		}
		if s.Timestamp() == "" {
			unstamped = &snapshots[i]
		} else {
			stamped = &snapshots[i]
		}
		res = append(res, s)
	}

	if stamped != nil && unstamped != nil {
		return nil, &ParseError{What: "snapshot timestamp", Input: string(*unstamped)}
	}

	sort.SliceStable(res, func(a, b int) bool {
		return CompareSnapshots(res[a], res[b]) > 0
	})

	return res, nil
}

// Snapshot history of one volume, newest first.
// The listing happens once, on first use ; Take() invalidates it.
type History struct {
	volume string
	source SnapshotSource
	log    *logrus.Entry

	fetched   bool
	snapshots []SnapshotID

	// Identifier of the last snapshot taken in simulate mode
	simulated *SnapshotID
}

func NewHistory(volume string, source SnapshotSource) *History {
	return &History{
		volume: volume,
		source: source,
		log:    snapshotLog.WithFields(logrus.Fields{"volume": volume}),
	}
}

func (h *History) Volume() string {
	return h.volume
}

// Snapshots of the volume, newest first. A snapshot taken in simulate mode comes first.
func (h *History) Fetch() ([]SnapshotID, error) {
	if h.fetched {
		return h.snapshots, nil
	}

	listed, err := h.source.ListSnapshots(h.volume)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots of %s: %w", h.volume, err)
	}

	snapshots, err := SortSnapshots(h.volume, listed)
	if err != nil {
		return nil, fmt.Errorf("sorting snapshots of %s: %w", h.volume, err)
	}
	if h.simulated != nil {
		snapshots = append([]SnapshotID{*h.simulated}, snapshots...)
		h.log.Infof("add the %s snapshot into the list on memory", *h.simulated)
	}

	h.snapshots = snapshots
	h.fetched = true
	h.log.Debugf("snapshots: %v", h.snapshots)
	return h.snapshots, nil
}

// Take a snapshot now and forget the cached listing
func (h *History) Take() error {
	simulated, err := h.source.TakeSnapshot(h.volume)
	if err != nil {
		return fmt.Errorf("taking snapshot of %s: %w", h.volume, err)
	}

	if simulated != nil {
		h.simulated = simulated
	}

	h.fetched = false
	h.snapshots = nil
	return nil
}

// Most recent snapshot of this history whose label is also in other, or nil if they share no label.
// This is the earliest point of the increment that brings other up to date.
func (h *History) EarliestCommon(other *History) (*SnapshotID, error) {
	theirs, err := other.Fetch()
	if err != nil {
		return nil, err
	}

	ours, err := h.Fetch()
	if err != nil {
		return nil, err
	}

	for _, t := range theirs {
		for i, o := range ours {
			if o.SameLabel(t) {
				h.log.Debugf("earliest common snapshot: %s", o)
				return &ours[i], nil
			}
		}
	}

	return nil, nil
}

func (h *History) Contains(id SnapshotID) (bool, error) {
	snapshots, err := h.Fetch()
	if err != nil {
		return false, err
	}

	for _, s := range snapshots {
		if s == id {
			return true, nil
		}
	}
	return false, nil
}

// Oldest snapshot
func (h *History) Earliest() (SnapshotID, error) {
	snapshots, err := h.Fetch()
	if err != nil {
		return "", err
	}
	if len(snapshots) == 0 {
		return "", fmt.Errorf("%s: %w", h.volume, ErrEmptyHistory)
	}
	return snapshots[len(snapshots)-1], nil
}

// Newest snapshot
func (h *History) Latest() (SnapshotID, error) {
	snapshots, err := h.Fetch()
	if err != nil {
		return "", err
	}
	if len(snapshots) == 0 {
		return "", fmt.Errorf("%s: %w", h.volume, ErrEmptyHistory)
	}
	return snapshots[0], nil
}
