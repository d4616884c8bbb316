package zclone

// Identifies a snapshot, as "<volume>@<label>". The label embeds a sortable timestamp.
type SnapshotID string

// Where snapshot histories come from
type SnapshotSource interface {
	// Unsorted list of the snapshots of a volume. Empty if the volume does not exist.
	ListSnapshots(volume string) ([]SnapshotID, error)

	// Take a snapshot of the volume now.
	// In simulate mode, nothing is created and the returned identifier is the one that would have been
	// created ; otherwise the returned identifier is nil.
	TakeSnapshot(volume string) (*SnapshotID, error)
}

// Makes the live filesystem of volumes available for diffing
type Mounter interface {
	// Mount a volume and its descendants. The returned function puts back every dataset that was not
	// mounted before the call into its unmounted state.
	Mount(volume string) (restore func() error, err error)
}
