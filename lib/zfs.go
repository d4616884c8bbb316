package zclone

import (
	"strings"

	"github.com/sirupsen/logrus"
)

var zfsLog = logrus.WithFields(logrus.Fields{
	"component": "zfs",
})

// Builds the stages of every external command needed, from options:
//
//	ZfsCommand       zfs
//	SnapshotCommand  zfs-auto-snapshot
//	DumpCommand      zstreamdump
//	DisplayCommand   pv
//	SnapshotLabel    label given to zfs-auto-snapshot (hourly)
//	Replicate        send a replication stream, with descendants and properties (true)
//	Raw              send encrypted data as is (true)
type Zfs struct {
	zfsCommand      []string
	snapshotCommand []string
	dumpCommand     []string
	displayCommand  []string
	label           string
	replicate       bool
	raw             bool
}

func NewZfs(options *Options) (*Zfs, error) {
	replicate, err := options.GetBoolean("Replicate", true)
	if err != nil {
		return nil, err
	}

	raw, err := options.GetBoolean("Raw", true)
	if err != nil {
		return nil, err
	}

	return &Zfs{
		zfsCommand:      options.GetCommand("ZfsCommand", []string{"zfs"}),
		snapshotCommand: options.GetCommand("SnapshotCommand", []string{"zfs-auto-snapshot"}),
		dumpCommand:     options.GetCommand("DumpCommand", []string{"zstreamdump"}),
		displayCommand:  options.GetCommand("DisplayCommand", []string{"pv"}),
		label:           options.GetString("SnapshotLabel", "hourly"),
		replicate:       replicate,
		raw:             raw,
	}, nil
}

func (z *Zfs) zfs(args ...string) *Stage {
	return NewStage(z.zfsCommand, args...)
}

// Names of all pools and datasets
func (z *Zfs) ListVolumes() *Stage {
	return z.zfs("list", "-H", "-o", "name")
}

// Names of the filesystems under a volume, the volume included
func (z *Zfs) ListFilesystems(volume string) *Stage {
	return z.zfs("list", "-H", "-r", "-o", "name", "-t", "filesystem", volume)
}

// Names of the snapshots of a volume, unsorted
func (z *Zfs) ListSnapshots(volume string) *Stage {
	return z.zfs("list", "-H", "-o", "name", "-t", "snapshot", volume)
}

// name, encryptionroot and mounted columns, tab separated, for every filesystem under the volumes
func (z *Zfs) ListMounts(volumes ...string) *Stage {
	return z.zfs(append([]string{"list", "-H", "-r", "-o", "name,encryptionroot,mounted", "-t", "filesystem"}, volumes...)...)
}

// Create a volume and its parents ; does nothing if it exists
func (z *Zfs) Create(volume string) *Stage {
	return z.zfs("create", "-p", volume)
}

// Prevent the snapshot tool from snapshotting a volume on its own
func (z *Zfs) DisableAutoSnapshot(volume string) *Stage {
	return z.zfs("set", "com.sun:auto-snapshot=false", volume)
}

// Recursive snapshot of a volume. With simulate, only prints the snapshot command that would run.
func (z *Zfs) TakeSnapshot(volume string, simulate bool) *Stage {
	var args []string
	if simulate {
		args = append(args, "-n")
	}
	args = append(args, "-qr", "--label="+z.label, volume)
	return NewStage(z.snapshotCommand, args...)
}

// Send earliest in full if latest is nil, or every snapshot from earliest to latest.
// With estimate, only print the estimated stream size.
func (z *Zfs) Send(earliest SnapshotID, latest *SnapshotID, estimate bool) *Stage {
	args := []string{"send"}
	if z.replicate {
		args = append(args, "-R")
	}
	if z.raw {
		args = append(args, "-w")
	}
	if estimate {
		args = append(args, "-v", "-n")
	}
	if latest != nil {
		args = append(args, "-I", string(earliest), string(*latest))
	} else {
		args = append(args, string(earliest))
	}
	return z.zfs(args...)
}

// Reads a send stream on its input and prints its records
func (z *Zfs) Dump() *Stage {
	return NewStage(z.dumpCommand)
}

// Copies its input to its output, showing throughput on the terminal
func (z *Zfs) Display() *Stage {
	stage := NewStage(z.displayCommand)
	stage.InheritStderr = true
	return stage
}

// Receive a stream into destination, rolling it back as needed
func (z *Zfs) Receive(destination string) *Stage {
	return z.zfs("recv", "-F", "-d", destination)
}

// Changes between a snapshot and a later one, or the live filesystem if later is empty
func (z *Zfs) Diff(snapshot SnapshotID, later string) *Stage {
	if later == "" {
		return z.zfs("diff", string(snapshot))
	}
	return z.zfs("diff", string(snapshot), later)
}

// Mount a dataset, loading its key ; the passphrase is read from input
func (z *Zfs) Mount(dataset string) *Stage {
	return z.zfs("mount", "-l", dataset)
}

// Unmount a dataset and unload its key
func (z *Zfs) Unmount(dataset string) *Stage {
	return z.zfs("unmount", "-u", dataset)
}

// SnapshotSource backed by zfs commands. Without a catalog, every volume is assumed to exist.
type ZfsSnapshotSource struct {
	engine  *Engine
	zfs     *Zfs
	catalog *Catalog
}

func NewZfsSnapshotSource(engine *Engine, zfs *Zfs, catalog *Catalog) *ZfsSnapshotSource {
	return &ZfsSnapshotSource{engine: engine, zfs: zfs, catalog: catalog}
}

// Part of SnapshotSource interface
func (s *ZfsSnapshotSource) ListSnapshots(volume string) ([]SnapshotID, error) {
	if s.catalog != nil && !s.catalog.Exists(volume) {
		zfsLog.WithFields(logrus.Fields{"volume": volume}).Debug("volume does not exist yet, no snapshots")
		return nil, nil
	}

	output, err := s.engine.Inspect(s.zfs.ListSnapshots(volume))
	if err != nil {
		return nil, err
	}

	var snapshots []SnapshotID
	for _, line := range output {
		line = strings.TrimSpace(line)
		if line != "" {
			snapshots = append(snapshots, SnapshotID(line))
		}
	}
	return snapshots, nil
}

// Part of SnapshotSource interface
func (s *ZfsSnapshotSource) TakeSnapshot(volume string) (*SnapshotID, error) {
	simulate := s.engine.Simulated()
	output, err := s.engine.Inspect(s.zfs.TakeSnapshot(volume, simulate))
	if err != nil {
		return nil, err
	}

	if !simulate {
		return nil, nil
	}

	id, err := ParseSimulatedSnapshot(output)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// Snapshot identifier from the output of a dry-run snapshot, which looks like:
//
//	zfs snapshot -o com.sun:auto-snapshot-desc='-'  'pool1@zfs-auto-snap_hourly-2021-12-11-0557'
func ParseSimulatedSnapshot(output []string) (SnapshotID, error) {
	text := strings.Join(output, "\n")
	parts := strings.Split(text, "'")
	if len(parts) < 3 {
		return "", &ParseError{What: "simulated snapshot output", Input: text}
	}

	id := SnapshotID(parts[len(parts)-2])
	if id.Volume() == "" || id.Label() == "" {
		return "", &ParseError{What: "simulated snapshot output", Input: text}
	}
	return id, nil
}
