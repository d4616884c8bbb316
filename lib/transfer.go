package zclone

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

var transferLog = logrus.WithFields(logrus.Fields{
	"component": "transfer",
})

// Sends planned snapshots to their destination and checks what arrived
type Transfer struct {
	engine *Engine
	zfs    *Zfs
	source SnapshotSource
}

func NewTransfer(engine *Engine, zfs *Zfs) *Transfer {
	// Destination children may have been received during this run, so they are listed without the catalog
	return &Transfer{engine: engine, zfs: zfs, source: NewZfsSnapshotSource(engine, zfs, nil)}
}

// Dataset given to receive: the destination without the part of the source path below its pool,
// since receive appends it back
func receiveTarget(plan Plan) string {
	_, rest, found := strings.Cut(plan.Source, "/")
	if !found {
		return plan.Destination
	}
	return strings.TrimSuffix(plan.Destination, "/"+rest)
}

// Print the estimated size of a send. Runs even in simulate mode, where the range may end on the
// snapshot that was only pretended to be taken: a failing estimate is then a warning.
func (t *Transfer) estimate(log *logrus.Entry, earliest SnapshotID, latest *SnapshotID) error {
	opts := RunOptions{Always: true}
	if t.engine.Simulated() {
		opts.Stderr = func(line string) {
			log.Warn(line)
		}
	}

	output, err := t.engine.Run(t.zfs.Send(earliest, latest, true), opts)
	var cmdErr *CommandError
	if t.engine.Simulated() && errors.As(err, &cmdErr) {
		log.Warnf("no size estimate in simulate mode: %v", err)
		return nil
	} else if err != nil {
		return err
	}

	for i := len(output) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(output[i]); line != "" {
			Notice(log, "%s", line)
			return nil
		}
	}

	log.Warn("no size estimate")
	return nil
}

// Send a range to the destination while dumping the stream metadata:
//
//	send -+- dump
//	      +- display -- receive
func (t *Transfer) send(log *logrus.Entry, plan Plan, earliest SnapshotID, latest *SnapshotID) (Summary, error) {
	err := t.estimate(log, earliest, latest)
	if err != nil {
		return nil, err
	}

	stage := t.zfs.Send(earliest, latest, false).Pipe(
		t.zfs.Dump(),
		t.zfs.Display().Pipe(t.zfs.Receive(receiveTarget(plan))),
	)

	output, err := t.engine.Output(stage)
	if err != nil {
		return nil, err
	}

	return Summary(output), nil
}

// Execute a plan. Returns the summary of the last send stream, which Verify compares against the
// destination.
func (t *Transfer) Backup(plan Plan) (Summary, error) {
	log := transferLog.WithFields(logrus.Fields{"source": plan.Source, "destination": plan.Destination})

	if plan.Case == CaseKeep {
		Notice(log, "the backup of %s is up-to-date", plan.Source)
		Notice(log, "the latest snapshot, %s, exists on the backup", plan.Latest)
		return nil, nil
	}

	if plan.Case == CaseFull {
		log.Infof("no common snapshot, sending %s in full", plan.Earliest)
		summary, err := t.send(log, plan, plan.Earliest, nil)
		if err != nil {
			return nil, fmt.Errorf("sending %s: %w", plan.Earliest, err)
		}
		if plan.SinglePoint() {
			return summary, nil
		}
	}

	latest := plan.Latest
	summary, err := t.send(log, plan, plan.Earliest, &latest)
	if err != nil {
		return nil, fmt.Errorf("sending %s to %s: %w", plan.Earliest, plan.Latest, err)
	}

	log.Debugf("%d records checksums in stream", len(ExtractChecksums(summary)))
	return summary, nil
}

// Send the planned range again, from the destination this time, and compare its digest records with
// the ones of the summary taken while sending
func (t *Transfer) Verify(plan Plan, summary Summary) (bool, error) {
	log := transferLog.WithFields(logrus.Fields{"source": plan.Source, "destination": plan.Destination})

	if plan.Case == CaseKeep {
		return true, nil
	}

	earliest := plan.Earliest.WithVolume(plan.Destination)
	var latest *SnapshotID
	if !plan.SinglePoint() {
		l := plan.Latest.WithVolume(plan.Destination)
		latest = &l
	}

	output, err := t.engine.Output(t.zfs.Send(earliest, latest, false).Pipe(t.zfs.Dump()))
	if err != nil {
		return false, fmt.Errorf("sending back %s: %w", earliest, err)
	}

	sent, err := ExtractDigests(summary)
	if err != nil {
		return false, err
	}

	received, err := ExtractDigests(Summary(output))
	if err != nil {
		return false, err
	}

	if len(sent) == 0 && !t.engine.Simulated() {
		log.Warn("no digest record in the stream, only encrypted raw streams carry one")
	}

	log.Debugf("digests: sent %v, received %v", sent, received)
	return DigestsEqual(sent, received), nil
}

// Log the changes on every filesystem of the destination since the earliest planned snapshot
func (t *Transfer) Diff(plan Plan, mounter Mounter) error {
	log := transferLog.WithFields(logrus.Fields{"destination": plan.Destination})

	if t.engine.Simulated() {
		_, err := t.engine.Output(t.zfs.Diff(plan.Earliest.WithVolume(plan.Destination), ""))
		return err
	}

	restore, err := mounter.Mount(plan.Destination)
	if err != nil {
		return fmt.Errorf("mounting %s: %w", plan.Destination, err)
	}
	defer func() {
		if err := restore(); err != nil {
			log.Errorf("cannot restore mounts: %v", err)
		}
	}()

	filesystems, err := t.engine.Inspect(t.zfs.ListFilesystems(plan.Destination))
	if err != nil {
		return err
	}

	logLine := func(line string) {
		log.Info(line)
	}

	for _, fs := range filesystems {
		fs = strings.TrimSpace(fs)
		if fs == "" {
			continue
		}

		history := NewHistory(fs, t.source)
		snapshot := plan.Earliest.WithVolume(fs)
		ok, err := history.Contains(snapshot)
		if err != nil {
			return err
		}

		if !ok {
			snapshot, err = history.Earliest()
			if err != nil {
				log.WithFields(logrus.Fields{"filesystem": fs}).Warnf("no snapshot to diff against: %v", err)
				continue
			}
		}

		_, err = t.engine.Run(t.zfs.Diff(snapshot, ""), RunOptions{Stdout: logLine, Stderr: logLine})
		if err != nil {
			return err
		}
	}

	return nil
}
