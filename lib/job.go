package zclone

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

var jobLog = logrus.WithFields(logrus.Fields{
	"component": "job",
})

// A backup run: every source pool is backed up into <Backup>/<pool>
type Job struct {
	Backup  string
	Sources []string

	// Log the changes of each destination after its backup
	Diff bool
}

// Everything a job needs, built once per process
type Env struct {
	Engine  *Engine
	Zfs     *Zfs
	Catalog *Catalog
	Mounter Mounter
}

// Implemented by mounters that can ask for credentials before the transfers start
type preparer interface {
	Prepare(volumes ...string) error
}

func (j *Job) Destination(source string) string {
	return j.Backup + "/" + source
}

// Plan a source without running any transfer
func (j *Job) Plan(env *Env, source string) (Plan, error) {
	snapshots := NewZfsSnapshotSource(env.Engine, env.Zfs, env.Catalog)
	return Reconcile(NewHistory(source, snapshots), NewHistory(j.Destination(source), snapshots))
}

// Check the volumes, then back up every source. A source whose transfer fails stops the run ;
// a source failing verification does not, but the run then ends with ErrVerificationFailed.
func (j *Job) Run(env *Env) error {
	if len(j.Sources) == 0 {
		return fmt.Errorf("no pool to back up")
	}

	if err := env.Catalog.Check(append([]string{j.Backup}, j.Sources...)...); err != nil {
		return err
	}

	if j.Diff {
		if p, ok := env.Mounter.(preparer); ok {
			if err := p.Prepare(j.Sources...); err != nil {
				return err
			}
		}
	}

	if _, err := env.Engine.Output(env.Zfs.DisableAutoSnapshot(j.Backup)); err != nil {
		return err
	}

	transfer := NewTransfer(env.Engine, env.Zfs)

	var unverified []string
	for _, source := range j.Sources {
		log := jobLog.WithFields(logrus.Fields{"source": source})

		if _, err := env.Engine.Output(env.Zfs.Create(j.Destination(source))); err != nil {
			return err
		}

		plan, err := j.Plan(env, source)
		if err != nil {
			return err
		}
		log.Infof("plan: %v", plan)

		summary, err := transfer.Backup(plan)
		if err != nil {
			return err
		}
		if plan.Case == CaseKeep {
			continue
		}

		ok, err := transfer.Verify(plan, summary)
		if err != nil {
			return err
		}

		if ok {
			Notice(log, "verified the backup of %s on %s", source, plan.Destination)
		} else {
			log.Errorf("verification failed: %s on %s does not match %s", plan.Latest.WithVolume(plan.Destination), plan.Destination, plan.Latest)
			unverified = append(unverified, source)
		}

		if j.Diff {
			if err := transfer.Diff(plan, env.Mounter); err != nil {
				return err
			}
		}
	}

	if len(unverified) > 0 {
		return fmt.Errorf("%w: %s", ErrVerificationFailed, strings.Join(unverified, ", "))
	}

	return nil
}
