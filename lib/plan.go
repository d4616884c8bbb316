package zclone

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

var planLog = logrus.WithFields(logrus.Fields{
	"component": "plan",
})

type Case int

const (
	// The destination already has the latest snapshot
	CaseKeep Case = iota

	// Send the increment from the latest shared snapshot to the latest one
	CaseIncremental

	// Nothing is shared: send the earliest snapshot in full, then the increment from it
	CaseFull
)

func (c Case) String() string {
	switch c {
	case CaseKeep:
		return "keep"
	case CaseIncremental:
		return "incremental"
	case CaseFull:
		return "full"
	default:
		return fmt.Sprintf("case(%d)", int(c))
	}
}

// What has to be sent from a source volume to bring its destination up to date
type Plan struct {
	Case        Case
	Source      string
	Destination string

	// Snapshots of the source volume
	Earliest SnapshotID
	Latest   SnapshotID
}

// Whether the transfer is a single full send, the source having nothing but its latest snapshot
func (p Plan) SinglePoint() bool {
	return p.Case == CaseFull && p.Earliest == p.Latest
}

func (p Plan) String() string {
	if p.Case == CaseKeep {
		return fmt.Sprintf("%s -> %s: %s (%s)", p.Source, p.Destination, p.Case, p.Latest.Label())
	}
	return fmt.Sprintf("%s -> %s: %s (%s .. %s)", p.Source, p.Destination, p.Case, p.Earliest.Label(), p.Latest.Label())
}

// Take a fresh snapshot of the source, then compute the plan
func Reconcile(src, dst *History) (Plan, error) {
	if err := src.Take(); err != nil {
		return Plan{}, err
	}
	return ComputePlan(src, dst)
}

// Plan from the histories as they are ; does not take any snapshot
func ComputePlan(src, dst *History) (Plan, error) {
	plan := Plan{Source: src.Volume(), Destination: dst.Volume()}

	latest, err := src.Latest()
	if err != nil {
		return Plan{}, err
	}
	plan.Latest = latest

	earliest, err := src.EarliestCommon(dst)
	if err != nil {
		return Plan{}, err
	}

	switch {
	case earliest != nil && *earliest == latest:
		plan.Case = CaseKeep
		plan.Earliest = latest
	case earliest == nil:
		plan.Case = CaseFull
		plan.Earliest, err = src.Earliest()
		if err != nil {
			return Plan{}, err
		}
	default:
		plan.Case = CaseIncremental
		plan.Earliest = *earliest
	}

	planLog.WithFields(logrus.Fields{"source": plan.Source, "destination": plan.Destination}).Debugf("plan: %v", plan)
	return plan, nil
}
