package zclone

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

var catalogLog = logrus.WithFields(logrus.Fields{
	"component": "catalog",
})

// Volumes existing on the system. The listing is done once, by NewCatalog, and is never refreshed:
// a run works on the view it had when it started.
type Catalog struct {
	volumes map[string]struct{}
}

// List the volumes through the engine ; the listing runs even in simulate mode
func NewCatalog(engine *Engine, zfs *Zfs) (*Catalog, error) {
	output, err := engine.Inspect(zfs.ListVolumes())
	if err != nil {
		return nil, fmt.Errorf("listing volumes: %w", err)
	}

	c := NewCatalogFromList(output)
	catalogLog.Debugf("%d volumes", len(c.volumes))
	return c, nil
}

func NewCatalogFromList(volumes []string) *Catalog {
	c := &Catalog{volumes: make(map[string]struct{})}
	for _, v := range volumes {
		v = strings.TrimSpace(v)
		if v != "" {
			c.volumes[v] = struct{}{}
		}
	}
	return c
}

func (c *Catalog) Exists(volume string) bool {
	_, ok := c.volumes[volume]
	return ok
}

// Error wrapping ErrVolumeNotFound for the first volume that does not exist
func (c *Catalog) Check(volumes ...string) error {
	for _, v := range volumes {
		if !c.Exists(v) {
			return fmt.Errorf("%s: %w", v, ErrVolumeNotFound)
		}
	}
	return nil
}

// Sorted by name
func (c *Catalog) Volumes() []string {
	res := make([]string, 0, len(c.volumes))
	for v := range c.volumes {
		res = append(res, v)
	}
	sort.Strings(res)
	return res
}
