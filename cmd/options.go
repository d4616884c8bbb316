package cmd

import (
	"github.com/sloonz/zclone/lib"

	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

type optionsBuilder struct {
	Options *zclone.Options
	Engine  *zclone.Engine
	Zfs     *zclone.Zfs
	Catalog *zclone.Catalog
	Mounter zclone.Mounter
	Error   error
}

func newOptionsBuilder(options *zclone.Options, err error) *optionsBuilder {
	return &optionsBuilder{Options: options, Error: err}
}

// Options of the configuration file, then of every -o flag, in order
func evalOptions() (*zclone.Options, error) {
	kvs := config.OptionPairs()
	for _, line := range optionLines {
		kvs = append(kvs, zclone.SplitOptions(line)...)
	}
	return zclone.EvalOptions(kvs, config.PresetPairs())
}

func (o *optionsBuilder) WithEngine(mode zclone.Mode) *optionsBuilder {
	if o.Error == nil {
		o.Engine = zclone.NewEngine(mode)
	}
	return o
}

func (o *optionsBuilder) WithZfs() *optionsBuilder {
	if o.Error == nil {
		o.Zfs, o.Error = zclone.NewZfs(o.Options)
	}
	return o
}

func (o *optionsBuilder) WithCatalog() *optionsBuilder {
	if o.Error == nil {
		if o.Engine == nil || o.Zfs == nil {
			o.Error = fmt.Errorf("catalog requires an engine and zfs commands")
		} else {
			o.Catalog, o.Error = zclone.NewCatalog(o.Engine, o.Zfs)
		}
	}
	return o
}

func (o *optionsBuilder) WithMounter() *optionsBuilder {
	if o.Error == nil {
		o.Mounter = zclone.NewZfsMounter(o.Engine, o.Zfs, zclone.PromptPassphrase(os.Stdin, os.Stdout))
	}
	return o
}

func (o *optionsBuilder) Env() *zclone.Env {
	return &zclone.Env{Engine: o.Engine, Zfs: o.Zfs, Catalog: o.Catalog, Mounter: o.Mounter}
}

func (o *optionsBuilder) FatalOnError() *optionsBuilder {
	if o.Error != nil {
		logrus.Fatal(o.Error)
	}
	return o
}
