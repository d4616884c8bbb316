package zclone

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

const PassphrasePrompt = `
Get the difference of the backups from previous to present.
Mount the encryption dataset[s] with your passphrase for the diff.
See the '-d', '--diff' option.
Enter Passphrase for the ZFS dataset[s]: `

var mountLog = logrus.WithFields(logrus.Fields{
	"component": "mount",
})

// Returns the passphrase of encrypted datasets
type PassphraseFunc func() (string, error)

// Mount state of a filesystem, as listed by Zfs.ListMounts
type mountpoint struct {
	name           string
	encryptionRoot string
	mounted        bool
}

func (m mountpoint) encrypted() bool {
	return m.encryptionRoot != "-"
}

func parseMountpoints(lines []string) ([]mountpoint, error) {
	var res []mountpoint
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			return nil, &ParseError{What: "mount listing", Input: line}
		}

		res = append(res, mountpoint{name: fields[0], encryptionRoot: fields[1], mounted: fields[2] == "yes"})
	}
	return res, nil
}

// Mounter for zfs volumes, loading keys of encrypted datasets with a passphrase asked at most once
type ZfsMounter struct {
	engine     *Engine
	zfs        *Zfs
	prompt     PassphraseFunc
	passphrase *string
}

func NewZfsMounter(engine *Engine, zfs *Zfs, prompt PassphraseFunc) *ZfsMounter {
	return &ZfsMounter{engine: engine, zfs: zfs, prompt: prompt}
}

func (m *ZfsMounter) listMounts(volume string) ([]mountpoint, error) {
	output, err := m.engine.Inspect(m.zfs.ListMounts(volume))
	if err != nil {
		return nil, err
	}
	return parseMountpoints(output)
}

func (m *ZfsMounter) getPassphrase() (string, error) {
	if m.passphrase == nil {
		p, err := m.prompt()
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		m.passphrase = &p
	}
	return *m.passphrase, nil
}

// Part of Mounter interface
func (m *ZfsMounter) Mount(volume string) (func() error, error) {
	mountpoints, err := m.listMounts(volume)
	if err != nil {
		return nil, err
	}

	var mounted []string
	restore := func() error {
		var firstErr error
		for i := len(mounted) - 1; i >= 0; i-- {
			_, err := m.engine.Output(m.zfs.Unmount(mounted[i]))
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	for _, mp := range mountpoints {
		if mp.mounted {
			continue
		}

		opts := RunOptions{}
		if mp.encrypted() {
			passphrase, err := m.getPassphrase()
			if err != nil {
				return nil, err
			}
			opts.Stdin = strings.NewReader(passphrase)
		}

		mountLog.WithFields(logrus.Fields{"dataset": mp.name}).Debug("mounting")
		if _, err := m.engine.Run(m.zfs.Mount(mp.name), opts); err != nil {
			if rerr := restore(); rerr != nil {
				mountLog.Errorf("cannot restore mounts: %v", rerr)
			}
			return nil, err
		}
		mounted = append(mounted, mp.name)
	}

	return restore, nil
}

// Whether some filesystem under the volumes is encrypted
func (m *ZfsMounter) HasEncryptionRoot(volumes ...string) (bool, error) {
	output, err := m.engine.Inspect(m.zfs.ListMounts(volumes...))
	if err != nil {
		return false, err
	}

	mountpoints, err := parseMountpoints(output)
	if err != nil {
		return false, err
	}

	for _, mp := range mountpoints {
		if mp.encrypted() {
			return true, nil
		}
	}
	return false, nil
}

// Ask the passphrase now if some of the volumes are encrypted, so that a long run is not
// interrupted later on
func (m *ZfsMounter) Prepare(volumes ...string) error {
	encrypted, err := m.HasEncryptionRoot(volumes...)
	if err != nil || !encrypted {
		return err
	}
	_, err = m.getPassphrase()
	return err
}

// Ask the passphrase on the terminal without echo, or read one line if stdin is not a terminal
func PromptPassphrase(in *os.File, out io.Writer) PassphraseFunc {
	return func() (string, error) {
		fd := int(in.Fd())
		if term.IsTerminal(fd) {
			fmt.Fprint(out, PassphrasePrompt)
			p, err := term.ReadPassword(fd)
			fmt.Fprintln(out)
			if err != nil {
				return "", err
			}
			return string(p), nil
		}

		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
}
