package zclone

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Size of the buffer used to copy a stage output to its children
const teeBufferSize = 64 * 1024

// Number of error stream lines kept for a CommandError
const stderrTailSize = 20

var pipelineLog = logrus.WithFields(logrus.Fields{
	"component": "pipeline",
})

// Execution mode of an engine, chosen once per process
type Mode int

const (
	// Run every command
	ModeRun Mode = iota

	// Only print mutating commands ; commands run with RunOptions.Always still run
	ModeSimulate
)

func (m Mode) String() string {
	if m == ModeSimulate {
		return "simulate"
	}
	return "run"
}

// A Stage is one external process. Its output is delivered to every child (tee) or, for a leaf, line by
// line to the stdout callback of the run.
type Stage struct {
	Command  []string
	Children []*Stage

	// If true, the error stream is not captured and goes straight to our own stderr.
	// Used for interactive progress tools.
	InheritStderr bool
}

func NewStage(command []string, additionalArgs ...string) *Stage {
	return &Stage{Command: append(append([]string{}, command...), additionalArgs...)}
}

// Add children consuming the stage output ; returns the stage itself
func (s *Stage) Pipe(children ...*Stage) *Stage {
	s.Children = append(s.Children, children...)
	return s
}

func (s *Stage) CommandLine() string {
	return strings.Join(s.Command, " ")
}

// Command tree, one stage per line, children indented under their parent with a "+"
func (s *Stage) Lines() []string {
	var lines []string
	var walk func(st *Stage, indent string)
	walk = func(st *Stage, indent string) {
		lines = append(lines, indent+st.CommandLine())
		next := strings.ReplaceAll(indent, "+", " ") + " + "
		for _, child := range st.Children {
			walk(child, next)
		}
	}
	walk(s, "")
	return lines
}

type LineFunc func(line string)

type RunOptions struct {
	// Called for every line of the leaf stages output. Default: collect into the returned output.
	Stdout LineFunc

	// Called for every line of the captured error streams. Default: log at error level.
	Stderr LineFunc

	// Fed to the root stage input
	Stdin io.Reader

	// Run even in simulate mode ; for commands that do not modify anything
	Always bool
}

// Runs stage trees. Safe for concurrent use.
type Engine struct {
	mode Mode
	log  *logrus.Entry
}

func NewEngine(mode Mode) *Engine {
	return &Engine{mode: mode, log: pipelineLog.WithFields(logrus.Fields{"mode": mode.String()})}
}

func (e *Engine) Mode() Mode {
	return e.mode
}

func (e *Engine) Simulated() bool {
	return e.mode == ModeSimulate
}

// Shorthand for a run with default callbacks
func (e *Engine) Output(stage *Stage) ([]string, error) {
	return e.Run(stage, RunOptions{})
}

// Shorthand for a run with default callbacks that happens even in simulate mode
func (e *Engine) Inspect(stage *Stage) ([]string, error) {
	return e.Run(stage, RunOptions{Always: true})
}

// Run the stage tree and block until every process exited and every stream was copied.
// Returns the lines collected by the default stdout callback (nil when a callback is given).
// In simulate mode, a stage tree not marked Always is only logged, and the result is nil.
func (e *Engine) Run(stage *Stage, opts RunOptions) ([]string, error) {
	simulated := e.Simulated() && !opts.Always

	tag := "CMD"
	if simulated {
		tag = "PRT"
	}
	for _, line := range stage.Lines() {
		e.log.Infof("%s: %s", tag, line)
	}

	if simulated {
		return nil, nil
	}

	var output []string
	var outputMu sync.Mutex
	stdout := opts.Stdout
	if stdout == nil {
		stdout = func(line string) {
			outputMu.Lock()
			defer outputMu.Unlock()
			output = append(output, line)
		}
	}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = func(line string) {
			e.log.Error(line)
		}
	}

	r := &run{stdout: stdout, stderr: stderr}
	stdin, err := r.start(stage, opts.Stdin != nil)
	if err != nil {
		r.abort()
		return nil, err
	}

	if opts.Stdin != nil {
		r.group.Go(func() error {
			return tee(opts.Stdin, []io.WriteCloser{stdin})
		})
	}

	// Output already delivered stays delivered, even on failure
	err = r.wait()
	return output, err
}

type process struct {
	stage  *Stage
	cmd    *exec.Cmd
	stderr *tail
}

// State of a single Engine.Run invocation
type run struct {
	stdout    LineFunc
	stderr    LineFunc
	group     errgroup.Group
	processes []*process

	// Our ends of pipes, closed by the goroutines using them. Only used on abort.
	files []*os.File
}

// Start a stage and, depth-first, its children. Returns the write end of the stage input
// if withStdin is set.
func (r *run) start(stage *Stage, withStdin bool) (*os.File, error) {
	if len(stage.Command) == 0 {
		return nil, errors.New("pipeline: empty command")
	}

	var childInputs []io.WriteCloser
	for _, child := range stage.Children {
		w, err := r.start(child, true)
		if err != nil {
			return nil, err
		}
		childInputs = append(childInputs, w)
	}

	cmd := exec.Command(stage.Command[0], stage.Command[1:]...)
	proc := &process{stage: stage, cmd: cmd, stderr: newTail(stderrTailSize)}

	// Ends of pipes given to the process, closed on our side once it started
	var remote []*os.File
	closeRemote := func() {
		for _, f := range remote {
			f.Close()
		}
	}

	var stdinW *os.File
	if withStdin {
		pr, pw, err := os.Pipe()
		if err != nil {
			closeRemote()
			return nil, err
		}
		cmd.Stdin = pr
		remote = append(remote, pr)
		stdinW = pw
		r.files = append(r.files, pw)
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		closeRemote()
		return nil, err
	}
	cmd.Stdout = stdoutW
	remote = append(remote, stdoutW)
	r.files = append(r.files, stdoutR)

	var stderrR *os.File
	if stage.InheritStderr {
		cmd.Stderr = os.Stderr
	} else {
		var stderrW *os.File
		stderrR, stderrW, err = os.Pipe()
		if err != nil {
			closeRemote()
			return nil, err
		}
		cmd.Stderr = stderrW
		remote = append(remote, stderrW)
		r.files = append(r.files, stderrR)
	}

	err = cmd.Start()
	closeRemote()
	if err != nil {
		return nil, fmt.Errorf("starting %s: %w", stage.CommandLine(), err)
	}
	r.processes = append(r.processes, proc)

	if stderrR != nil {
		r.group.Go(func() error {
			return readLines(stderrR, func(line string) {
				proc.stderr.add(line)
				r.stderr(line)
			})
		})
	}

	if len(childInputs) == 0 {
		r.group.Go(func() error {
			return readLines(stdoutR, r.stdout)
		})
	} else {
		r.group.Go(func() error {
			// Closing the output makes the stage fail on write if a child stopped reading
			defer stdoutR.Close()
			return tee(stdoutR, childInputs)
		})
	}

	return stdinW, nil
}

// Wait for every stream copy, then for every process. Copy errors come first since a broken
// consumer usually also makes its producer fail.
func (r *run) wait() error {
	copyErr := r.group.Wait()

	var cmdErr error
	for _, proc := range r.processes {
		err := proc.cmd.Wait()
		if err != nil && cmdErr == nil {
			cmdErr = newCommandError(proc, err)
		}
	}

	if copyErr != nil {
		if cmdErr != nil {
			return fmt.Errorf("pipeline: %w (%v)", copyErr, cmdErr)
		}
		return fmt.Errorf("pipeline: %w", copyErr)
	}
	return cmdErr
}

// Cleanup after a failed start: every already started process sees its pipes closed
func (r *run) abort() {
	for _, f := range r.files {
		f.Close()
	}
	_ = r.wait()
}

func newCommandError(proc *process, err error) error {
	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}

	cmdErr := &CommandError{
		Command:  proc.stage.CommandLine(),
		ExitCode: exitCode,
		Stderr:   proc.stderr.lines(),
		Err:      err,
	}
	pipelineLog.WithFields(logrus.Fields{
		"command":    cmdErr.Command,
		"returncode": cmdErr.ExitCode,
	}).Error("command failed")
	return cmdErr
}

// Copy src to every writer, closing them all when src is exhausted. src is left open.
// Every writer sees the same bytes in the same order.
func tee(src io.Reader, dsts []io.WriteCloser) (err error) {
	defer func() {
		for _, dst := range dsts {
			if cerr := dst.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	}()

	buf := make([]byte, teeBufferSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			for _, dst := range dsts {
				written, werr := dst.Write(buf[:n])
				if werr != nil {
					return werr
				}
				if written != n {
					return fmt.Errorf("%w: wrote %d of %d bytes", io.ErrShortWrite, written, n)
				}
			}
		}
		if rerr == io.EOF {
			return nil
		} else if rerr != nil {
			return rerr
		}
	}
}

// Call fn for every line of r, without the trailing newline. Closes r.
func readLines(r io.ReadCloser, fn LineFunc) error {
	defer r.Close()

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			fn(strings.TrimRight(line, "\r\n"))
		}
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
	}
}

// Last lines of an error stream
type tail struct {
	mu    sync.Mutex
	max   int
	items []string
}

func newTail(max int) *tail {
	return &tail{max: max}
}

func (t *tail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, line)
	if len(t.items) > t.max {
		t.items = t.items[len(t.items)-t.max:]
	}
}

func (t *tail) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string{}, t.items...)
}
