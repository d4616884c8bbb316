package zclone

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field marking an entry as an operator notice
const noticeField = "notice"

// Log an operator notice: shown on the console whatever the verbosity
func Notice(log *logrus.Entry, format string, args ...interface{}) {
	log.WithField(noticeField, true).Infof(format, args...)
}

func isNotice(entry *logrus.Entry) bool {
	v, ok := entry.Data[noticeField].(bool)
	return ok && v
}

type LogConfig struct {
	// Console threshold
	Level logrus.Level

	// Rotated log file ; no file if empty
	File       string
	MaxSizeMB  int
	MaxBackups int
	FileLevel  logrus.Level
}

// Formats entries as "[2006-01-02 15:04:05][LVL] message key=value..."
type lineFormatter struct {
	// Prepended to every message, if not empty
	runID string
}

func levelTag(entry *logrus.Entry) string {
	if isNotice(entry) {
		return "NTC"
	}
	switch entry.Level {
	case logrus.TraceLevel:
		return "TRC"
	case logrus.DebugLevel:
		return "DBG"
	case logrus.InfoLevel:
		return "INF"
	case logrus.WarnLevel:
		return "WRN"
	case logrus.ErrorLevel:
		return "ERR"
	default:
		return "CRT"
	}
}

func (f *lineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	fmt.Fprintf(buf, "[%s][%s] ", entry.Time.Format("2006-01-02 15:04:05"), levelTag(entry))
	if f.runID != "" {
		fmt.Fprintf(buf, "%s ", f.runID)
	}
	buf.WriteString(strings.TrimRight(entry.Message, "\n"))

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != noticeField {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, " %s=%v", k, entry.Data[k])
	}

	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Writes entries at or above a level, and every notice
type writerHook struct {
	mu        sync.Mutex
	w         io.Writer
	level     logrus.Level
	formatter logrus.Formatter
}

func (h *writerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *writerHook) Fire(entry *logrus.Entry) error {
	if entry.Level > h.level && !isNotice(entry) {
		return nil
	}

	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(line)
	return err
}

// Route logs of the standard logger to the console and the rotated log file.
// Returns the run id stamped on file lines, and a function closing the log file.
func SetupLogging(console io.Writer, config LogConfig) (string, func() error) {
	runID := uuid.New().String()

	logger := logrus.StandardLogger()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.TraceLevel)
	logger.ReplaceHooks(make(logrus.LevelHooks))
	logger.AddHook(&writerHook{w: console, level: config.Level, formatter: &lineFormatter{}})

	closeFn := func() error { return nil }
	if config.File != "" {
		file := &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
		}
		logger.AddHook(&writerHook{w: file, level: config.FileLevel, formatter: &lineFormatter{runID: runID}})
		closeFn = file.Close
	}

	return runID, closeFn
}
