package logging

import (
	"cmp"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/helpdesk/hdtelemetry/pkg/paths"
)

// DebugLogName is the file name used under the data directory when --debug
// is set without --log-file.
const DebugLogName = "hdtelemetry.debug.log"

// Setup installs the default slog logger.
//
// Without debug, everything is discarded so that telemetry noise never
// reaches a user's terminal. With debug, a text handler at debug level
// writes to a rotating file; the returned closer must be closed on exit.
func Setup(debug bool, logFilePath string) (io.Closer, error) {
	if !debug {
		slog.SetDefault(slog.New(slog.DiscardHandler))
		return nopCloser{}, nil
	}

	path := cmp.Or(strings.TrimSpace(logFilePath), filepath.Join(paths.GetDataDir(), DebugLogName))

	f, err := NewRotatingFile(path)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return f, nil
}

// Fallback writes to w at info (or debug) level. It is used when the log
// file cannot be opened.
func Fallback(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
