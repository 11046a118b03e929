package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/taglaunch/internal/observability"
)

// followRescan bounds how long follow waits without an event before
// checking the file anyway. Some filesystems (network shares) do not
// deliver write events.
var followRescan = time.Second

func runJobsLogs(cmd *cobra.Command, args []string) error {
	stream, _ := cmd.Flags().GetString("stream")
	stream = strings.TrimSpace(strings.ToLower(stream))
	if stream == "" {
		stream = "log"
	}

	tailN, _ := cmd.Flags().GetInt("tail")
	if tailN < 0 {
		tailN = 0
	}
	follow, _ := cmd.Flags().GetBool("follow")

	rec, err := lookupJob(jobStore(), args)
	if err != nil {
		return err
	}

	var path string
	switch stream {
	case "log":
		path = rec.LogPath
	case "results":
		path = rec.ResultsPath()
	default:
		return exitError(ExitUsage, "Invalid --stream", fmt.Errorf("%q (expected log or results)", stream))
	}
	if path == "" {
		return fmt.Errorf("job %s has no %s path recorded", shortJobID(rec.JobID), stream)
	}

	out := cmd.OutOrStdout()
	if follow {
		err := followLog(cmd.Context(), out, path)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return printLogTail(out, path, tailN)
}

func printLogTail(out io.Writer, path string, tailN int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if tailN <= 0 {
		_, err := io.Copy(out, f)
		return err
	}

	lines, err := tailLines(f, tailN)
	if err != nil {
		return err
	}
	for _, line := range lines {
		_, _ = fmt.Fprintln(out, line)
	}
	return nil
}

func tailLines(r io.Reader, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	scanner := bufio.NewScanner(r)
	buf := make([]string, 0, n)

	for scanner.Scan() {
		line := scanner.Text()
		if len(buf) < n {
			buf = append(buf, line)
			continue
		}
		copy(buf, buf[1:])
		buf[n-1] = line
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return buf, nil
}

// followLog copies path to out and keeps copying appended content until
// ctx is done. The file may not exist yet. A recreated file is read from
// the start, and a truncated one from its new end.
func followLog(ctx context.Context, out io.Writer, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory so creation and replacement are seen too.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	t := &tailer{path: path, out: out}
	defer t.close()

	if err := t.drain(); err != nil {
		return err
	}

	rescan := time.NewTicker(followRescan)
	defer rescan.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if err := t.drain(); err != nil {
				return err
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			observability.CLILogger.Debug("Log watcher error", zap.Error(err))

		case <-rescan.C:
			if err := t.drain(); err != nil {
				return err
			}
		}
	}
}

// tailer tracks the open file and read offset for followLog.
type tailer struct {
	path string
	out  io.Writer
	f    *os.File
	pos  int64
}

func (t *tailer) close() {
	if t.f != nil {
		_ = t.f.Close()
		t.f = nil
	}
	t.pos = 0
}

// drain copies everything written since the last call.
func (t *tailer) drain() error {
	if t.f != nil && t.replaced() {
		t.close()
	}
	if t.f == nil {
		f, err := os.Open(t.path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		t.f = f
		t.pos = 0
	}

	st, err := t.f.Stat()
	if err != nil {
		return err
	}
	if st.Size() < t.pos {
		// Truncated in place, as a relaunch does with ">". Whatever the
		// new job has written so far is new content.
		t.pos = 0
	}
	if st.Size() == t.pos {
		return nil
	}

	if _, err := t.f.Seek(t.pos, io.SeekStart); err != nil {
		return err
	}
	n, err := io.Copy(t.out, io.LimitReader(t.f, st.Size()-t.pos))
	t.pos += n
	return err
}

// replaced reports whether path now names a different file than the one
// open. A removed path is not a replacement: the open file is kept.
func (t *tailer) replaced() bool {
	pathSt, err := os.Stat(t.path)
	if err != nil {
		return false
	}
	openSt, err := t.f.Stat()
	if err != nil {
		return true
	}
	return !os.SameFile(openSt, pathSt)
}
