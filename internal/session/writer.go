package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/stagewatch/stagewatch/internal/types"
)

// logFileBase is the name of the first log file in a session directory.
// Rotated continuations are numbered: log.2.jsonl, log.3.jsonl, ...
const logFileBase = "log.jsonl"

// headerRecord is the first line of a session's first log file.
type headerRecord struct {
	Record  string         `json:"record"`
	Session *types.Session `json:"session"`
}

// LogWriter appends entries to a session's log files, one JSON record per
// line, rotating to a new numbered file when the current one crosses the
// size threshold. Rotation never loses or duplicates an entry: the
// check-and-swap happens under the writer lock, after the entry that
// crossed the threshold was fully written.
type LogWriter struct {
	mu sync.Mutex

	dir         string
	rotateBytes int64

	file    *os.File
	buf     *bufio.Writer
	fileNum int
	fileLen int64

	entries    int64
	totalBytes int64
	closed     bool
}

// newLogWriter opens the first log file and writes the session header line.
func newLogWriter(dir string, rotateBytes int64, sess *types.Session) (*LogWriter, error) {
	w := &LogWriter{
		dir:         dir,
		rotateBytes: rotateBytes,
		fileNum:     1,
	}
	if err := w.open(); err != nil {
		return nil, err
	}

	header, err := json.Marshal(headerRecord{Record: "session_header", Session: sess})
	if err != nil {
		return nil, fmt.Errorf("marshaling session header: %w", err)
	}
	if err := w.writeLine(header); err != nil {
		return nil, fmt.Errorf("writing session header: %w", err)
	}
	return w, nil
}

// filePath returns the path for the numbered log file.
func (w *LogWriter) filePath(num int) string {
	if num <= 1 {
		return filepath.Join(w.dir, logFileBase)
	}
	return filepath.Join(w.dir, fmt.Sprintf("log.%d.jsonl", num))
}

// open opens the current numbered file for append. Caller holds the lock
// or is the constructor.
func (w *LogWriter) open() error {
	f, err := os.OpenFile(w.filePath(w.fileNum), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	w.file = f
	w.buf = bufio.NewWriter(f)
	w.fileLen = 0
	return nil
}

// writeLine appends one line to the current file and accounts its size.
func (w *LogWriter) writeLine(line []byte) error {
	n, err := w.buf.Write(line)
	w.fileLen += int64(n)
	w.totalBytes += int64(n)
	if err != nil {
		return err
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return err
	}
	w.fileLen++
	w.totalBytes++
	return nil
}

// WriteEntry appends one entry. The entry counts exactly once regardless
// of rotation.
func (w *LogWriter) WriteEntry(e *types.LogEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("log writer is closed")
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling entry: %w", err)
	}
	if err := w.writeLine(line); err != nil {
		return fmt.Errorf("appending entry: %w", err)
	}
	w.entries++

	if w.fileLen >= w.rotateBytes {
		if err := w.rotate(); err != nil {
			return fmt.Errorf("rotating log file: %w", err)
		}
	}
	return nil
}

// rotate closes the current file and opens the next numbered one.
// Caller holds the lock.
func (w *LogWriter) rotate() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	w.fileNum++
	return w.open()
}

// Flush pushes buffered entries to the OS and syncs the file.
func (w *LogWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flushing log buffer: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("syncing log file: %w", err)
	}
	return nil
}

// Close flushes and closes the current file. Further writes fail.
func (w *LogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flushing log buffer: %w", err)
	}
	return w.file.Close()
}

// EntryCount returns the number of entries written (header excluded).
func (w *LogWriter) EntryCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.entries
}

// BytesWritten returns the total bytes written across all files.
func (w *LogWriter) BytesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalBytes
}

// FileCount returns the number of log files written so far.
func (w *LogWriter) FileCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fileNum
}
