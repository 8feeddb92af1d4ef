package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/stagewatch/stagewatch/internal/types"
)

// logFiles returns a session's log files in write order.
func logFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading session dir: %w", err)
	}

	type numbered struct {
		path string
		num  int
	}
	var files []numbered
	for _, e := range entries {
		name := e.Name()
		if name == logFileBase {
			files = append(files, numbered{filepath.Join(dir, name), 1})
			continue
		}
		if strings.HasPrefix(name, "log.") && strings.HasSuffix(name, ".jsonl") {
			numStr := strings.TrimSuffix(strings.TrimPrefix(name, "log."), ".jsonl")
			if n, err := strconv.Atoi(numStr); err == nil {
				files = append(files, numbered{filepath.Join(dir, name), n})
			}
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].num < files[j].num })

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

// ReadEntries reads back every entry from a session directory, across all
// rotated files, in write order. The session header line is skipped.
func ReadEntries(dir string) ([]*types.LogEntry, error) {
	paths, err := logFiles(dir)
	if err != nil {
		return nil, err
	}

	var out []*types.LogEntry
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			// The header is the only record that is not a LogEntry.
			var probe struct {
				Record string `json:"record"`
			}
			if err := json.Unmarshal(line, &probe); err == nil && probe.Record == "session_header" {
				continue
			}

			var entry types.LogEntry
			if err := json.Unmarshal(line, &entry); err != nil {
				f.Close()
				return nil, fmt.Errorf("parsing entry in %s: %w", filepath.Base(path), err)
			}
			out = append(out, &entry)
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return nil, fmt.Errorf("scanning %s: %w", filepath.Base(path), err)
		}
		f.Close()
	}
	return out, nil
}

// ReadHeader reads the session header from a session directory.
func ReadHeader(dir string) (*types.Session, error) {
	f, err := os.Open(filepath.Join(dir, logFileBase))
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, fmt.Errorf("empty log file")
	}

	var header headerRecord
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		return nil, fmt.Errorf("parsing session header: %w", err)
	}
	if header.Record != "session_header" || header.Session == nil {
		return nil, fmt.Errorf("first record is not a session header")
	}
	return header.Session, nil
}
