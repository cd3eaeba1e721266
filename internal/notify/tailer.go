package notify

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Tailer follows the newest conversation log under one project
// directory and hands back complete lines appended since the last poll.
// The agent starts a fresh log per conversation, so the tailer re-picks
// the newest file on every poll and resets its offset when the file
// changes or shrinks.
type Tailer struct {
	projectDir string

	path    string
	offset  int64
	partial []byte
}

func NewTailer(projectDir string) *Tailer {
	return &Tailer{projectDir: projectDir}
}

// Path returns the log currently being followed, empty before the first
// successful poll.
func (t *Tailer) Path() string { return t.path }

// Poll returns all complete new lines. A missing project directory is
// not an error; the session simply has no log yet.
func (t *Tailer) Poll() ([][]byte, error) {
	path, err := newestLog(t.projectDir)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, nil
	}
	if path != t.path {
		t.path = path
		t.offset = 0
		t.partial = nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < t.offset {
		t.offset = 0
		t.partial = nil
	}
	if info.Size() == t.offset {
		return nil, nil
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	t.offset += int64(len(data))

	// An incomplete trailing line rides along until its newline arrives.
	buf := append(t.partial, data...)
	t.partial = nil
	var lines [][]byte
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimRight(buf[:idx], "\r")
		if len(line) > 0 {
			lines = append(lines, append([]byte(nil), line...))
		}
		buf = buf[idx+1:]
	}
	if len(buf) > 0 {
		t.partial = append([]byte(nil), buf...)
	}
	return lines, nil
}

func newestLog(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	var newest string
	var newestMod int64
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); newest == "" || mod > newestMod {
			newest = filepath.Join(dir, entry.Name())
			newestMod = mod
		}
	}
	return newest, nil
}
