package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
)

// spool is the on-disk fallback for batches the sink failed to accept.
// Files are named by flush time so replay on startup can restore
// chronological order; each write and each replay takes an exclusive lock
// on the directory's lock file so the two never run at the same time.
// Lines that fail to decode are skipped on replay.
type spool struct {
	dir      string
	lockPath string
}

func newSpool(dir string) (*spool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("spool: mkdir %s: %w", dir, err)
	}
	return &spool{dir: dir, lockPath: filepath.Join(dir, ".lock")}, nil
}

// Write appends a batch to a new spool file named after the current time.
func (s *spool) Write(batch []Event) error {
	fl := flock.New(s.lockPath)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("spool: lock: %w", err)
	}
	defer fl.Unlock()

	name := fmt.Sprintf("%020d.ndjson", time.Now().UTC().UnixNano())
	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("spool: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range batch {
		b, err := json.Marshal(e)
		if err != nil {
			continue
		}
		w.Write(b)
		w.WriteByte('\n')
	}
	return w.Flush()
}

// Replay reads every spool file in chronological order, invoking fn with
// each file's events, and removes the file once fn returns nil.
func (s *spool) Replay(fn func([]Event) error) error {
	fl := flock.New(s.lockPath)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("spool: lock: %w", err)
	}
	defer fl.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("spool: read dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".ndjson" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(s.dir, name)
		events, err := readSpoolFile(path)
		if err != nil {
			continue
		}
		if err := fn(events); err != nil {
			return err
		}
		os.Remove(path)
	}
	return nil
}

func readSpoolFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for sc.Scan() {
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, sc.Err()
}
