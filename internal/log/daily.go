package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DailyFile is an append-only writer that opens one file per calendar day,
// named log-[DD-MM-YYYY].txt inside dir.
type DailyFile struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

// NewDailyFile creates a writer rooted at dir. The directory is created on first write.
func NewDailyFile(dir string) *DailyFile {
	return &DailyFile{dir: dir, now: time.Now}
}

// Name returns the file name used for the given time
func (d *DailyFile) Name(t time.Time) string {
	return filepath.Join(d.dir, fmt.Sprintf("log-[%s].txt", t.Format("02-01-2006")))
}

// Write appends p to the current day's file, switching files when the date changes.
// Errors opening the file are returned to the caller; slog drops them.
func (d *DailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	day := now.Format("2006-01-02")
	if d.file == nil || d.day != day {
		if d.file != nil {
			_ = d.file.Close()
			d.file = nil
		}
		if err := os.MkdirAll(d.dir, 0o755); err != nil {
			return 0, fmt.Errorf("creating log dir: %w", err)
		}
		f, err := os.OpenFile(d.Name(now), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return 0, fmt.Errorf("opening log file: %w", err)
		}
		d.file = f
		d.day = day
	}
	return d.file.Write(p)
}

// Close closes the currently open file, if any
func (d *DailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
