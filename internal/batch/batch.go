// Package batch inspects debug-batch output folders. A batch run writes one
// folder per run id containing <indicator>.csv and <indicator>_debug.csv
// pairs plus a batch.log; a batch.tar.gz archive marks the run complete.
package batch

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

const (
	// ArchiveName is the completion marker written when a batch is packaged.
	ArchiveName = "batch.tar.gz"
	// LogName is the batch log file inside each run folder.
	LogName = "batch.log"
)

// Info describes one batch run folder.
type Info struct {
	ID         string    `json:"id"`
	Indicators int       `json:"indicators"`
	Finished   bool      `json:"finished"`
	StartedAt  time.Time `json:"started_at"`
}

// Collect lists every batch run folder under root, newest first. A missing
// root reads as zero batches rather than an error.
func Collect(root string) ([]Info, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read root %s", root)
	}

	var infos []Info
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := Stat(root, entry.Name())
		if err != nil {
			return nil, err
		}
		infos = append(infos, *info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.After(infos[j].StartedAt)
	})
	return infos, nil
}

// Stat reads one batch run folder. Each indicator contributes an output csv
// and a debug csv, so the indicator count is half the csv file count.
func Stat(root, id string) (*Info, error) {
	dir := filepath.Join(root, id)
	stat, err := os.Stat(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: stat %s", id)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read %s", id)
	}

	csvCount := 0
	finished := false
	for _, entry := range entries {
		switch {
		case strings.HasSuffix(entry.Name(), ".csv"):
			csvCount++
		case entry.Name() == ArchiveName:
			finished = true
		}
	}

	return &Info{
		ID:         id,
		Indicators: csvCount / 2,
		Finished:   finished,
		StartedAt:  stat.ModTime().UTC(),
	}, nil
}

// ReadLog returns the contents of the run's batch.log, or "" when the run
// has not written a log yet.
func ReadLog(root, id string) (string, error) {
	data, err := os.ReadFile(filepath.Join(root, id, LogName))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "batch: read log for %s", id)
	}
	return string(data), nil
}

// NewFolder creates a fresh batch run folder under root and returns its id.
func NewFolder(root string) (string, error) {
	id := uuid.New().String()
	if err := os.MkdirAll(filepath.Join(root, id), 0o755); err != nil {
		return "", eris.Wrapf(err, "batch: create folder for %s", id)
	}
	return id, nil
}

// Archive packages the run folder into batch.tar.gz, marking the run
// finished. The archive itself is excluded from its own contents.
// Archiving an already-finished run is an error.
//
// The archive is written to a temp file and renamed into place only when
// complete, since its mere presence is what marks the run finished.
func Archive(root, id string) (string, error) {
	info, err := Stat(root, id)
	if err != nil {
		return "", err
	}
	if info.Finished {
		return "", eris.Errorf("batch: %s is already archived", id)
	}

	dir := filepath.Join(root, id)
	archivePath := filepath.Join(dir, ArchiveName)

	out, err := os.CreateTemp(dir, ".batch-*.tmp")
	if err != nil {
		return "", eris.Wrapf(err, "batch: create archive for %s", id)
	}
	defer func() {
		out.Close()
		os.Remove(out.Name())
	}()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrapf(err, "batch: read %s", id)
	}
	for _, entry := range entries {
		// Skip our own temp file and any stale one from an interrupted run.
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".batch-") {
			continue
		}
		if err := addFile(tw, dir, entry.Name()); err != nil {
			return "", err
		}
	}

	if err := tw.Close(); err != nil {
		return "", eris.Wrapf(err, "batch: finalize archive for %s", id)
	}
	if err := gz.Close(); err != nil {
		return "", eris.Wrapf(err, "batch: finalize archive for %s", id)
	}
	if err := out.Close(); err != nil {
		return "", eris.Wrapf(err, "batch: finalize archive for %s", id)
	}

	if err := os.Rename(out.Name(), archivePath); err != nil {
		return "", eris.Wrapf(err, "batch: publish archive for %s", id)
	}
	return archivePath, nil
}

func addFile(tw *tar.Writer, dir, name string) error {
	path := filepath.Join(dir, name)
	stat, err := os.Stat(path)
	if err != nil {
		return eris.Wrapf(err, "batch: stat %s", path)
	}

	hdr, err := tar.FileInfoHeader(stat, "")
	if err != nil {
		return eris.Wrapf(err, "batch: header for %s", path)
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return eris.Wrapf(err, "batch: write header for %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "batch: open %s", path)
	}
	defer f.Close()

	if _, err := io.Copy(tw, f); err != nil {
		return eris.Wrapf(err, "batch: archive %s", path)
	}
	return nil
}
