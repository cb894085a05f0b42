package database

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const backupTimeFormat = "20060102T150405"

type backupFile struct {
	path string
	at   time.Time
}

func (d *Database) backupDir() string {
	return filepath.Join(filepath.Dir(d.path), "backups")
}

// backupPrefix is the database file name without extension, backups are
// named <prefix>-<time>.zip.
func (d *Database) backupPrefix() string {
	base := filepath.Base(d.path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "-"
}

// Backup writes a consistent copy of the database into a zip archive next to
// it, backups/<name>-<time>.zip.
func (d *Database) Backup(ctx context.Context) error {
	dir := d.backupDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	name := d.backupPrefix() + d.now().Format(backupTimeFormat)
	snapshot := filepath.Join(dir, name+".db")
	if _, err := d.write.ExecContext(ctx, "VACUUM INTO ?", snapshot); err != nil {
		return fmt.Errorf("vacuuming database into '%s': %w", snapshot, err)
	}
	defer func() {
		if err := os.Remove(snapshot); err != nil && !errors.Is(err, fs.ErrNotExist) {
			d.logger.Warn("could not remove uncompressed backup", slog.Any("error", err))
		}
	}()

	archive := filepath.Join(dir, name+".zip")
	if err := zipFile(archive, snapshot, filepath.Base(d.path)); err != nil {
		_ = os.Remove(archive)
		return err
	}

	d.logger.Info("database backup complete", slog.String("filename", archive))
	return nil
}

func zipFile(archive, src, entryName string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open backup for compression: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat backup: %w", err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("create zip header: %w", err)
	}
	header.Name = entryName
	header.Method = zip.Deflate

	out, err := os.Create(archive)
	if err != nil {
		return fmt.Errorf("create zip file: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create zip entry: %w", err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("write database to zip: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize zip file: %w", err)
	}
	return out.Close()
}

// backups lists this database's archives, newest first. Other files in the
// directory are ignored.
func (d *Database) backups() ([]backupFile, error) {
	entries, err := os.ReadDir(d.backupDir())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	prefix := d.backupPrefix()
	var files []backupFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || filepath.Ext(name) != ".zip" {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".zip")
		at, err := time.ParseInLocation(backupTimeFormat, stamp, time.Local)
		if err != nil {
			continue
		}
		files = append(files, backupFile{path: filepath.Join(d.backupDir(), name), at: at})
	}
	slices.SortFunc(files, func(a, b backupFile) int { return b.at.Compare(a.at) })
	return files, nil
}

// PurgeBackups removes archives older than retentionDays. The newest archive
// is always kept, even when it is past retention.
func (d *Database) PurgeBackups(ctx context.Context, retentionDays int) error {
	if retentionDays < 1 {
		return nil
	}
	files, err := d.backups()
	if err != nil {
		return err
	}

	cutoff := d.now().AddDate(0, 0, -retentionDays)
	removed := 0
	for i, f := range files {
		if i == 0 || !f.at.Before(cutoff) {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := os.Remove(f.path); err != nil {
			return fmt.Errorf("remove old backup '%s': %w", f.path, err)
		}
		removed++
	}

	d.logger.Info("backup purge complete", slog.Int("removed", removed), slog.Int("kept", len(files)-removed))
	return nil
}
