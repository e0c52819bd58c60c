// Package reliability backs up the SQLite databases and keeps them healthy.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/carteira/internal/database"
	"github.com/aristath/carteira/internal/domain"
	"github.com/aristath/carteira/internal/events"
	"github.com/rs/zerolog"
)

const (
	backupPrefix     = "carteira-backup-"
	backupSuffix     = ".tar.gz"
	backupTimeLayout = "2006-01-02-150405"
	manifestName     = "manifest.json"
)

// Manifest is written next to the database copies inside every archive
type Manifest struct {
	CreatedAt time.Time    `json:"created_at"`
	Databases []BackupFile `json:"databases"`
}

// BackupFile describes one database copy in an archive
type BackupFile struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo is a backup found in the bucket
type BackupInfo struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int64     `json:"size_bytes"`
}

// EventEmitter publishes backup events
type EventEmitter interface {
	Emit(module string, data events.EventData)
}

// BackupService snapshots the databases into a tar.gz and ships it to object storage
type BackupService struct {
	store     ObjectStore
	databases []*database.DB
	emitter   EventEmitter
	clock     domain.Clock
	retention int
	log       zerolog.Logger
}

// NewBackupService creates a backup service keeping the newest retention archives
func NewBackupService(
	store ObjectStore,
	databases []*database.DB,
	retention int,
	emitter EventEmitter,
	clock domain.Clock,
	log zerolog.Logger,
) *BackupService {
	if retention < 1 {
		retention = 1
	}
	return &BackupService{
		store:     store,
		databases: databases,
		emitter:   emitter,
		clock:     clock,
		retention: retention,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// Backup archives every database, uploads the archive and prunes old ones.
// It returns the uploaded key.
func (s *BackupService) Backup(ctx context.Context) (string, error) {
	start := time.Now()

	stagingDir, err := os.MkdirTemp("", "carteira-backup-*")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	key := backupKey(s.clock.Now())
	archivePath := filepath.Join(stagingDir, key)
	if err := s.CreateArchive(ctx, stagingDir, archivePath); err != nil {
		return "", err
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	info, err := archive.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat archive: %w", err)
	}
	if err := s.store.Upload(ctx, key, archive, info.Size()); err != nil {
		return "", fmt.Errorf("failed to upload backup: %w", err)
	}

	s.log.Info().
		Str("key", key).
		Int64("size_bytes", info.Size()).
		Dur("duration", time.Since(start)).
		Msg("Backup uploaded")

	pruned, err := s.Prune(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to prune old backups")
	}

	if s.emitter != nil {
		s.emitter.Emit("reliability", &events.BackupCompletedData{
			Key:       key,
			SizeBytes: info.Size(),
			Pruned:    pruned,
		})
	}
	return key, nil
}

// CreateArchive copies each database into workDir and packs the copies
// plus a manifest into a gzipped tarball at archivePath
func (s *BackupService) CreateArchive(ctx context.Context, workDir, archivePath string) error {
	manifest := Manifest{CreatedAt: s.clock.Now().UTC()}
	files := make([]string, 0, len(s.databases)+1)

	for _, db := range s.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			s.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed, copying anyway")
		}

		filename := db.Name() + ".db"
		copyPath := filepath.Join(workDir, filename)
		if err := db.VacuumInto(ctx, copyPath); err != nil {
			return fmt.Errorf("failed to copy %s: %w", db.Name(), err)
		}

		info, err := os.Stat(copyPath)
		if err != nil {
			return fmt.Errorf("failed to stat %s copy: %w", db.Name(), err)
		}
		checksum, err := fileChecksum(copyPath)
		if err != nil {
			return fmt.Errorf("failed to checksum %s copy: %w", db.Name(), err)
		}

		manifest.Databases = append(manifest.Databases, BackupFile{
			Name:      db.Name(),
			Filename:  filename,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
		files = append(files, filename)
	}

	manifestPath := filepath.Join(workDir, manifestName)
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	files = append(files, manifestName)

	if err := writeTarGz(archivePath, workDir, files); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	return nil
}

// List returns the backups in the bucket, newest first
func (s *BackupService) List(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, backupPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		createdAt, ok := parseBackupKey(obj.Key)
		if !ok {
			s.log.Debug().Str("key", obj.Key).Msg("Skipping foreign object")
			continue
		}
		backups = append(backups, BackupInfo{Key: obj.Key, CreatedAt: createdAt, SizeBytes: obj.Size})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Prune deletes all but the newest retention backups and returns how many went
func (s *BackupService) Prune(ctx context.Context) (int, error) {
	backups, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(backups) <= s.retention {
		return 0, nil
	}

	deleted := 0
	for _, backup := range backups[s.retention:] {
		if err := s.store.Delete(ctx, backup.Key); err != nil {
			s.log.Error().Err(err).Str("key", backup.Key).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	s.log.Info().Int("deleted", deleted).Int("kept", s.retention).Msg("Pruned old backups")
	return deleted, nil
}

func backupKey(t time.Time) string {
	return backupPrefix + t.UTC().Format(backupTimeLayout) + backupSuffix
}

func parseBackupKey(key string) (time.Time, bool) {
	if !strings.HasPrefix(key, backupPrefix) || !strings.HasSuffix(key, backupSuffix) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(key, backupPrefix), backupSuffix)
	t, err := time.Parse(backupTimeLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeTarGz(archivePath, sourceDir string, names []string) (err error) {
	out, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
	}()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	for _, name := range names {
		if err := addToTar(tw, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func addToTar(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    name,
		Size:    info.Size(),
		Mode:    int64(info.Mode().Perm()),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
