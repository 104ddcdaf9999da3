package backupstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/sourcegraph/conc/pool"

	"github.com/semmidev/backupkeeper/internal/domain"
)

type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

type Catalog interface {
	Insert(ctx context.Context, rec domain.BackupRecord) error
	List(ctx context.Context) ([]domain.BackupRecord, error)
	Get(ctx context.Context, id string) (domain.BackupRecord, error)
	Delete(ctx context.Context, id, requesterID string, at time.Time) error
}

type LocalStorage interface {
	domain.Storage
	GetPath(filename string) string
}

// Mirror is a best-effort remote copy of the local archive.
type Mirror struct {
	Name    string
	Storage domain.Storage
}

// ArchiveStore is a domain.BackupStore that dumps every source into a
// staging directory, archives it, keeps the archive in local storage and
// copies it to the mirrors.
type ArchiveStore struct {
	sources  []domain.Source
	archiver domain.Archiver
	local    LocalStorage
	mirrors  []Mirror
	catalog  Catalog
	clock    clock.Clock
	logger   Logger
	tempDir  string
}

func New(
	sources []domain.Source,
	archiver domain.Archiver,
	local LocalStorage,
	mirrors []Mirror,
	catalog Catalog,
	clk clock.Clock,
	logger Logger,
) *ArchiveStore {
	return &ArchiveStore{
		sources:  sources,
		archiver: archiver,
		local:    local,
		mirrors:  mirrors,
		catalog:  catalog,
		clock:    clk,
		logger:   logger,
	}
}

// WithTempDir sets where staging directories are created. The default is
// os.TempDir.
func (s *ArchiveStore) WithTempDir(dir string) *ArchiveStore {
	s.tempDir = dir
	return s
}

func (s *ArchiveStore) CreateFullBackup(ctx context.Context, requesterID, description string) (domain.BackupRecord, error) {
	return s.create(ctx, domain.BackupKindFull, requesterID, description, time.Time{})
}

func (s *ArchiveStore) CreateIncrementalBackup(ctx context.Context, requesterID string, windowStart time.Time) (domain.BackupRecord, error) {
	description := fmt.Sprintf("Incremental backup since %s", windowStart.UTC().Format(time.RFC3339))
	return s.create(ctx, domain.BackupKindIncremental, requesterID, description, windowStart)
}

func (s *ArchiveStore) create(ctx context.Context, kind domain.BackupKind, requesterID, description string, since time.Time) (domain.BackupRecord, error) {
	start := s.clock.Now()
	id := uuid.NewString()

	staging, err := os.MkdirTemp(s.tempDir, "backupkeeper-*")
	if err != nil {
		return domain.BackupRecord{}, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	dataDir := filepath.Join(staging, "data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return domain.BackupRecord{}, fmt.Errorf("create staging dir: %w", err)
	}

	if err := s.dumpSources(ctx, kind, dataDir, since); err != nil {
		return domain.BackupRecord{}, err
	}

	name := fmt.Sprintf("%s_%s_%s%s", kind, start.UTC().Format("20060102_150405"), id[:8], s.archiver.Extension())
	archivePath := filepath.Join(staging, name)

	size, err := s.archiver.Archive(dataDir, archivePath)
	if err != nil {
		return domain.BackupRecord{}, fmt.Errorf("archive: %w", err)
	}
	s.logger.Infof("[%s] Archive created: %s (%s)", kind, name, humanize.IBytes(uint64(size)))

	if err := s.local.Upload(ctx, archivePath, name); err != nil {
		return domain.BackupRecord{}, fmt.Errorf("local upload: %w", err)
	}

	rec := domain.BackupRecord{
		ID:          id,
		Name:        name,
		Kind:        kind,
		CreatedAt:   start,
		SizeBytes:   size,
		Description: description,
		RequestedBy: requesterID,
	}
	if kind == domain.BackupKindIncremental {
		ws := since
		rec.WindowStart = &ws
	}

	if err := s.catalog.Insert(ctx, rec); err != nil {
		if rmErr := s.local.Delete(ctx, name); rmErr != nil {
			s.logger.Warnf("[%s] Failed to remove uncatalogued archive %s: %v", kind, name, rmErr)
		}
		return domain.BackupRecord{}, fmt.Errorf("catalog: %w", err)
	}

	if len(s.mirrors) > 0 {
		s.uploadToMirrors(ctx, archivePath, name)
	}

	s.logger.Infof("[%s] Backup %s completed in %s", kind, name, s.clock.Now().Sub(start).Round(time.Second))
	return rec, nil
}

// dumpSources runs every source. A full backup needs all of them; an
// incremental skips sources without change capture but needs at least one.
func (s *ArchiveStore) dumpSources(ctx context.Context, kind domain.BackupKind, dataDir string, since time.Time) error {
	if len(s.sources) == 0 {
		return errors.New("no sources configured")
	}

	dumped := 0
	for _, src := range s.sources {
		name := src.GetName()

		if err := src.Ping(ctx); err != nil {
			return fmt.Errorf("[%s] ping: %w", name, err)
		}

		outputPath := filepath.Join(dataDir, name+src.Extension())
		s.logger.Infof("[%s] Dumping %s source...", name, src.GetType())

		err := src.Dump(ctx, outputPath, since)
		if kind == domain.BackupKindIncremental && errors.Is(err, domain.ErrIncrementalUnsupported) {
			s.logger.Debugf("[%s] Skipped: %v", name, err)
			continue
		}
		if err != nil {
			return fmt.Errorf("[%s] dump: %w", name, err)
		}
		dumped++
	}

	if dumped == 0 {
		return fmt.Errorf("no source captured changes: %w", domain.ErrIncrementalUnsupported)
	}
	return nil
}

func (s *ArchiveStore) uploadToMirrors(ctx context.Context, archivePath, name string) {
	p := pool.New().WithMaxGoroutines(len(s.mirrors))
	for _, m := range s.mirrors {
		p.Go(func() {
			s.logger.Infof("Uploading %s to %s...", name, m.Name)
			if err := m.Storage.Upload(ctx, archivePath, name); err != nil {
				s.logger.Errorf("Failed to upload %s to %s: %v", name, m.Name, err)
				return
			}
			s.logger.Infof("Successfully uploaded %s to %s", name, m.Name)
		})
	}
	p.Wait()
}

func (s *ArchiveStore) ListBackups(ctx context.Context) ([]domain.BackupRecord, error) {
	return s.catalog.List(ctx)
}

// DeleteBackup drops the catalog record first, so a listed backup always
// has its archive. The local archive and mirror copies are removed after
// that on a best effort basis; a file left behind is logged as orphaned.
func (s *ArchiveStore) DeleteBackup(ctx context.Context, id, requesterID string) error {
	rec, err := s.catalog.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.catalog.Delete(ctx, id, requesterID, s.clock.Now()); err != nil {
		return err
	}

	if err := s.local.Delete(ctx, rec.Name); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warnf("Local archive %s was already missing", rec.Name)
		} else {
			s.logger.Errorf("Orphaned local archive %s: %v", rec.Name, err)
		}
	}

	if len(s.mirrors) > 0 {
		p := pool.New().WithMaxGoroutines(len(s.mirrors))
		for _, m := range s.mirrors {
			p.Go(func() {
				if err := m.Storage.Delete(ctx, rec.Name); err != nil {
					s.logger.Warnf("Failed to delete %s from %s: %v", rec.Name, m.Name, err)
				}
			})
		}
		p.Wait()
	}

	return nil
}
