// Package sync reconciles item sources with the items table: new items are
// inserted, changed ones updated and items that disappeared from their
// source are deleted.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/knoldrill/internal/domain"
	"github.com/conorfennell/knoldrill/internal/gitsource"
	"github.com/conorfennell/knoldrill/internal/knol"
	"github.com/conorfennell/knoldrill/internal/parser"
	"github.com/conorfennell/knoldrill/internal/storage"
)

// Store is the persistence the syncer needs.
type Store interface {
	InsertSource(ctx context.Context, typ storage.SourceType, path string) (int64, error)
	FindSourceByPath(ctx context.Context, path string) (*storage.Source, error)
	GetAllSources(ctx context.Context) ([]storage.Source, error)
	UpdateSourceLastScanned(ctx context.Context, sourceID int64) error
	UpsertItem(ctx context.Context, item domain.Item) error
	GetItemsBySourceID(ctx context.Context, sourceID int64) ([]domain.Item, error)
	DeleteItem(ctx context.Context, id domain.ItemID) error
}

// Report summarizes the reconciliation of one source.
type Report struct {
	SourceID int64   `json:"sourceId"`
	Path     string  `json:"path"`
	Parsed   int     `json:"parsed"`
	Deleted  int     `json:"deleted"`
	Errors   []error `json:"-"`
}

// Syncer reconciles sources. Git sources are cloned below ReposDir.
type Syncer struct {
	Store    Store
	ReposDir string
	// GitProgress receives clone and pull progress output. May be nil.
	GitProgress io.Writer
}

// AddSource registers path as a source. Git URLs are stored as given, local
// paths as absolute directories. Adding an existing source returns it unchanged.
func (s *Syncer) AddSource(ctx context.Context, path string) (*storage.Source, error) {
	typ := storage.SourceLocal
	if gitsource.IsGitURL(path) {
		typ = storage.SourceGit
	} else {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve source path %s: %w", path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to read source path %s: %w", abs, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("source path %s is not a directory", abs)
		}
		path = abs
	}

	existing, err := s.Store.FindSourceByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		slog.Info("Source already exists", "id", existing.ID, "path", path)
		return existing, nil
	}

	id, err := s.Store.InsertSource(ctx, typ, path)
	if err != nil {
		return nil, err
	}
	slog.Info("Added source", "id", id, "type", typ, "path", path)
	return &storage.Source{ID: id, Type: typ, Path: path}, nil
}

// RunSync iterates over all sources and reconciles them. A failing source is
// logged and reported; it does not stop the others.
func (s *Syncer) RunSync(ctx context.Context) ([]Report, error) {
	slog.Info("Starting sync process for all sources...")
	sources, err := s.Store.GetAllSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}

	if len(sources) == 0 {
		slog.Info("No sources configured. Add one with --add-source <path/or/url.git>")
		return nil, nil
	}

	reposDir := s.ReposDir
	if reposDir == "" {
		reposDir = "repos"
	}

	var reports []Report
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		slog.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		dir := source.Path
		if source.Type == storage.SourceGit {
			localRepoPath, err := gitsource.LocalPath(reposDir, source.Path)
			if err != nil {
				slog.Error("Error determining local path for git repo", "url", source.Path, "error", err)
				reports = append(reports, Report{SourceID: source.ID, Path: source.Path, Errors: []error{err}})
				continue
			}
			if err := os.MkdirAll(filepath.Dir(localRepoPath), os.ModePerm); err != nil {
				return reports, fmt.Errorf("failed to create repos directory: %w", err)
			}
			if err := gitsource.Sync(ctx, source.Path, localRepoPath, s.GitProgress); err != nil {
				slog.Error("Error syncing git repo", "url", source.Path, "error", err)
				reports = append(reports, Report{SourceID: source.ID, Path: source.Path, Errors: []error{err}})
				continue
			}
			dir = localRepoPath
		}

		report, err := s.Reconcile(ctx, source.ID, dir)
		if err != nil {
			slog.Error("Error reconciling source", "id", source.ID, "path", dir, "error", err)
			report.Errors = append(report.Errors, err)
		}
		reports = append(reports, report)
	}
	slog.Info("Sync process complete.")
	return reports, nil
}

// Reconcile parses every markdown file below dir into items of sourceID,
// upserts them and deletes the source's items that were not found.
// Parse errors of single files are collected in the report.
func (s *Syncer) Reconcile(ctx context.Context, sourceID int64, dir string) (Report, error) {
	report := Report{SourceID: sourceID, Path: dir}
	found := make(map[domain.ItemID]bool)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		items, parseErr := parser.ParseFile(path, sourceID)
		if parseErr != nil {
			report.Errors = append(report.Errors, fmt.Errorf("parsing %s: %w", path, parseErr))
		}
		for _, item := range knol.Assign(items) {
			if found[item.ID] {
				continue
			}
			found[item.ID] = true
			report.Parsed++
			if err := s.Store.UpsertItem(ctx, item); err != nil {
				report.Errors = append(report.Errors, fmt.Errorf("db upsert for %s: %w", item.ID, err))
			}
		}
		return nil
	})
	if walkErr != nil {
		return report, fmt.Errorf("error walking directory %s: %w", dir, walkErr)
	}

	stored, err := s.Store.GetItemsBySourceID(ctx, sourceID)
	if err != nil {
		return report, fmt.Errorf("error getting items for source %d: %w", sourceID, err)
	}
	for _, item := range stored {
		if found[item.ID] {
			continue
		}
		slog.Info("Orphaned item, deleting", "id", item.ID)
		if err := s.Store.DeleteItem(ctx, item.ID); err != nil {
			slog.Warn("Failed to delete orphaned item", "id", item.ID, "error", err)
			report.Errors = append(report.Errors, err)
			continue
		}
		report.Deleted++
	}

	if err := s.Store.UpdateSourceLastScanned(ctx, sourceID); err != nil {
		slog.Warn("Failed to update last scanned for source", "source_id", sourceID, "error", err)
	}

	slog.Info("reconciliation complete",
		"path", dir,
		"parsed_items", report.Parsed,
		"orphaned_deleted", report.Deleted,
		"errors", len(report.Errors),
	)
	return report, nil
}

// Err joins the errors of a report, nil when there are none.
func (r Report) Err() error {
	return errors.Join(r.Errors...)
}
