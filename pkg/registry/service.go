package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/shelf/pkg/blob"
	"github.com/platinummonkey/shelf/pkg/manifest"
	"github.com/platinummonkey/shelf/pkg/observability"
)

// Service orchestrates the submission workflow: Stage, Commit, Retire, and
// the published listing.
type Service struct {
	store     Store
	blob      blob.Publisher
	extractor *manifest.Extractor
	cache     *PublishedCache
	logger    *observability.Logger
	metrics   *observability.Metrics

	uploadDir   string
	scratchRoot string
	keyPrefix   string

	// locks serializes Commit/Retire per plugin id so the multi-step shelf
	// transition is never observed mid-flight by a concurrent writer.
	locks keyedMutex
}

// Options configures a Service
type Options struct {
	Store     Store
	Blob      blob.Publisher
	Extractor *manifest.Extractor
	Cache     *PublishedCache // optional
	Logger    *observability.Logger
	Metrics   *observability.Metrics

	UploadDir   string
	ScratchRoot string
	KeyPrefix   string
}

// NewService creates a new submission workflow service
func NewService(opts Options) (*Service, error) {
	if opts.Store == nil || opts.Blob == nil || opts.Extractor == nil {
		return nil, fmt.Errorf("store, blob publisher, and extractor are required")
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics(nil)
	}

	for _, dir := range []string{opts.UploadDir, opts.ScratchRoot} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return &Service{
		store:       opts.Store,
		blob:        opts.Blob,
		extractor:   opts.Extractor,
		cache:       opts.Cache,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		uploadDir:   opts.UploadDir,
		scratchRoot: opts.ScratchRoot,
		keyPrefix:   opts.KeyPrefix,
	}, nil
}

// stagingCode generates a collision-resistant code namespacing one staging
// call: unix-seconds prefix plus a random suffix.
func stagingCode() string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:10]
	return strconv.FormatInt(time.Now().Unix(), 10) + suffix
}

// Stage validates an uploaded archive and reports a preview with advisory
// lists. Nothing is persisted; the saved archive file is deliberately
// retained so Commit can reference it by the preview's File key.
func (s *Service) Stage(ctx context.Context, data []byte, filename string) (*StagePreview, error) {
	code := stagingCode()

	// The staged archive is keyed by the staging code, not the original
	// filename, so concurrent uploads of same-named files cannot clobber
	// each other. The key travels in the preview's File field.
	stagedName := code + ".zip"
	archivePath := filepath.Join(s.uploadDir, stagedName)
	if err := os.WriteFile(archivePath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to save uploaded archive: %w", err)
	}

	scratchDir := filepath.Join(s.scratchRoot, code)
	if err := os.MkdirAll(scratchDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratchDir); err != nil {
			s.logger.WithError(err).WithField("dir", scratchDir).Warn("failed to remove scratch directory")
		}
	}()

	staged, err := s.extractor.Extract(archivePath, scratchDir, code)
	if err != nil {
		return nil, err
	}

	preview := &StagePreview{
		File:        stagedName,
		Name:        staged.Name,
		Version:     staged.Version,
		PluginID:    staged.PluginID,
		PluginType:  staged.PluginType,
		Description: staged.Description,
		Document:    staged.Document,
		Logo:        staged.Logo,
		Success:     []string{},
		Warning:     []string{},
		Error:       []string{},
		Ready:       true,
	}

	if err := s.advise(ctx, preview); err != nil {
		return nil, err
	}

	s.metrics.SubmissionsStagedTotal.WithLabelValues(strconv.FormatBool(preview.Ready)).Inc()
	s.logger.WithFields(map[string]interface{}{
		"plugin_id": preview.PluginID,
		"version":   preview.Version,
		"ready":     preview.Ready,
		"file":      stagedName,
		"upload":    filename,
	}).Info("submission staged")

	return preview, nil
}

// advise populates the preview's advisory lists by comparing against
// existing state. Advisories never raise: the reserved-type violation sets
// Ready to false and it is the caller's job to block the commit.
func (s *Service) advise(ctx context.Context, preview *StagePreview) error {
	identity, err := s.store.GetIdentity(ctx, preview.PluginID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to look up identity: %w", err)
	}

	if identity == nil {
		preview.Success = append(preview.Success,
			fmt.Sprintf("plugin id %q is not registered and will be registered automatically on commit", preview.PluginID))
	} else {
		preview.Warning = append(preview.Warning,
			fmt.Sprintf("plugin id %q already exists; committing requires its secret key", preview.PluginID))

		current, err := s.store.GetOnShelfRelease(ctx, preview.PluginID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to look up on-shelf release: %w", err)
		}
		if current != nil {
			if current.Version != preview.Version {
				preview.Warning = append(preview.Warning,
					fmt.Sprintf("version change: %s >> %s", current.Version, preview.Version))
			}
			if current.Name != preview.Name {
				preview.Warning = append(preview.Warning, "plugin name will be updated")
			}
			if current.Description != preview.Description {
				preview.Warning = append(preview.Warning, "plugin description will be updated")
			}
			if preview.Document == "" {
				preview.Warning = append(preview.Warning, "no plugin document provided")
			}
			if preview.Logo == "" {
				preview.Warning = append(preview.Warning, "no logo provided (place logo.png at the package root)")
			}
		}
	}

	if preview.PluginType == PluginTypeOfficial {
		preview.Error = append(preview.Error,
			"plugins may not be submitted with the official type; change the plugin_type attribute, an empty value is fine")
		preview.Ready = false
	}

	return nil
}

// Commit authenticates the submission and persists a new release: the staged
// archive is published to the blob store, the identity is upserted, every
// prior release of the id leaves the shelf, and the new release takes it.
func (s *Service) Commit(ctx context.Context, req *CommitRequest) error {
	unlock := s.locks.lock(req.PluginID)
	defer unlock()

	identity, err := s.store.GetIdentity(ctx, req.PluginID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to look up identity: %w", err)
	}
	if err := CheckSecret(identity, req.PluginID, req.SecretKey); err != nil {
		s.metrics.AuthFailuresTotal.WithLabelValues(authFailureReason(err)).Inc()
		return err
	}

	// Publish the staged archive under the canonical key. filepath.Base
	// keeps a hostile File value inside the upload directory.
	localPath := filepath.Join(s.uploadDir, filepath.Base(req.File))
	remoteKey := RemoteArchiveKey(s.keyPrefix, req.PluginID, req.Version)
	if err := s.blob.Upload(ctx, localPath, remoteKey); err != nil {
		s.metrics.BlobOperationsTotal.WithLabelValues("upload", "error").Inc()
		return fmt.Errorf("failed to publish archive: %w", err)
	}
	s.metrics.BlobOperationsTotal.WithLabelValues("upload", "ok").Inc()
	if info, err := os.Stat(localPath); err == nil {
		s.metrics.BlobUploadBytes.Add(float64(info.Size()))
	}

	if identity == nil {
		identity = &PluginIdentity{
			PluginID:  req.PluginID,
			Author:    req.Author,
			SecretKey: SecretDigest(req.PluginID, req.SecretKey),
		}
		if err := s.store.CreateIdentity(ctx, identity); err != nil {
			s.metrics.StoreErrorsTotal.WithLabelValues("create_identity").Inc()
			return fmt.Errorf("failed to register identity: %w", err)
		}
	} else if err := s.store.UpdateIdentityAuthor(ctx, req.PluginID, req.Author); err != nil {
		s.metrics.StoreErrorsTotal.WithLabelValues("update_identity").Inc()
		return fmt.Errorf("failed to update identity author: %w", err)
	}

	// Supersede every prior release, replace any same-version row, then
	// shelve the new one. The per-id lock covers the whole sequence.
	if err := s.store.UnshelveAll(ctx, req.PluginID); err != nil {
		s.metrics.StoreErrorsTotal.WithLabelValues("unshelve").Inc()
		return fmt.Errorf("failed to supersede prior releases: %w", err)
	}
	if err := s.store.DeleteRelease(ctx, req.PluginID, req.Version); err != nil {
		s.metrics.StoreErrorsTotal.WithLabelValues("delete_release").Inc()
		return fmt.Errorf("failed to replace same-version release: %w", err)
	}

	release := &PluginRelease{
		File:        ArchiveFileName(req.PluginID, req.Version),
		Name:        req.Name,
		Version:     req.Version,
		PluginID:    req.PluginID,
		PluginType:  req.PluginType,
		Description: req.Description,
		Document:    req.Document,
		Logo:        req.Logo,
		Remark:      req.Remark,
		UploadTime:  time.Now().Format(uploadTimeFormat),
		OnShelf:     1,
		PluginInfo:  identity.ID,
	}
	if err := s.store.CreateRelease(ctx, release); err != nil {
		s.metrics.StoreErrorsTotal.WithLabelValues("create_release").Inc()
		return fmt.Errorf("failed to create release: %w", err)
	}

	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WithError(err).Warn("failed to invalidate published cache")
	}

	s.metrics.ReleasesCommittedTotal.Inc()
	s.logger.WithFields(map[string]interface{}{
		"plugin_id": req.PluginID,
		"version":   req.Version,
		"author":    req.Author,
	}).Info("release committed")

	return nil
}

// Retire unpublishes a plugin. Soft retire takes every release of the id off
// the shelf and removes the named version's remote archive; the rows stay.
// Hard retire removes the identity, all its releases, and the whole remote
// prefix, ignoring the request's version.
func (s *Service) Retire(ctx context.Context, req *RetireRequest) error {
	unlock := s.locks.lock(req.PluginID)
	defer unlock()

	identity, err := s.store.GetIdentity(ctx, req.PluginID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to look up identity: %w", err)
	}
	if err := CheckSecret(identity, req.PluginID, req.SecretKey); err != nil {
		s.metrics.AuthFailuresTotal.WithLabelValues(authFailureReason(err)).Inc()
		return err
	}

	if req.ForceDelete {
		if err := s.retireHard(ctx, req.PluginID); err != nil {
			return err
		}
		s.metrics.ReleasesRetiredTotal.WithLabelValues("hard").Inc()
	} else {
		if err := s.retireSoft(ctx, req.PluginID, req.Version); err != nil {
			return err
		}
		s.metrics.ReleasesRetiredTotal.WithLabelValues("soft").Inc()
	}

	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WithError(err).Warn("failed to invalidate published cache")
	}

	s.logger.WithFields(map[string]interface{}{
		"plugin_id":    req.PluginID,
		"version":      req.Version,
		"force_delete": req.ForceDelete,
	}).Info("plugin retired")

	return nil
}

func (s *Service) retireSoft(ctx context.Context, pluginID, version string) error {
	if err := s.store.UnshelveAll(ctx, pluginID); err != nil {
		s.metrics.StoreErrorsTotal.WithLabelValues("unshelve").Inc()
		return fmt.Errorf("failed to unshelve releases: %w", err)
	}

	// A missing remote archive is not an error here.
	key := RemoteArchiveKey(s.keyPrefix, pluginID, version)
	if err := s.blob.Delete(ctx, key); err != nil {
		s.metrics.BlobOperationsTotal.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("failed to delete remote archive: %w", err)
	}
	s.metrics.BlobOperationsTotal.WithLabelValues("delete", "ok").Inc()

	return nil
}

func (s *Service) retireHard(ctx context.Context, pluginID string) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Cascades the identity's releases away with it.
		if err := s.store.DeleteIdentity(gctx, pluginID); err != nil {
			s.metrics.StoreErrorsTotal.WithLabelValues("delete_identity").Inc()
			return fmt.Errorf("failed to delete identity: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		prefix := RemotePluginPrefix(s.keyPrefix, pluginID)
		if err := s.blob.DeletePrefix(gctx, prefix); err != nil {
			s.metrics.BlobOperationsTotal.WithLabelValues("delete_prefix", "error").Inc()
			return fmt.Errorf("failed to delete remote prefix: %w", err)
		}
		s.metrics.BlobOperationsTotal.WithLabelValues("delete_prefix", "ok").Inc()
		return nil
	})

	return g.Wait()
}

// RestorePreviousVersion republishes a prior release after a soft retire.
// Not supported; it always returns ErrRestoreUnsupported.
func (s *Service) RestorePreviousVersion(ctx context.Context, pluginID, version string) error {
	return ErrRestoreUnsupported
}

// ListPublished returns every on-shelf release, cache first
func (s *Service) ListPublished(ctx context.Context) ([]PluginRelease, error) {
	if releases, ok := s.cache.Get(ctx); ok {
		s.metrics.CacheHitsTotal.Inc()
		return releases, nil
	}
	s.metrics.CacheMissesTotal.Inc()

	releases, err := s.store.ListOnShelf(ctx)
	if err != nil {
		s.metrics.StoreErrorsTotal.WithLabelValues("list").Inc()
		return nil, fmt.Errorf("failed to list published releases: %w", err)
	}

	if err := s.cache.Set(ctx, releases); err != nil {
		s.logger.WithError(err).Warn("failed to populate published cache")
	}

	return releases, nil
}

func authFailureReason(err error) string {
	if errors.Is(err, ErrSecretEmpty) {
		return "empty"
	}
	return "mismatch"
}

// keyedMutex hands out one mutex per key
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
