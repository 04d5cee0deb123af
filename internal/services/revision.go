package services

import (
	"context"
	"strings"
	"time"

	"github.com/edumint/edumint-backend/internal/blob"
	"github.com/edumint/edumint-backend/internal/cache"
	"github.com/edumint/edumint-backend/internal/errs"
	"github.com/edumint/edumint-backend/internal/generators"
	"github.com/edumint/edumint-backend/internal/logger"
	"github.com/edumint/edumint-backend/internal/repos"
	"github.com/edumint/edumint-backend/internal/types"
)

// ComponentRevision is one (component, feedback) pair of a revision request.
type ComponentRevision struct {
	Component types.ComponentType `json:"component"`
	Feedback  string              `json:"feedback"`
}

// RevisionService regenerates components against reviewer feedback. Routing
// is a capability registry: a component type is revisable exactly when a
// generator registered for it. A request is applied as a unit: all pairs in
// caller order, then one replace, or nothing.
type RevisionService interface {
	Revise(ctx context.Context, id, partitionKey string, revisions []ComponentRevision, reviewer string) (*types.ContentPackage, error)
	ReviseComponent(ctx context.Context, id, partitionKey string, component types.ComponentType, feedback, reviewer string) (*types.ContentPackage, error)
	Capabilities() []types.ComponentType
}

type revisionService struct {
	log      *logger.Logger
	registry map[types.ComponentType]generators.Generator
	repo     repos.PackageRepo
	store    blob.AudioStore
	cache    *cache.PackageCache
	now      func() time.Time
}

func NewRevisionService(gens []generators.Generator, repo repos.PackageRepo, store blob.AudioStore, pkgCache *cache.PackageCache, log *logger.Logger) RevisionService {
	registry := map[types.ComponentType]generators.Generator{}
	for _, g := range gens {
		registry[g.Component()] = g
	}
	return &revisionService{
		log:      log.With("service", "RevisionService"),
		registry: registry,
		repo:     repo,
		store:    store,
		cache:    pkgCache,
		now:      time.Now,
	}
}

func (s *revisionService) Capabilities() []types.ComponentType {
	out := make([]types.ComponentType, 0, len(s.registry))
	for _, ct := range types.AllComponents {
		if _, ok := s.registry[ct]; ok {
			out = append(out, ct)
		}
	}
	return out
}

func (s *revisionService) ReviseComponent(ctx context.Context, id, partitionKey string, component types.ComponentType, feedback, reviewer string) (*types.ContentPackage, error) {
	return s.Revise(ctx, id, partitionKey, []ComponentRevision{{Component: component, Feedback: feedback}}, reviewer)
}

func (s *revisionService) Revise(ctx context.Context, id, partitionKey string, revisions []ComponentRevision, reviewer string) (*types.ContentPackage, error) {
	if len(revisions) == 0 {
		return nil, errs.Validationf("no revisions requested")
	}
	// The whole request is validated before any generator runs so a bad pair
	// cannot abort a half-applied batch.
	for _, rev := range revisions {
		if strings.TrimSpace(rev.Feedback) == "" {
			return nil, errs.Validationf("feedback for %q must not be empty", rev.Component)
		}
		if _, ok := s.registry[rev.Component]; !ok {
			return nil, errs.Validationf("component %q is not revisable", rev.Component)
		}
	}

	pkg, err := s.repo.Get(ctx, nil, id, partitionKey)
	if err != nil {
		return nil, err
	}

	var totalMS int64
	var audioTouched bool
	for _, rev := range revisions {
		if rev.Component == types.ComponentAudio {
			audioTouched = true
		}
		started := s.now()
		payload, meta, err := s.registry[rev.Component].Revise(ctx, pkg, rev.Feedback)
		if err != nil {
			if audioTouched {
				s.cleanupRevisionBlobs(id)
			}
			return nil, err
		}
		elapsed := s.now().Sub(started).Milliseconds()
		totalMS += elapsed

		// Only the targeted component changes; everything else in the
		// package is carried through the replace untouched.
		if err := pkg.SetComponent(rev.Component, payload); err != nil {
			if audioTouched {
				s.cleanupRevisionBlobs(id)
			}
			return nil, err
		}
		if pkg.ComponentMeta == nil {
			pkg.ComponentMeta = map[types.ComponentType]map[string]any{}
		}
		pkg.ComponentMeta[rev.Component] = meta
		pkg.RevisionHistory = append(pkg.RevisionHistory, types.RevisionEntry{
			Component:  rev.Component,
			Feedback:   rev.Feedback,
			Reviewer:   reviewer,
			DurationMS: elapsed,
			Timestamp:  s.now().UTC(),
		})
	}
	pkg.GenerationMetadata.GenerationTimeMS += totalMS
	pkg.Status = types.StatusNeedsReview

	if err := s.repo.Replace(ctx, nil, pkg); err != nil {
		if audioTouched {
			s.cleanupRevisionBlobs(id)
		}
		return nil, err
	}
	s.cache.Invalidate(ctx, id)

	s.log.Info("components revised",
		"package_id", id,
		"components", len(revisions),
		"revision_count", len(pkg.RevisionHistory),
		"revision_time_ms", totalMS,
	)
	return pkg, nil
}

// cleanupRevisionBlobs removes audio rendered under the derived revision key
// when the request does not commit. Best effort, logged never escalated.
func (s *revisionService) cleanupRevisionBlobs(id string) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.store.DeletePrefix(ctx, id+"_rev"); err != nil {
		s.log.Warn("revision blob cleanup failed, orphans may remain", "package_id", id, "error", err)
	}
}
