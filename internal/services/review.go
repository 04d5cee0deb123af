package services

import (
	"context"
	"strings"
	"time"

	"github.com/edumint/edumint-backend/internal/cache"
	"github.com/edumint/edumint-backend/internal/errs"
	"github.com/edumint/edumint-backend/internal/logger"
	"github.com/edumint/edumint-backend/internal/repos"
	"github.com/edumint/edumint-backend/internal/types"
)

// ReviewService drives the educator review workflow over generated packages.
type ReviewService interface {
	Approve(ctx context.Context, id, partitionKey, note, reviewer string) (*types.ContentPackage, error)
	Reject(ctx context.Context, id, partitionKey, note, reviewer string) (*types.ContentPackage, error)
	// ListPending returns packages awaiting a review decision: freshly
	// generated ones plus those that came back from a revision pass.
	ListPending(ctx context.Context, limit int) ([]*types.ContentPackage, error)
}

type reviewService struct {
	log   *logger.Logger
	repo  repos.PackageRepo
	cache *cache.PackageCache
	now   func() time.Time
}

func NewReviewService(repo repos.PackageRepo, pkgCache *cache.PackageCache, log *logger.Logger) ReviewService {
	return &reviewService{
		log:   log.With("service", "ReviewService"),
		repo:  repo,
		cache: pkgCache,
		now:   time.Now,
	}
}

func (s *reviewService) Approve(ctx context.Context, id, partitionKey, note, reviewer string) (*types.ContentPackage, error) {
	return s.decide(ctx, id, partitionKey, note, reviewer, types.StatusApproved)
}

func (s *reviewService) Reject(ctx context.Context, id, partitionKey, note, reviewer string) (*types.ContentPackage, error) {
	if strings.TrimSpace(note) == "" {
		return nil, errs.Validationf("a rejection requires a note")
	}
	return s.decide(ctx, id, partitionKey, note, reviewer, types.StatusRejected)
}

func (s *reviewService) decide(ctx context.Context, id, partitionKey, note, reviewer string, status types.PackageStatus) (*types.ContentPackage, error) {
	pkg, err := s.repo.Get(ctx, nil, id, partitionKey)
	if err != nil {
		return nil, err
	}
	if pkg.Status == types.StatusApproved && status == types.StatusApproved {
		return nil, errs.Validationf("package %s is already approved", id)
	}

	pkg.ReviewHistory = append(pkg.ReviewHistory, types.ReviewEntry{
		Note:      note,
		Status:    status,
		Reviewer:  reviewer,
		Timestamp: s.now().UTC(),
	})
	pkg.Status = status

	if err := s.repo.Replace(ctx, nil, pkg); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, id)

	s.log.Info("review decision recorded", "package_id", id, "status", status, "reviewer", reviewer)
	return pkg, nil
}

func (s *reviewService) ListPending(ctx context.Context, limit int) ([]*types.ContentPackage, error) {
	fresh, err := s.repo.Query(ctx, nil, repos.PackageFilter{Status: types.StatusGenerated, Limit: limit})
	if err != nil {
		return nil, err
	}
	revised, err := s.repo.Query(ctx, nil, repos.PackageFilter{Status: types.StatusNeedsReview, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := append(fresh, revised...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
