package repos

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/edumint/edumint-backend/internal/errs"
	"github.com/edumint/edumint-backend/internal/logger"
	"github.com/edumint/edumint-backend/internal/types"
)

// PackageRepo is the document-store boundary for content packages. Documents
// are written whole; there are no partial updates. Replace is guarded by an
// optimistic version check, so a concurrent writer surfaces as ErrConflict
// instead of a silent overwrite.
type PackageRepo interface {
	Create(ctx context.Context, tx *gorm.DB, pkg *types.ContentPackage) error
	Get(ctx context.Context, tx *gorm.DB, id, partitionKey string) (*types.ContentPackage, error)
	Replace(ctx context.Context, tx *gorm.DB, pkg *types.ContentPackage) error
	Delete(ctx context.Context, tx *gorm.DB, id, partitionKey string) error
	Query(ctx context.Context, tx *gorm.DB, filter PackageFilter) ([]*types.ContentPackage, error)
}

type PackageFilter struct {
	Subject string
	Unit    string
	Status  types.PackageStatus
	Limit   int
}

type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

type packageRepo struct {
	db    *gorm.DB
	log   *logger.Logger
	retry RetryPolicy
}

func NewPackageRepo(db *gorm.DB, retry RetryPolicy, baseLog *logger.Logger) PackageRepo {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &packageRepo{db: db, log: baseLog.With("repo", "PackageRepo"), retry: retry}
}

func (r *packageRepo) Create(ctx context.Context, tx *gorm.DB, pkg *types.ContentPackage) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	now := time.Now().UTC()
	pkg.StorageMetadata = types.StorageMetadata{
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
		ContentHash: contentHash(pkg),
	}

	rec, err := toRecord(pkg)
	if err != nil {
		return errs.Storagef("encode package %s: %v", pkg.ID, err)
	}

	return r.withRetry(ctx, "create", pkg.ID, func() error {
		err := transaction.WithContext(ctx).Create(rec).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errs.ErrConflict
		}
		return err
	})
}

func (r *packageRepo) Get(ctx context.Context, tx *gorm.DB, id, partitionKey string) (*types.ContentPackage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var rec types.PackageRecord
	err := transaction.WithContext(ctx).
		Where("id = ? AND partition_key = ?", id, partitionKey).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFoundf("package %s", id)
	}
	if err != nil {
		return nil, errs.Storagef("get package %s: %v", id, err)
	}
	return fromRecord(&rec)
}

// Replace writes the whole document back. The row's version column must still
// equal the version the caller read; otherwise nothing is written and
// ErrConflict is returned.
func (r *packageRepo) Replace(ctx context.Context, tx *gorm.DB, pkg *types.ContentPackage) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	expected := pkg.StorageMetadata.Version
	pkg.StorageMetadata.Version = expected + 1
	pkg.StorageMetadata.UpdatedAt = time.Now().UTC()
	pkg.StorageMetadata.ContentHash = contentHash(pkg)

	rec, err := toRecord(pkg)
	if err != nil {
		pkg.StorageMetadata.Version = expected
		return errs.Storagef("encode package %s: %v", pkg.ID, err)
	}

	err = r.withRetry(ctx, "replace", pkg.ID, func() error {
		res := transaction.WithContext(ctx).
			Model(&types.PackageRecord{}).
			Where("id = ? AND partition_key = ? AND version = ?", pkg.ID, pkg.PartitionKey, expected).
			Updates(map[string]any{
				"doc":        rec.Doc,
				"status":     rec.Status,
				"version":    rec.Version,
				"updated_at": rec.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errs.ErrConflict
		}
		return nil
	})
	if err != nil {
		pkg.StorageMetadata.Version = expected
		if errors.Is(err, errs.ErrConflict) {
			// Distinguish a missing row from a lost version race.
			var count int64
			transaction.WithContext(ctx).
				Model(&types.PackageRecord{}).
				Where("id = ? AND partition_key = ?", pkg.ID, pkg.PartitionKey).
				Count(&count)
			if count == 0 {
				return errs.NotFoundf("package %s", pkg.ID)
			}
		}
		return err
	}
	return nil
}

func (r *packageRepo) Delete(ctx context.Context, tx *gorm.DB, id, partitionKey string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Where("id = ? AND partition_key = ?", id, partitionKey).
		Delete(&types.PackageRecord{})
	if res.Error != nil {
		return errs.Storagef("delete package %s: %v", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFoundf("package %s", id)
	}
	return nil
}

func (r *packageRepo) Query(ctx context.Context, tx *gorm.DB, filter PackageFilter) ([]*types.ContentPackage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	q := transaction.WithContext(ctx).Model(&types.PackageRecord{})
	if filter.Subject != "" {
		q = q.Where("subject = ?", filter.Subject)
	}
	if filter.Unit != "" {
		q = q.Where("unit = ?", filter.Unit)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var recs []types.PackageRecord
	if err := q.Order("created_at DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, errs.Storagef("query packages: %v", err)
	}

	out := make([]*types.ContentPackage, 0, len(recs))
	for i := range recs {
		pkg, err := fromRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, pkg)
	}
	return out, nil
}

// withRetry retries transient store failures with a fixed delay. Conflicts
// and context cancellation are terminal.
func (r *packageRepo) withRetry(ctx context.Context, op, id string, fn func() error) error {
	var last error
	for attempt := 1; attempt <= r.retry.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, errs.ErrConflict) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		last = err
		if attempt == r.retry.MaxAttempts {
			break
		}
		r.log.Warn("store operation failed, retrying", "op", op, "package_id", id, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retry.Delay):
		}
	}
	return errs.Storagef("%s package %s: %v", op, id, last)
}

func toRecord(pkg *types.ContentPackage) (*types.PackageRecord, error) {
	doc, err := json.Marshal(pkg)
	if err != nil {
		return nil, err
	}
	return &types.PackageRecord{
		ID:           pkg.ID,
		PartitionKey: pkg.PartitionKey,
		Subject:      pkg.Subject,
		Unit:         pkg.Unit,
		Status:       string(pkg.Status),
		Version:      pkg.StorageMetadata.Version,
		Doc:          doc,
		CreatedAt:    pkg.StorageMetadata.CreatedAt,
		UpdatedAt:    pkg.StorageMetadata.UpdatedAt,
	}, nil
}

func fromRecord(rec *types.PackageRecord) (*types.ContentPackage, error) {
	var pkg types.ContentPackage
	if err := json.Unmarshal(rec.Doc, &pkg); err != nil {
		return nil, errs.Storagef("decode package %s: %v", rec.ID, err)
	}
	return &pkg, nil
}

// contentHash fingerprints the artifact payloads so reviewers can tell
// whether content actually changed between versions. Storage metadata itself
// is excluded from the hash.
func contentHash(pkg *types.ContentPackage) string {
	h := sha256.New()
	for _, ct := range types.AllComponents {
		if raw, ok := pkg.Content[ct]; ok {
			h.Write([]byte(ct))
			h.Write(raw)
		}
	}
	mc, _ := json.Marshal(pkg.MasterContext)
	h.Write(mc)
	return hex.EncodeToString(h.Sum(nil))
}
