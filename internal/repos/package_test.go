package repos

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/edumint/edumint-backend/internal/errs"
	"github.com/edumint/edumint-backend/internal/logger"
	"github.com/edumint/edumint-backend/internal/types"
)

func newTestRepo(t *testing.T) PackageRepo {
	t.Helper()
	// A named in-memory database keeps every pooled connection on the same
	// store while isolating tests from each other.
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(&types.PackageRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewPackageRepo(gdb, RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond}, logger.NewNop())
}

func testPackage(id string) *types.ContentPackage {
	pkg := &types.ContentPackage{
		ID:           id,
		PartitionKey: "Mathematics-Algebra",
		Subject:      "Mathematics",
		Unit:         "Algebra",
		Skill:        "Linear Equations",
		Subskill:     "Solving one-step equations",
		Status:       types.StatusGenerated,
		MasterContext: types.MasterContext{
			CoreConcepts:       []string{"balance", "inverse operations"},
			LearningObjectives: []string{"solve one-step equations"},
		},
	}
	_ = pkg.SetComponent(types.ComponentReading, types.ReadingContent{Title: "Solving Equations"})
	return pkg
}

func TestCreateAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	pkg := testPackage("pkg_1000")
	if err := repo.Create(ctx, nil, pkg); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if pkg.StorageMetadata.Version != 1 {
		t.Fatalf("version after create = %d, want 1", pkg.StorageMetadata.Version)
	}
	if pkg.StorageMetadata.ContentHash == "" {
		t.Fatal("content hash not set on create")
	}

	got, err := repo.Get(ctx, nil, "pkg_1000", "Mathematics-Algebra")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Subject != "Mathematics" || got.Status != types.StatusGenerated {
		t.Fatalf("round-tripped package = %+v", got)
	}

	var reading types.ReadingContent
	if err := got.Component(types.ComponentReading, &reading); err != nil {
		t.Fatalf("Component: %v", err)
	}
	if reading.Title != "Solving Equations" {
		t.Fatalf("reading title = %q", reading.Title)
	}
}

func TestGetWrongPartitionKey(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, nil, testPackage("pkg_1001")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := repo.Get(ctx, nil, "pkg_1001", "Science-Biology")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateDuplicateIsConflict(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, nil, testPackage("pkg_1002")); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	err := repo.Create(ctx, nil, testPackage("pkg_1002"))
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestReplaceBumpsVersion(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	pkg := testPackage("pkg_1003")
	if err := repo.Create(ctx, nil, pkg); err != nil {
		t.Fatalf("Create: %v", err)
	}
	firstHash := pkg.StorageMetadata.ContentHash

	pkg.Status = types.StatusApproved
	_ = pkg.SetComponent(types.ComponentReading, types.ReadingContent{Title: "Revised"})
	if err := repo.Replace(ctx, nil, pkg); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if pkg.StorageMetadata.Version != 2 {
		t.Fatalf("version after replace = %d, want 2", pkg.StorageMetadata.Version)
	}
	if pkg.StorageMetadata.ContentHash == firstHash {
		t.Fatal("content hash unchanged after content edit")
	}

	got, err := repo.Get(ctx, nil, "pkg_1003", "Mathematics-Algebra")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != types.StatusApproved || got.StorageMetadata.Version != 2 {
		t.Fatalf("stored package = status %s version %d", got.Status, got.StorageMetadata.Version)
	}
}

func TestReplaceStaleVersionIsConflict(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	pkg := testPackage("pkg_1004")
	if err := repo.Create(ctx, nil, pkg); err != nil {
		t.Fatalf("Create: %v", err)
	}

	stale, err := repo.Get(ctx, nil, "pkg_1004", "Mathematics-Algebra")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	// First writer wins.
	if err := repo.Replace(ctx, nil, pkg); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	staleVersion := stale.StorageMetadata.Version
	err = repo.Replace(ctx, nil, stale)
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if stale.StorageMetadata.Version != staleVersion {
		t.Fatalf("failed replace mutated version to %d", stale.StorageMetadata.Version)
	}
}

func TestReplaceMissingIsNotFound(t *testing.T) {
	repo := newTestRepo(t)
	pkg := testPackage("pkg_never_created")
	pkg.StorageMetadata.Version = 1
	err := repo.Replace(context.Background(), nil, pkg)
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, nil, testPackage("pkg_1005")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Delete(ctx, nil, "pkg_1005", "Mathematics-Algebra"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(ctx, nil, "pkg_1005", "Mathematics-Algebra"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, nil, "pkg_1005", "Mathematics-Algebra"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestQueryFilters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := testPackage("pkg_1006")
	b := testPackage("pkg_1007")
	b.Status = types.StatusApproved
	c := testPackage("pkg_1008")
	c.Subject = "Science"
	c.Unit = "Biology"
	c.PartitionKey = "Science-Biology"
	for _, p := range []*types.ContentPackage{a, b, c} {
		if err := repo.Create(ctx, nil, p); err != nil {
			t.Fatalf("Create %s: %v", p.ID, err)
		}
	}

	got, err := repo.Query(ctx, nil, PackageFilter{Subject: "Mathematics"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("subject query returned %d packages, want 2", len(got))
	}

	got, err = repo.Query(ctx, nil, PackageFilter{Status: types.StatusApproved})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].ID != "pkg_1007" {
		t.Fatalf("status query = %+v", got)
	}

	got, err = repo.Query(ctx, nil, PackageFilter{Subject: "Mathematics", Limit: 1})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("limited query returned %d packages, want 1", len(got))
	}
}
