package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/edumint/edumint-backend/internal/config"
	"github.com/edumint/edumint-backend/internal/errs"
	"github.com/edumint/edumint-backend/internal/generators"
	"github.com/edumint/edumint-backend/internal/logger"
	"github.com/edumint/edumint-backend/internal/repos"
	"github.com/edumint/edumint-backend/internal/types"
)

func newTestRepo(t *testing.T) repos.PackageRepo {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(&types.PackageRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repos.NewPackageRepo(gdb, repos.RetryPolicy{MaxAttempts: 1}, logger.NewNop())
}

type fakeMCGen struct {
	mc    types.MasterContext
	calls int
}

func (f *fakeMCGen) Generate(context.Context, types.ContentRequest) (*types.MasterContext, error) {
	f.calls++
	mc := f.mc
	return &mc, nil
}

type fakeGen struct {
	ct            types.ComponentType
	deps          []types.ComponentType
	payload       any
	revisePayload any
	err           error
	delay         time.Duration
	mu            sync.Mutex
	seenMC        []types.MasterContext
	seenPrior     []generators.Artifacts
	revised       int
}

func (f *fakeGen) Component() types.ComponentType { return f.ct }

func (f *fakeGen) DependsOn() []types.ComponentType { return f.deps }

func (f *fakeGen) Generate(ctx context.Context, _ types.ContentRequest, mc types.MasterContext, prior generators.Artifacts, _ string) (any, map[string]any, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, nil, f.err
	}
	f.mu.Lock()
	f.seenMC = append(f.seenMC, mc)
	f.seenPrior = append(f.seenPrior, prior)
	f.mu.Unlock()
	if f.payload != nil {
		return f.payload, map[string]any{"ok": true}, nil
	}
	return map[string]string{"component": string(f.ct)}, map[string]any{"ok": true}, nil
}

func (f *fakeGen) Revise(_ context.Context, _ *types.ContentPackage, feedback string) (any, map[string]any, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	f.revised++
	if f.revisePayload != nil {
		return f.revisePayload, map[string]any{"revised": true}, nil
	}
	return map[string]string{"component": string(f.ct), "feedback": feedback}, map[string]any{"revised": true}, nil
}

type fakeBlobStore struct {
	mu              sync.Mutex
	deletedPrefixes []string
}

func (f *fakeBlobStore) Upload(_ context.Context, blobName string, _ []byte, _ string) (string, error) {
	return "https://cdn.example.com/" + blobName, nil
}

func (f *fakeBlobStore) Delete(context.Context, string) error { return nil }

func (f *fakeBlobStore) DeletePrefix(_ context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedPrefixes = append(f.deletedPrefixes, prefix)
	return nil
}

func (f *fakeBlobStore) PublicURL(blobName string) string { return blobName }

func allFakeGens() []*fakeGen {
	return []*fakeGen{
		{ct: types.ComponentReading},
		{ct: types.ComponentVisual},
		{ct: types.ComponentAudio},
		{ct: types.ComponentPractice},
	}
}

func asGenerators(fakes []*fakeGen) []generators.Generator {
	out := make([]generators.Generator, len(fakes))
	for i, f := range fakes {
		out[i] = f
	}
	return out
}

func testMC() types.MasterContext {
	return types.MasterContext{
		CoreConcepts:       []string{"balance"},
		LearningObjectives: []string{"solve one-step equations"},
		DifficultyLevel:    "intermediate",
	}
}

func validRequest() types.ContentRequest {
	return types.ContentRequest{
		Subject:  "Mathematics",
		Unit:     "Algebra",
		Skill:    "Linear Equations",
		Subskill: "Solving one-step equations",
	}
}

func newContentService(t *testing.T, fakes []*fakeGen, store *fakeBlobStore) (ContentService, repos.PackageRepo) {
	t.Helper()
	repo := newTestRepo(t)
	svc := NewContentService(
		&fakeMCGen{mc: testMC()},
		asGenerators(fakes),
		repo,
		store,
		nil,
		config.Config{GenerationTimeout: 10 * time.Second},
		logger.NewNop(),
	)
	return svc, repo
}

func TestGeneratePackageHappyPath(t *testing.T) {
	fakes := allFakeGens()
	svc, repo := newContentService(t, fakes, &fakeBlobStore{})

	pkg, err := svc.GeneratePackage(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("GeneratePackage: %v", err)
	}

	if !pkg.Complete() {
		t.Fatal("generated package is not complete")
	}
	if pkg.Status != types.StatusGenerated {
		t.Fatalf("status = %s", pkg.Status)
	}
	if pkg.PartitionKey != "Mathematics-Algebra" {
		t.Fatalf("partition key = %q", pkg.PartitionKey)
	}
	if pkg.GenerationMetadata.CoherenceScore != 0.90 {
		t.Fatalf("coherence = %v", pkg.GenerationMetadata.CoherenceScore)
	}
	if pkg.GenerationMetadata.GeneratedBy == "" {
		t.Fatal("generated_by not set")
	}
	for _, ct := range types.AllComponents {
		if pkg.ComponentMeta[ct] == nil {
			t.Fatalf("component meta missing for %s", ct)
		}
	}

	stored, err := repo.Get(context.Background(), nil, pkg.ID, pkg.PartitionKey)
	if err != nil {
		t.Fatalf("package not persisted: %v", err)
	}
	if stored.StorageMetadata.Version != 1 {
		t.Fatalf("stored version = %d", stored.StorageMetadata.Version)
	}
}

func TestGeneratePackageSharesOneContext(t *testing.T) {
	fakes := allFakeGens()
	svc, _ := newContentService(t, fakes, &fakeBlobStore{})

	if _, err := svc.GeneratePackage(context.Background(), validRequest()); err != nil {
		t.Fatalf("GeneratePackage: %v", err)
	}
	want := testMC()
	for _, f := range fakes {
		if len(f.seenMC) != 1 {
			t.Fatalf("%s generator ran %d times", f.ct, len(f.seenMC))
		}
		if f.seenMC[0].CoreConcepts[0] != want.CoreConcepts[0] {
			t.Fatalf("%s generator saw context %+v", f.ct, f.seenMC[0])
		}
	}
}

func TestGeneratePackageIDsDoNotCollideWithinOneSecond(t *testing.T) {
	svc, _ := newContentService(t, allFakeGens(), &fakeBlobStore{})
	frozen := time.Unix(1700000000, 0)
	svc.(*contentService).now = func() time.Time { return frozen }

	first, err := svc.GeneratePackage(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("first GeneratePackage: %v", err)
	}
	second, err := svc.GeneratePackage(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("second GeneratePackage in same second: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("both runs produced id %q", first.ID)
	}
	if !strings.HasPrefix(first.ID, "pkg_1700000000_") {
		t.Fatalf("id = %q", first.ID)
	}
}

func TestGeneratePackageStagesDependentGenerators(t *testing.T) {
	fakes := allFakeGens()
	fakes[0].payload = &types.ReadingContent{Title: "Balancing Both Sides"}
	fakes[1].payload = &types.VisualContent{InteractiveElements: []string{"drag weights"}}
	fakes[3].deps = []types.ComponentType{types.ComponentReading, types.ComponentVisual}
	svc, _ := newContentService(t, fakes, &fakeBlobStore{})

	if _, err := svc.GeneratePackage(context.Background(), validRequest()); err != nil {
		t.Fatalf("GeneratePackage: %v", err)
	}

	if prior := fakes[0].seenPrior[0]; prior.Reading != nil || prior.Visual != nil {
		t.Fatalf("first-wave generator received artifacts: %+v", prior)
	}
	prior := fakes[3].seenPrior[0]
	if prior.Reading == nil || prior.Reading.Title != "Balancing Both Sides" {
		t.Fatalf("dependent generator reading artifact = %+v", prior.Reading)
	}
	if prior.Visual == nil || len(prior.Visual.InteractiveElements) != 1 {
		t.Fatalf("dependent generator visual artifact = %+v", prior.Visual)
	}
}

func TestGeneratePackageComponentFailureCleansUp(t *testing.T) {
	fakes := allFakeGens()
	fakes[2].err = errs.Generationf("TTS backend down")
	store := &fakeBlobStore{}
	svc, repo := newContentService(t, fakes, store)

	pkg, err := svc.GeneratePackage(context.Background(), validRequest())
	if !errors.Is(err, errs.ErrGeneration) {
		t.Fatalf("err = %v, want ErrGeneration", err)
	}
	if pkg != nil {
		t.Fatal("partial package returned on failure")
	}

	store.mu.Lock()
	cleanups := len(store.deletedPrefixes)
	store.mu.Unlock()
	if cleanups != 1 {
		t.Fatalf("blob cleanups = %d, want 1", cleanups)
	}

	got, err := repo.Query(context.Background(), nil, repos.PackageFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("failed run persisted %d packages", len(got))
	}
}

func TestGeneratePackageValidation(t *testing.T) {
	svc, _ := newContentService(t, allFakeGens(), &fakeBlobStore{})
	req := validRequest()
	req.Subject = ""
	_, err := svc.GeneratePackage(context.Background(), req)
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestDeletePackageRemovesBlobs(t *testing.T) {
	store := &fakeBlobStore{}
	svc, _ := newContentService(t, allFakeGens(), store)

	pkg, err := svc.GeneratePackage(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("GeneratePackage: %v", err)
	}
	if err := svc.DeletePackage(context.Background(), pkg.ID, pkg.PartitionKey); err != nil {
		t.Fatalf("DeletePackage: %v", err)
	}
	if _, err := svc.GetPackage(context.Background(), pkg.ID, pkg.PartitionKey); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("Get after delete = %v, want ErrNotFound", err)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.deletedPrefixes) != 1 || store.deletedPrefixes[0] != pkg.ID {
		t.Fatalf("deleted prefixes = %v", store.deletedPrefixes)
	}
}

func TestReviseComponentLeavesOthersUntouched(t *testing.T) {
	fakes := allFakeGens()
	svc, repo := newContentService(t, fakes, &fakeBlobStore{})

	pkg, err := svc.GeneratePackage(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("GeneratePackage: %v", err)
	}
	before := map[types.ComponentType]string{}
	for _, ct := range types.AllComponents {
		before[ct] = string(pkg.Content[ct])
	}

	revSvc := NewRevisionService(asGenerators(fakes), repo, nil, nil, logger.NewNop())
	revised, err := revSvc.ReviseComponent(context.Background(), pkg.ID, pkg.PartitionKey, types.ComponentReading, "too dry, add examples", "educator-7")
	if err != nil {
		t.Fatalf("ReviseComponent: %v", err)
	}

	if revised.Status != types.StatusNeedsReview {
		t.Fatalf("status = %s, want needs_review", revised.Status)
	}
	if string(revised.Content[types.ComponentReading]) == before[types.ComponentReading] {
		t.Fatal("reading component unchanged after revision")
	}
	for _, ct := range []types.ComponentType{types.ComponentVisual, types.ComponentAudio, types.ComponentPractice} {
		if string(revised.Content[ct]) != before[ct] {
			t.Fatalf("%s component changed during reading revision", ct)
		}
	}
	if len(revised.RevisionHistory) != 1 {
		t.Fatalf("revision history = %d entries", len(revised.RevisionHistory))
	}
	entry := revised.RevisionHistory[0]
	if entry.Component != types.ComponentReading || entry.Feedback == "" || entry.Reviewer != "educator-7" {
		t.Fatalf("revision entry = %+v", entry)
	}
	if revised.StorageMetadata.Version != 2 {
		t.Fatalf("version = %d, want 2", revised.StorageMetadata.Version)
	}
	if fakes[0].revised != 1 {
		t.Fatalf("reading generator revised %d times", fakes[0].revised)
	}
}

func TestReviseComponentValidation(t *testing.T) {
	fakes := allFakeGens()
	svc, repo := newContentService(t, fakes, &fakeBlobStore{})
	pkg, err := svc.GeneratePackage(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("GeneratePackage: %v", err)
	}

	revSvc := NewRevisionService(asGenerators(fakes[:1]), repo, nil, nil, logger.NewNop())

	if _, err := revSvc.ReviseComponent(context.Background(), pkg.ID, pkg.PartitionKey, types.ComponentReading, "  ", ""); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("empty feedback err = %v, want ErrValidation", err)
	}
	if _, err := revSvc.ReviseComponent(context.Background(), pkg.ID, pkg.PartitionKey, types.ComponentVisual, "fix", ""); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("unregistered component err = %v, want ErrValidation", err)
	}
	if _, err := revSvc.Revise(context.Background(), pkg.ID, pkg.PartitionKey, nil, ""); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("empty revision list err = %v, want ErrValidation", err)
	}

	caps := revSvc.Capabilities()
	if len(caps) != 1 || caps[0] != types.ComponentReading {
		t.Fatalf("capabilities = %v", caps)
	}
}

func TestReviseAppliesPairsInOrderAndAccumulatesTime(t *testing.T) {
	fakes := allFakeGens()
	svc, repo := newContentService(t, fakes, &fakeBlobStore{})
	pkg, err := svc.GeneratePackage(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("GeneratePackage: %v", err)
	}
	baseline := pkg.GenerationMetadata.GenerationTimeMS

	revSvc := NewRevisionService(asGenerators(fakes), repo, nil, nil, logger.NewNop())
	clock := time.Unix(1700000000, 0)
	revSvc.(*revisionService).now = func() time.Time {
		clock = clock.Add(5 * time.Millisecond)
		return clock
	}

	revised, err := revSvc.Revise(context.Background(), pkg.ID, pkg.PartitionKey, []ComponentRevision{
		{Component: types.ComponentVisual, Feedback: "more on-canvas labels"},
		{Component: types.ComponentReading, Feedback: "simplify vocabulary"},
	}, "educator-2")
	if err != nil {
		t.Fatalf("Revise: %v", err)
	}

	if len(revised.RevisionHistory) != 2 {
		t.Fatalf("revision history = %d entries, want 2", len(revised.RevisionHistory))
	}
	if revised.RevisionHistory[0].Component != types.ComponentVisual ||
		revised.RevisionHistory[1].Component != types.ComponentReading {
		t.Fatalf("history order = %v, %v", revised.RevisionHistory[0].Component, revised.RevisionHistory[1].Component)
	}
	for i, entry := range revised.RevisionHistory {
		if entry.DurationMS != 5 {
			t.Fatalf("entry %d duration = %d ms, want 5", i, entry.DurationMS)
		}
	}
	if got := revised.GenerationMetadata.GenerationTimeMS; got != baseline+10 {
		t.Fatalf("generation time = %d ms, want baseline %d + 10", got, baseline)
	}
	// Both pairs commit through one replace.
	if revised.StorageMetadata.Version != 2 {
		t.Fatalf("version = %d, want 2", revised.StorageMetadata.Version)
	}
	if fakes[0].revised != 1 || fakes[1].revised != 1 {
		t.Fatalf("revise calls: reading %d, visual %d", fakes[0].revised, fakes[1].revised)
	}
}

func TestReviseFailureAbortsWholeRequest(t *testing.T) {
	fakes := allFakeGens()
	svc, repo := newContentService(t, fakes, &fakeBlobStore{})
	pkg, err := svc.GeneratePackage(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("GeneratePackage: %v", err)
	}

	fakes[3].err = errs.Generationf("practice model down")
	store := &fakeBlobStore{}
	revSvc := NewRevisionService(asGenerators(fakes), repo, store, nil, logger.NewNop())

	_, err = revSvc.Revise(context.Background(), pkg.ID, pkg.PartitionKey, []ComponentRevision{
		{Component: types.ComponentAudio, Feedback: "re-record with slower pacing"},
		{Component: types.ComponentPractice, Feedback: "harder problems"},
		{Component: types.ComponentVisual, Feedback: "bigger canvas"},
	}, "educator-2")
	if !errors.Is(err, errs.ErrGeneration) {
		t.Fatalf("err = %v, want ErrGeneration", err)
	}

	// The pair after the failure never runs.
	if fakes[1].revised != 0 {
		t.Fatalf("visual revised %d times after aborted request", fakes[1].revised)
	}

	stored, err := repo.Get(context.Background(), nil, pkg.ID, pkg.PartitionKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.StorageMetadata.Version != 1 || len(stored.RevisionHistory) != 0 {
		t.Fatalf("stored package mutated: version %d, %d history entries",
			stored.StorageMetadata.Version, len(stored.RevisionHistory))
	}
	if stored.Status != types.StatusGenerated {
		t.Fatalf("stored status = %s", stored.Status)
	}

	// The audio pair ran, so its derived-key blobs are cleaned up.
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.deletedPrefixes) != 1 || store.deletedPrefixes[0] != pkg.ID+"_rev" {
		t.Fatalf("deleted prefixes = %v, want [%s_rev]", store.deletedPrefixes, pkg.ID)
	}
}

func TestReviseUnserializablePayloadCleansUpAudio(t *testing.T) {
	fakes := allFakeGens()
	svc, repo := newContentService(t, fakes, &fakeBlobStore{})
	pkg, err := svc.GeneratePackage(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("GeneratePackage: %v", err)
	}

	fakes[1].revisePayload = make(chan int)
	store := &fakeBlobStore{}
	revSvc := NewRevisionService(asGenerators(fakes), repo, store, nil, logger.NewNop())

	_, err = revSvc.Revise(context.Background(), pkg.ID, pkg.PartitionKey, []ComponentRevision{
		{Component: types.ComponentAudio, Feedback: "re-record"},
		{Component: types.ComponentVisual, Feedback: "bigger canvas"},
	}, "")
	if err == nil {
		t.Fatal("expected error for unserializable payload")
	}

	stored, err := repo.Get(context.Background(), nil, pkg.ID, pkg.PartitionKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.StorageMetadata.Version != 1 {
		t.Fatalf("stored version = %d, want 1", stored.StorageMetadata.Version)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.deletedPrefixes) != 1 || store.deletedPrefixes[0] != pkg.ID+"_rev" {
		t.Fatalf("deleted prefixes = %v, want [%s_rev]", store.deletedPrefixes, pkg.ID)
	}
}

func TestReviewFlow(t *testing.T) {
	fakes := allFakeGens()
	svc, repo := newContentService(t, fakes, &fakeBlobStore{})
	pkg, err := svc.GeneratePackage(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("GeneratePackage: %v", err)
	}

	review := NewReviewService(repo, nil, logger.NewNop())

	pending, err := review.ListPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != pkg.ID {
		t.Fatalf("pending = %v", pending)
	}

	approved, err := review.Approve(context.Background(), pkg.ID, pkg.PartitionKey, "looks great", "educator-1")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != types.StatusApproved || len(approved.ReviewHistory) != 1 {
		t.Fatalf("approved = status %s, %d history entries", approved.Status, len(approved.ReviewHistory))
	}

	if _, err := review.Approve(context.Background(), pkg.ID, pkg.PartitionKey, "again", "educator-1"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("double approve err = %v, want ErrValidation", err)
	}

	if _, err := review.Reject(context.Background(), pkg.ID, pkg.PartitionKey, "", "educator-1"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("reject without note err = %v, want ErrValidation", err)
	}

	pending, err = review.ListPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending after approval = %d", len(pending))
	}
}
