package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"glamshot/internal/entity"
	"glamshot/internal/kvstore"
	"glamshot/internal/records"
	"glamshot/internal/storage"

	"gorm.io/gorm"
)

type fakeResolver struct {
	calls int
	err   error
}

func (f *fakeResolver) Resolve(ctx context.Context, key string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "https://signed.example/" + strings.TrimLeft(key, "/") + "?X-Amz-Signature=xyz", nil
}

type fakeRepo struct {
	users       map[string]*entity.DbUser
	images      []entity.DbGeneratedImage
	listErr     error
	getUserErr  error
	updateErr   error
	updateCalls int
	deletedIDs  []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[string]*entity.DbUser)}
}

func (f *fakeRepo) CreateGeneratedImage(ctx context.Context, record *entity.DbGeneratedImage) error {
	f.images = append(f.images, *record)
	return nil
}

func (f *fakeRepo) ListGeneratedImages(ctx context.Context, ownerID string, limit int) ([]entity.DbGeneratedImage, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]entity.DbGeneratedImage, 0)
	for _, record := range f.images {
		if record.OwnerID == ownerID {
			out = append(out, record)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) DeleteGeneratedImage(ctx context.Context, id, ownerID string) error {
	f.deletedIDs = append(f.deletedIDs, id)
	return nil
}

func (f *fakeRepo) CreateUser(ctx context.Context, user *entity.DbUser) error {
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeRepo) GetUserByID(ctx context.Context, id string) (*entity.DbUser, error) {
	if f.getUserErr != nil {
		return nil, f.getUserErr
	}
	user, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *user
	return &copied, nil
}

func (f *fakeRepo) UpdateUserCredits(ctx context.Context, id string, credits int) error {
	f.updateCalls++
	if f.updateErr != nil {
		return f.updateErr
	}
	user, ok := f.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	user.Credits = credits
	return nil
}

func (f *fakeRepo) DeleteUser(ctx context.Context, id string) error {
	delete(f.users, id)
	return nil
}

type fakeStorage struct {
	saved   [][]byte
	saveErr error
}

func (f *fakeStorage) Save(ctx context.Context, data []byte, opts storage.SaveOptions) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.saved = append(f.saved, data)
	owner := opts.OwnerID
	if owner == "" {
		owner = "anonymous"
	}
	return fmt.Sprintf("generated/%s/%d.%s", owner, len(f.saved), opts.Extension), nil
}

func (f *fakeStorage) SignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

func newTestService(t *testing.T, resolver URLResolver, repo *fakeRepo) (*RecordService, *records.Store) {
	t.Helper()
	store := records.NewStore(kvstore.NewMemoryStore(), 10)
	if repo == nil {
		repo = newFakeRepo()
	}
	svc := NewRecordService(store, resolver, repo, &fakeStorage{}, 50)
	return svc, store
}

func TestGetHealedRecordsKeepsHealthyRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	if err := os.WriteFile(path, []byte("bytes"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	resolver := &fakeResolver{}
	svc, store := newTestService(t, resolver, nil)
	record := entity.GenerationRecord{
		ID:              "a1",
		PrimaryMediaRef: path,
		CloudObjectKey:  "generated/u1/a1.jpg",
		OwnerID:         "u1",
		CreatedAt:       time.Now().UTC(),
	}
	if err := store.Persist("u1", []entity.GenerationRecord{record}); err != nil {
		t.Fatalf("unexpected persist error: %v", err)
	}

	got := svc.GetHealedRecords(context.Background(), "u1")
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].PrimaryMediaRef != path {
		t.Errorf("expected untouched ref, got %q", got[0].PrimaryMediaRef)
	}
	if resolver.calls != 0 {
		t.Errorf("expected no resolve calls, got %d", resolver.calls)
	}
}

func TestGetHealedRecordsHealsMissingFileFromCloud(t *testing.T) {
	resolver := &fakeResolver{}
	svc, store := newTestService(t, resolver, nil)
	record := entity.GenerationRecord{
		ID:              "a1",
		PrimaryMediaRef: "file:///missing.jpg",
		CloudObjectKey:  "generated/u1/123.jpg",
		OwnerID:         "u1",
		CreatedAt:       time.Now().UTC(),
	}
	if err := store.Persist("u1", []entity.GenerationRecord{record}); err != nil {
		t.Fatalf("unexpected persist error: %v", err)
	}

	// 连续多次读取都不允许清除
	for i := 0; i < 3; i++ {
		got := svc.GetHealedRecords(context.Background(), "u1")
		if len(got) != 1 {
			t.Fatalf("read %d: expected 1 record, got %d", i, len(got))
		}
		if got[0].ID != "a1" {
			t.Fatalf("read %d: expected id unchanged, got %q", i, got[0].ID)
		}
		if !strings.Contains(got[0].PrimaryMediaRef, "generated/u1/123.jpg") ||
			!strings.Contains(got[0].PrimaryMediaRef, "Signature") {
			t.Fatalf("read %d: expected resolved signed url, got %q", i, got[0].PrimaryMediaRef)
		}
	}
	if persisted := store.Load("u1"); len(persisted) != 1 {
		t.Fatalf("expected record to stay in storage, got %d", len(persisted))
	}
}

func TestGetHealedRecordsKeepsRecordOnTransientFailure(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("network blip")}
	svc, store := newTestService(t, resolver, nil)
	record := entity.GenerationRecord{
		ID:              "a1",
		PrimaryMediaRef: "file:///missing.jpg",
		CloudObjectKey:  "generated/u1/123.jpg",
		OwnerID:         "u1",
		CreatedAt:       time.Now().UTC(),
	}
	if err := store.Persist("u1", []entity.GenerationRecord{record}); err != nil {
		t.Fatalf("unexpected persist error: %v", err)
	}

	got := svc.GetHealedRecords(context.Background(), "u1")
	if len(got) != 1 {
		t.Fatalf("expected record kept on transient failure, got %d records", len(got))
	}
	if got[0].PrimaryMediaRef != "file:///missing.jpg" {
		t.Errorf("expected ref unchanged for this pass, got %q", got[0].PrimaryMediaRef)
	}
}

func TestGetHealedRecordsPurgesUnrecoverable(t *testing.T) {
	resolver := &fakeResolver{}
	svc, store := newTestService(t, resolver, nil)
	base := time.Now().UTC()
	dead := entity.GenerationRecord{
		ID:              "dead",
		PrimaryMediaRef: "file:///missing.jpg",
		OwnerID:         "u1",
		CreatedAt:       base,
	}
	alive := entity.GenerationRecord{
		ID:              "alive",
		PrimaryMediaRef: "https://cdn.example.com/a.jpg",
		OwnerID:         "u1",
		CreatedAt:       base.Add(time.Hour),
	}
	if err := store.Persist("u1", []entity.GenerationRecord{dead, alive}); err != nil {
		t.Fatalf("unexpected persist error: %v", err)
	}

	done := make(chan error, 1)
	svc.SetPersistHook(func(owner string, err error) { done <- err })

	got := svc.GetHealedRecords(context.Background(), "u1")
	if len(got) != 1 || got[0].ID != "alive" {
		t.Fatalf("expected only alive record returned, got %v", got)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected persist error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for background persist")
	}

	persisted := store.Load("u1")
	if len(persisted) != 1 || persisted[0].ID != "alive" {
		t.Fatalf("expected purged record gone from storage, got %v", persisted)
	}
}

func TestGetHealedRecordsNeverPersistsSignedURL(t *testing.T) {
	resolver := &fakeResolver{}
	svc, store := newTestService(t, resolver, nil)
	base := time.Now().UTC()
	healable := entity.GenerationRecord{
		ID:              "heal",
		PrimaryMediaRef: "file:///missing.jpg",
		CloudObjectKey:  "generated/u1/123.jpg",
		OwnerID:         "u1",
		CreatedAt:       base.Add(time.Hour),
	}
	dead := entity.GenerationRecord{
		ID:              "dead",
		PrimaryMediaRef: "file:///also-missing.jpg",
		OwnerID:         "u1",
		CreatedAt:       base,
	}
	if err := store.Persist("u1", []entity.GenerationRecord{healable, dead}); err != nil {
		t.Fatalf("unexpected persist error: %v", err)
	}

	done := make(chan error, 1)
	svc.SetPersistHook(func(owner string, err error) { done <- err })

	got := svc.GetHealedRecords(context.Background(), "u1")
	if len(got) != 1 || got[0].ID != "heal" {
		t.Fatalf("expected only healable record returned, got %v", got)
	}
	if !strings.Contains(got[0].PrimaryMediaRef, "Signature") {
		t.Fatalf("expected resolved signed url in returned record, got %q", got[0].PrimaryMediaRef)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected persist error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for background persist")
	}

	// 落盘的是原始引用：下次读取必须重新解析
	persisted := store.Load("u1")
	if len(persisted) != 1 || persisted[0].ID != "heal" {
		t.Fatalf("expected purged record gone and healable kept, got %v", persisted)
	}
	if persisted[0].PrimaryMediaRef != "file:///missing.jpg" {
		t.Fatalf("expected original ref persisted, got %q", persisted[0].PrimaryMediaRef)
	}

	calls := resolver.calls
	again := svc.GetHealedRecords(context.Background(), "u1")
	if len(again) != 1 || !strings.Contains(again[0].PrimaryMediaRef, "Signature") {
		t.Fatalf("expected re-resolved record on next read, got %v", again)
	}
	if resolver.calls != calls+1 {
		t.Fatalf("expected a fresh resolve on next read, got %d calls", resolver.calls)
	}
}

func TestGetHealedRecordsRunsMigrationFirst(t *testing.T) {
	resolver := &fakeResolver{}
	svc, store := newTestService(t, resolver, nil)
	guest := entity.GenerationRecord{
		ID:              "g1",
		PrimaryMediaRef: "https://cdn.example.com/g1.jpg",
		CreatedAt:       time.Now().UTC(),
	}
	if err := store.Persist("", []entity.GenerationRecord{guest}); err != nil {
		t.Fatalf("unexpected persist error: %v", err)
	}

	got := svc.GetHealedRecords(context.Background(), "u1")
	if len(got) != 1 || got[0].ID != "g1" {
		t.Fatalf("expected migrated guest record, got %v", got)
	}
	if got[0].OwnerID != "u1" {
		t.Errorf("expected owner stamp, got %q", got[0].OwnerID)
	}
	if leftover := store.Load(""); len(leftover) != 0 {
		t.Fatalf("expected guest partition emptied, got %d records", len(leftover))
	}
}

func TestSyncFromCloud(t *testing.T) {
	repo := newFakeRepo()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo.images = []entity.DbGeneratedImage{
		{ID: "c1", OwnerID: "u1", ObjectKey: "generated/u1/known.jpg", CreatedAt: base},
		{ID: "c2", OwnerID: "u1", ObjectKey: "generated/u1/new.jpg", CreatedAt: base.Add(time.Hour), Prompt: "sunset"},
	}

	resolver := &fakeResolver{}
	svc, store := newTestService(t, resolver, repo)

	// 本地已有一条：主引用以对象 key 结尾（存了完整 URL 的情况）
	known := entity.GenerationRecord{
		ID:              "local-1",
		PrimaryMediaRef: "https://cdn.example.com/generated/u1/known.jpg",
		OwnerID:         "u1",
		CreatedAt:       base,
	}
	if err := store.Persist("u1", []entity.GenerationRecord{known}); err != nil {
		t.Fatalf("unexpected persist error: %v", err)
	}

	inserted, err := svc.SyncFromCloud(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected sync error: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("expected 1 inserted record, got %d", inserted)
	}

	merged := store.Load("u1")
	if len(merged) != 2 {
		t.Fatalf("expected 2 records after sync, got %d", len(merged))
	}
	if merged[0].ID != "c2" {
		t.Errorf("expected newest first after sync, got %q", merged[0].ID)
	}
	synthesized := merged[0]
	if synthesized.CloudObjectKey != "generated/u1/new.jpg" {
		t.Errorf("expected cloud key stamped, got %q", synthesized.CloudObjectKey)
	}
	if synthesized.PrimaryMediaRef != "generated/u1/new.jpg" {
		t.Errorf("expected key placeholder as primary ref, got %q", synthesized.PrimaryMediaRef)
	}
	if !synthesized.HasResult {
		t.Error("expected synthesized record to carry has_result")
	}
	if synthesized.OwnerID != "u1" {
		t.Errorf("expected owner stamp, got %q", synthesized.OwnerID)
	}

	// 相同云端数据再跑一次不会重复插入
	inserted, err = svc.SyncFromCloud(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected sync error: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("expected 0 inserted on repeat sync, got %d", inserted)
	}
	if again := store.Load("u1"); len(again) != 2 {
		t.Fatalf("expected stable collection, got %d records", len(again))
	}
}

func TestSyncFromCloudLedgerFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.listErr = errors.New("cloud timeout")

	resolver := &fakeResolver{}
	svc, store := newTestService(t, resolver, repo)
	local := entity.GenerationRecord{
		ID:              "a1",
		PrimaryMediaRef: "https://cdn.example.com/a.jpg",
		OwnerID:         "u1",
		CreatedAt:       time.Now().UTC(),
	}
	if err := store.Persist("u1", []entity.GenerationRecord{local}); err != nil {
		t.Fatalf("unexpected persist error: %v", err)
	}

	if _, err := svc.SyncFromCloud(context.Background(), "u1"); err == nil {
		t.Fatal("expected error from ledger failure")
	}
	// 本地数据保持有效
	if got := store.Load("u1"); len(got) != 1 {
		t.Fatalf("expected local data untouched, got %d records", len(got))
	}
}

func TestCreateRecord(t *testing.T) {
	repo := newFakeRepo()
	svc, store := newTestService(t, &fakeResolver{}, repo)

	payload := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("photo-bytes"))
	record, err := svc.CreateRecord(context.Background(), "u1", payload, CreateRecordOptions{
		Description: "studio portrait",
		HasResult:   true,
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if record.ID == "" {
		t.Fatal("expected generated record id")
	}
	if record.CloudObjectKey == "" {
		t.Fatal("expected object key stamped on record")
	}
	if record.PrimaryMediaRef != record.CloudObjectKey {
		t.Errorf("expected key placeholder for inline payload, got %q", record.PrimaryMediaRef)
	}

	if got := store.Load("u1"); len(got) != 1 {
		t.Fatalf("expected record persisted locally, got %d", len(got))
	}
	if len(repo.images) != 1 || repo.images[0].ID != record.ID {
		t.Fatalf("expected ledger entry registered, got %v", repo.images)
	}
	if repo.images[0].Prompt != "studio portrait" {
		t.Errorf("expected prompt carried to ledger, got %q", repo.images[0].Prompt)
	}
}

func TestDeleteRecord(t *testing.T) {
	repo := newFakeRepo()
	svc, store := newTestService(t, &fakeResolver{}, repo)
	record := entity.GenerationRecord{
		ID:              "a1",
		PrimaryMediaRef: "https://cdn.example.com/a.jpg",
		OwnerID:         "u1",
		CreatedAt:       time.Now().UTC(),
	}
	if err := store.Persist("u1", []entity.GenerationRecord{record}); err != nil {
		t.Fatalf("unexpected persist error: %v", err)
	}

	if err := svc.DeleteRecord(context.Background(), "u1", "a1"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if got := store.Load("u1"); len(got) != 0 {
		t.Fatalf("expected empty collection, got %d records", len(got))
	}
	if len(repo.deletedIDs) != 1 || repo.deletedIDs[0] != "a1" {
		t.Fatalf("expected ledger delete attempted, got %v", repo.deletedIDs)
	}

	if err := svc.DeleteRecord(context.Background(), "u1", "a1"); !errors.Is(err, records.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}
