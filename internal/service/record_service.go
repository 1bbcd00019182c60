package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"glamshot/internal/entity"
	"glamshot/internal/media"
	"glamshot/internal/model"
	"glamshot/internal/records"
	"glamshot/internal/storage"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultSyncLimit = 50

// URLResolver 将对象 key 解析为当前可访问的 URL。
type URLResolver interface {
	Resolve(ctx context.Context, key string) (string, error)
}

// RecordService 协调本地缓存、云端账本与对象存储，对外提供一致的记录视图。
//
// 读路径永远尽力而为：本地文件丢失时回落到云端解析，解析失败保留原记录，
// 只有既无本地文件又无云端 key 的记录才会被清除。
type RecordService struct {
	store     *records.Store
	locator   URLResolver
	repo      model.Repository
	storage   storage.Storage
	syncLimit int

	// persistHook 在读路径的异步回写完成后被调用（由测试或监控设置）
	persistHook func(owner string, err error)
}

// NewRecordService 创建记录服务实例
func NewRecordService(store *records.Store, locator URLResolver, repo model.Repository, objectStore storage.Storage, syncLimit int) *RecordService {
	if syncLimit <= 0 {
		syncLimit = defaultSyncLimit
	}
	return &RecordService{
		store:     store,
		locator:   locator,
		repo:      repo,
		storage:   objectStore,
		syncLimit: syncLimit,
	}
}

// SetPersistHook 设置异步回写完成后的回调
func (s *RecordService) SetPersistHook(fn func(owner string, err error)) {
	s.persistHook = fn
}

// GetHealedRecords 返回 owner 的记录列表，边读边修复。
//
// 认证用户的游客数据迁移先于任何读取执行。记录按存储顺序处理，
// 返回顺序与存储顺序一致（最新在前）。清除动作触发的回写是
// fire-and-forget，调用方立即拿到内存中的修复结果。
func (s *RecordService) GetHealedRecords(ctx context.Context, owner string) []entity.GenerationRecord {
	if strings.TrimSpace(owner) != "" {
		if err := s.store.MigrateGuestInto(owner); err != nil {
			logrus.WithError(err).WithField("owner_id", owner).Warn("guest migration failed")
		}
	}

	loaded := s.store.Load(owner)
	healed := make([]entity.GenerationRecord, 0, len(loaded))
	// 回写集合保留原始引用：签名 URL 有时效，永远不落盘
	kept := make([]entity.GenerationRecord, 0, len(loaded))
	changed := false

	for _, record := range loaded {
		verification := media.VerifyRef(record.PrimaryMediaRef)
		if verification.Exists {
			healed = append(healed, record)
			kept = append(kept, record)
			continue
		}

		if strings.TrimSpace(record.CloudObjectKey) != "" {
			kept = append(kept, record)
			resolved, err := s.resolveObjectKey(ctx, record.CloudObjectKey)
			if err != nil || resolved == "" {
				// 瞬时失败：保留原记录，下次读取重试
				healed = append(healed, record)
				continue
			}
			record.PrimaryMediaRef = resolved
			healed = append(healed, record)
			continue
		}

		// 既无本地文件又无云端 key，永远无法恢复
		logrus.WithFields(logrus.Fields{
			"record_id": record.ID,
			"owner_id":  owner,
		}).Info("purging unrecoverable record")
		changed = true
	}

	if changed {
		s.persistAsync(owner, kept)
	}

	return healed
}

// SyncFromCloud 将云端账本里本地缺失的记录拉入缓存，返回新增条数。
//
// 这是尽力而为的后台刷新：调用方可以忽略错误，本地数据始终有效。
func (s *RecordService) SyncFromCloud(ctx context.Context, owner string) (int, error) {
	trimmed := strings.TrimSpace(owner)
	if trimmed == "" {
		return 0, fmt.Errorf("owner id is empty")
	}
	if s.repo == nil {
		return 0, fmt.Errorf("cloud ledger not configured")
	}

	entries, err := s.repo.ListGeneratedImages(ctx, trimmed, s.syncLimit)
	if err != nil {
		return 0, fmt.Errorf("list ledger entries: %w", err)
	}

	// 只比对身份，不做文件体检
	local := s.store.Load(trimmed)

	synthesized := make([]entity.GenerationRecord, 0)
	for _, entry := range entries {
		if existsLocally(local, entry.ObjectKey) {
			continue
		}
		synthesized = append(synthesized, entity.GenerationRecord{
			ID:              entry.ID,
			PrimaryMediaRef: entry.ObjectKey,
			HasResult:       true,
			CloudObjectKey:  entry.ObjectKey,
			OwnerID:         trimmed,
			CreatedAt:       entry.CreatedAt,
			Description:     entry.Prompt,
		})
	}

	if len(synthesized) == 0 {
		return 0, nil
	}

	merged := append(local, synthesized...)
	if err := s.store.Persist(trimmed, merged); err != nil {
		return 0, fmt.Errorf("persist merged records: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"owner_id": trimmed,
		"inserted": len(synthesized),
	}).Info("synced records from cloud ledger")
	return len(synthesized), nil
}

// CreateRecordOptions 控制新记录的元数据。
type CreateRecordOptions struct {
	Description string
	Tags        []string
	HasResult   bool
}

// CreateRecord 在生成或拍摄成功后落一条新记录：
// 媒体内容上传到对象存储，记录写入本地缓存并尽力登记到云端账本。
func (s *RecordService) CreateRecord(ctx context.Context, owner, payload string, opts CreateRecordOptions) (*entity.GenerationRecord, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("object store not configured")
	}

	data, ext, err := s.resolveMediaPayload(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("resolve media payload: %w", err)
	}

	key, err := s.storage.Save(ctx, data, storage.SaveOptions{
		OwnerID:   owner,
		Extension: ext,
	})
	if err != nil {
		return nil, fmt.Errorf("save media: %w", err)
	}

	now := time.Now().UTC()
	record := entity.GenerationRecord{
		ID:              uuid.NewString(),
		PrimaryMediaRef: primaryRefFor(payload, key),
		HasResult:       opts.HasResult,
		CloudObjectKey:  key,
		OwnerID:         strings.TrimSpace(owner),
		CreatedAt:       now,
		Tags:            opts.Tags,
		Description:     opts.Description,
	}

	local := s.store.Load(owner)
	if err := s.store.Persist(owner, append(local, record)); err != nil {
		return nil, fmt.Errorf("persist record: %w", err)
	}

	if s.repo != nil && record.OwnerID != "" {
		ledgerEntry := entity.DbGeneratedImage{
			ID:        record.ID,
			CreatedAt: now,
			OwnerID:   record.OwnerID,
			ObjectKey: key,
			Prompt:    opts.Description,
		}
		if err := s.repo.CreateGeneratedImage(ctx, &ledgerEntry); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"record_id": record.ID,
				"owner_id":  record.OwnerID,
			}).Warn("failed to register record in cloud ledger")
		}
	}

	return &record, nil
}

// DeleteRecord 删除本地记录并尽力清理云端账本；本地失败向调用方报错。
func (s *RecordService) DeleteRecord(ctx context.Context, owner, id string) error {
	if err := s.store.Delete(owner, id); err != nil {
		return err
	}

	if s.repo != nil && strings.TrimSpace(owner) != "" {
		if err := s.repo.DeleteGeneratedImage(ctx, id, owner); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.WithError(err).WithFields(logrus.Fields{
				"record_id": id,
				"owner_id":  owner,
			}).Warn("failed to delete ledger entry")
		}
	}
	return nil
}

// resolveObjectKey 通过定位器换取可用 URL，定位器缺失视为瞬时失败。
func (s *RecordService) resolveObjectKey(ctx context.Context, key string) (string, error) {
	if s.locator == nil {
		return "", fmt.Errorf("locator not configured")
	}
	return s.locator.Resolve(ctx, key)
}

// persistAsync 回写清理后的集合；读路径不等待写完成。
func (s *RecordService) persistAsync(owner string, cleaned []entity.GenerationRecord) {
	snapshot := make([]entity.GenerationRecord, len(cleaned))
	copy(snapshot, cleaned)

	go func() {
		err := s.store.Persist(owner, snapshot)
		if err != nil {
			logrus.WithError(err).WithField("owner_id", owner).Warn("failed to persist cleaned records")
		}
		if s.persistHook != nil {
			s.persistHook(owner, err)
		}
	}()
}

// resolveMediaPayload 解析媒体数据（URL、本地文件或 base64）
func (s *RecordService) resolveMediaPayload(ctx context.Context, payload string) ([]byte, string, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return nil, "", fmt.Errorf("empty payload")
	}

	ref := media.ParseRef(trimmed)
	switch ref.Kind {
	case media.RefRemote:
		reqCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, ref.URL, nil)
		if err != nil {
			return nil, "", fmt.Errorf("create request: %w", err)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("download image: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, "", fmt.Errorf("download image http %d", resp.StatusCode)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, "", fmt.Errorf("read image body: %w", err)
		}

		ext := media.ExtensionFromMime(resp.Header.Get("Content-Type"))
		if ext == "" {
			ext = media.ExtensionFromMime(http.DetectContentType(data))
		}
		if ext == "" {
			ext = "bin"
		}
		return data, ext, nil

	case media.RefInline:
		return media.DecodePayload(trimmed)

	case media.RefLocal:
		data, err := os.ReadFile(ref.Path)
		if err != nil {
			return nil, "", fmt.Errorf("read local file: %w", err)
		}
		ext := media.ExtensionFromMime(http.DetectContentType(data))
		if ext == "" {
			ext = "bin"
		}
		return data, ext, nil

	default:
		return nil, "", fmt.Errorf("unsupported media payload")
	}
}

// primaryRefFor 保持本地文件引用不变，其余形态用对象 key 占位，读路径再解析。
func primaryRefFor(payload, key string) string {
	ref := media.ParseRef(strings.TrimSpace(payload))
	if ref.Kind == media.RefLocal {
		return ref.String()
	}
	return key
}

// existsLocally 按对象 key 相等或主引用后缀匹配判断云端条目是否已在本地。
func existsLocally(local []entity.GenerationRecord, objectKey string) bool {
	trimmed := strings.TrimSpace(objectKey)
	if trimmed == "" {
		return true
	}
	for _, record := range local {
		if record.CloudObjectKey == trimmed {
			return true
		}
		if record.PrimaryMediaRef != "" && strings.HasSuffix(record.PrimaryMediaRef, trimmed) {
			return true
		}
	}
	return false
}
