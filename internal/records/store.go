package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"glamshot/internal/entity"
	"glamshot/internal/kvstore"

	"github.com/sirupsen/logrus"
)

const (
	analysesKeyPrefix    = "analyses"
	preferencesKeyPrefix = "preferences"

	defaultRecordCap = 200
)

// ErrRecordNotFound 表示要删除的记录不在本地集合中。
var ErrRecordNotFound = errors.New("record not found")

// Store 是按 owner 分区的本地生成记录缓存。
//
// 分区键形如 analyses[_<ownerId>]，owner 为空表示游客分区；
// 单个分区内的记录共享同一 owner，插入保持最新在前并受容量上限约束。
type Store struct {
	kv  kvstore.Store
	cap int
}

// NewStore 创建记录缓存。capacity <= 0 时使用默认上限。
func NewStore(kv kvstore.Store, capacity int) *Store {
	if capacity <= 0 {
		capacity = defaultRecordCap
	}
	return &Store{kv: kv, cap: capacity}
}

// Cap 返回分区容量上限。
func (s *Store) Cap() int {
	return s.cap
}

// Load 读取 owner 分区的全部记录。
//
// 读失败返回空集合而不是错误，避免阻塞 UI 读路径；
// 单条损坏或缺字段的记录被跳过，不影响其余条目。
func (s *Store) Load(owner string) []entity.GenerationRecord {
	raw, err := s.kv.Get(analysesKey(owner))
	if err != nil {
		logrus.WithError(err).WithField("owner_id", owner).Warn("failed to read record partition")
		return []entity.GenerationRecord{}
	}
	if len(raw) == 0 {
		return []entity.GenerationRecord{}
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		logrus.WithError(err).WithField("owner_id", owner).Warn("record partition is not a JSON array")
		return []entity.GenerationRecord{}
	}

	records := make([]entity.GenerationRecord, 0, len(elements))
	for idx, element := range elements {
		var record entity.GenerationRecord
		if err := json.Unmarshal(element, &record); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"owner_id": owner,
				"index":    idx,
			}).Warn("skipping corrupt record entry")
			continue
		}
		if !record.HasRequiredFields() {
			logrus.WithFields(logrus.Fields{
				"owner_id":  owner,
				"record_id": record.ID,
			}).Warn("skipping record with missing fields")
			continue
		}
		records = append(records, record)
	}
	return records
}

// Persist 以最新在前的顺序写回 owner 分区，超出容量的最旧记录被裁掉。
// 整个分区是一次原子写入，读者不会看到半合并状态。
func (s *Store) Persist(owner string, records []entity.GenerationRecord) error {
	ordered := make([]entity.GenerationRecord, len(records))
	copy(ordered, records)
	entity.SortRecordsNewestFirst(ordered)
	if len(ordered) > s.cap {
		ordered = ordered[:s.cap]
	}

	raw, err := json.Marshal(ordered)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	if err := s.kv.Set(analysesKey(owner), raw); err != nil {
		return fmt.Errorf("persist records: %w", err)
	}
	return nil
}

// Delete 从 owner 分区移除指定记录。
func (s *Store) Delete(owner, id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return ErrRecordNotFound
	}

	records := s.Load(owner)
	kept := make([]entity.GenerationRecord, 0, len(records))
	removed := false
	for _, record := range records {
		if record.ID == trimmed {
			removed = true
			continue
		}
		kept = append(kept, record)
	}
	if !removed {
		return ErrRecordNotFound
	}
	return s.Persist(owner, kept)
}

// MigrateGuestInto 将游客分区并入认证用户的分区。
//
// owner 分区里已有同 id 的记录不会被覆盖；迁移的记录盖上新的 OwnerID，
// 合并结果持久化成功后才删除游客分区。重复调用是幂等的。
func (s *Store) MigrateGuestInto(owner string) error {
	trimmed := strings.TrimSpace(owner)
	if trimmed == "" {
		return nil
	}

	guest := s.Load("")
	if len(guest) == 0 {
		return nil
	}

	existing := s.Load(trimmed)
	seen := make(map[string]struct{}, len(existing))
	for _, record := range existing {
		seen[record.ID] = struct{}{}
	}

	merged := existing
	migrated := 0
	for _, record := range guest {
		if _, ok := seen[record.ID]; ok {
			continue
		}
		record.OwnerID = trimmed
		merged = append(merged, record)
		migrated++
	}

	if err := s.Persist(trimmed, merged); err != nil {
		return fmt.Errorf("persist merged records: %w", err)
	}

	if err := s.migratePreferences(trimmed); err != nil {
		logrus.WithError(err).WithField("owner_id", trimmed).Warn("failed to migrate guest preferences")
	}

	if err := s.kv.RemoveMany([]string{analysesKey("")}); err != nil {
		return fmt.Errorf("remove guest partition: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"owner_id": trimmed,
		"migrated": migrated,
	}).Info("guest records migrated")
	return nil
}

// LoadPreferences 读取 owner 分区的偏好设置，读失败或不存在时返回空 map。
func (s *Store) LoadPreferences(owner string) map[string]interface{} {
	raw, err := s.kv.Get(preferencesKey(owner))
	if err != nil || len(raw) == 0 {
		return map[string]interface{}{}
	}
	var prefs map[string]interface{}
	if err := json.Unmarshal(raw, &prefs); err != nil {
		logrus.WithError(err).WithField("owner_id", owner).Warn("skipping corrupt preferences")
		return map[string]interface{}{}
	}
	return prefs
}

// SavePreferences 写回 owner 分区的偏好设置。
func (s *Store) SavePreferences(owner string, prefs map[string]interface{}) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := s.kv.Set(preferencesKey(owner), raw); err != nil {
		return fmt.Errorf("persist preferences: %w", err)
	}
	return nil
}

// migratePreferences 把游客偏好并入 owner 偏好（owner 已有的键优先），然后删除游客键。
func (s *Store) migratePreferences(owner string) error {
	guest := s.LoadPreferences("")
	if len(guest) == 0 {
		return s.kv.RemoveMany([]string{preferencesKey("")})
	}

	merged := s.LoadPreferences(owner)
	for key, value := range guest {
		if _, ok := merged[key]; ok {
			continue
		}
		merged[key] = value
	}
	if err := s.SavePreferences(owner, merged); err != nil {
		return err
	}
	return s.kv.RemoveMany([]string{preferencesKey("")})
}

func analysesKey(owner string) string {
	return partitionKey(analysesKeyPrefix, owner)
}

func preferencesKey(owner string) string {
	return partitionKey(preferencesKeyPrefix, owner)
}

func partitionKey(prefix, owner string) string {
	trimmed := strings.TrimSpace(owner)
	if trimmed == "" {
		return prefix
	}
	return prefix + "_" + trimmed
}
