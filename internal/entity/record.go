package entity

import (
	"sort"
	"strings"
	"time"
)

// GenerationRecord 表示一条「照片 + AI 生成结果」记录。
//
// 记录在生成或拍摄成功后由调用方创建；之后只有 Reconciler 会修改它
// （URL 修复、游客迁移），UI 层永远只读。
type GenerationRecord struct {
	ID              string    `json:"id"`
	PrimaryMediaRef string    `json:"primary_media_ref"`
	ResultMediaRef  string    `json:"result_media_ref,omitempty"`
	HasResult       bool      `json:"has_result"`
	CloudObjectKey  string    `json:"cloud_object_key,omitempty"`
	OwnerID         string    `json:"owner_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	Tags            []string  `json:"tags,omitempty"`
	Description     string    `json:"description,omitempty"`
}

// HasRequiredFields 检查反序列化后的记录是否完整，缺字段的记录在读取时被丢弃。
func (r GenerationRecord) HasRequiredFields() bool {
	if strings.TrimSpace(r.ID) == "" {
		return false
	}
	if r.CreatedAt.IsZero() {
		return false
	}
	return strings.TrimSpace(r.PrimaryMediaRef) != "" || strings.TrimSpace(r.CloudObjectKey) != ""
}

// Recoverable 判断记录是否还有任何可恢复的媒体来源。
// 既无云端对象 key 又无主媒体引用的记录是无效的，会在下一次读取时被清除。
func (r GenerationRecord) Recoverable() bool {
	return strings.TrimSpace(r.CloudObjectKey) != "" || strings.TrimSpace(r.PrimaryMediaRef) != ""
}

// SortRecordsNewestFirst 按创建时间降序稳定排序。
func SortRecordsNewestFirst(records []GenerationRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}

// RecordListResponse 记录列表响应
type RecordListResponse struct {
	Records []GenerationRecord `json:"records"`
	Meta    *Meta              `json:"meta,omitempty"`
}

// RecordDetailResponse 单条记录响应
type RecordDetailResponse struct {
	Record GenerationRecord `json:"record"`
}

// SyncResponse 云端同步结果响应
type SyncResponse struct {
	Inserted int `json:"inserted"`
}

// CreditBalanceResponse 积分余额响应
type CreditBalanceResponse struct {
	Credits int `json:"credits"`
}

// CreateRecordRequest 创建记录请求体
type CreateRecordRequest struct {
	Media       string   `json:"media"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	HasResult   bool     `json:"has_result"`
}

// CreditAmountRequest 积分变更请求体
type CreditAmountRequest struct {
	Amount int `json:"amount"`
}
