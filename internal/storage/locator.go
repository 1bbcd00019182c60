package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

const (
	defaultSignTTL      = time.Hour
	defaultSignCacheTTL = 55 * time.Minute
	defaultCacheSize    = 512
)

// signingParams 出现在 query 中即视为限时签名 URL，可能已过期。
var signingParams = []string{
	"X-Amz-Signature",
	"Signature",
	"sign",
	"OSSAccessKeyId",
	"q-sign-algorithm",
}

type signedEntry struct {
	url       string
	expiresAt time.Time
}

// LocatorConfig 配置对象定位器。
type LocatorConfig struct {
	// PublicDomain 配置后 key 直接拼接为永久 URL，不再签名。
	PublicDomain string
	// SignTTL 为签名有效期，CacheTTL 为缓存时长，须留出安全余量。
	SignTTL  time.Duration
	CacheTTL time.Duration
	// CacheSize 为 LRU 容量。
	CacheSize int
}

// Locator 将不透明的对象 key 解析为可用的访问 URL。
//
// 缓存只是建议性的：条目绝不在截止时间之后被返回，
// 也从不作为对象是否存在的依据。并发写同一 key 是幂等替换。
type Locator struct {
	signer       URLSigner
	publicDomain string
	signTTL      time.Duration
	cacheTTL     time.Duration
	cache        *lru.Cache[string, signedEntry]

	now func() time.Time
}

// NewLocator 创建定位器；signer 可为 nil（仅 public domain 模式可用）。
func NewLocator(signer URLSigner, cfg LocatorConfig) (*Locator, error) {
	signTTL := cfg.SignTTL
	if signTTL <= 0 {
		signTTL = defaultSignTTL
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 || cacheTTL >= signTTL {
		cacheTTL = signTTL * 11 / 12
		if defaultSignCacheTTL < cacheTTL {
			cacheTTL = defaultSignCacheTTL
		}
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, signedEntry](size)
	if err != nil {
		return nil, fmt.Errorf("locator: create cache: %w", err)
	}

	return &Locator{
		signer:       signer,
		publicDomain: normalizePublicDomain(cfg.PublicDomain),
		signTTL:      signTTL,
		cacheTTL:     cacheTTL,
		cache:        cache,
		now:          time.Now,
	}, nil
}

// Resolve 把记录中存储的引用换成当前可用的 URL。
//
// 失败返回错误时表示「暂时无法解析」，调用方必须保留原记录等待下次重试，
// 绝不能据此删除数据。
func (l *Locator) Resolve(ctx context.Context, key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", fmt.Errorf("locator: empty key")
	}

	switch {
	case strings.HasPrefix(trimmed, "http://"), strings.HasPrefix(trimmed, "https://"):
		parsed, err := url.Parse(trimmed)
		if err != nil {
			// 解析不了的 URL 原样返回，交给渲染层处理
			return trimmed, nil
		}
		if !hasSigningParams(parsed.Query()) {
			return trimmed, nil
		}
		// 已签名的 URL 可能过期：取出底层对象 key 重新解析
		extracted := extractObjectKey(parsed.Path)
		if extracted == "" {
			return trimmed, nil
		}
		return l.resolveKey(ctx, extracted)
	case strings.HasPrefix(trimmed, "file://"), strings.HasPrefix(trimmed, "data:"), strings.HasPrefix(trimmed, "/"):
		// 本地文件与内联数据不需要网络解析
		return trimmed, nil
	default:
		return l.resolveKey(ctx, trimmed)
	}
}

func (l *Locator) resolveKey(ctx context.Context, key string) (string, error) {
	if l.publicDomain != "" {
		return l.publicDomain + "/" + strings.TrimLeft(key, "/"), nil
	}
	if l.signer == nil {
		return "", fmt.Errorf("locator: %w", ErrNotConfigured)
	}

	if entry, ok := l.cache.Get(key); ok {
		if l.now().Before(entry.expiresAt) {
			return entry.url, nil
		}
		l.cache.Remove(key)
	}

	signed, err := l.signer.SignURL(ctx, key, l.signTTL)
	if err != nil {
		logrus.WithError(err).WithField("object_key", key).Warn("failed to sign url")
		return "", fmt.Errorf("sign url for %q: %w", key, err)
	}

	l.cache.Add(key, signedEntry{
		url:       signed,
		expiresAt: l.now().Add(l.cacheTTL),
	})
	return signed, nil
}

func hasSigningParams(query url.Values) bool {
	for _, param := range signingParams {
		if query.Has(param) {
			return true
		}
	}
	return false
}

// extractObjectKey 从 URL path 中取出对象 key。
// path 里含 generated/ 段时从该段截起，兼容 path-style 的桶前缀。
func extractObjectKey(path string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(path), "/")
	if trimmed == "" {
		return ""
	}
	if idx := strings.Index(trimmed, "generated/"); idx >= 0 {
		return trimmed[idx:]
	}
	return trimmed
}

func normalizePublicDomain(domain string) string {
	trimmed := strings.TrimSpace(domain)
	if trimmed == "" {
		return ""
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "https://" + trimmed
	}
	return strings.TrimRight(trimmed, "/")
}
