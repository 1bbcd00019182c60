package media

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// RefKind 表示媒体引用的几种形态。
type RefKind string

const (
	// RefLocal 指向设备本地文件（file:// 或裸路径）。
	RefLocal RefKind = "local"
	// RefRemote 指向远端 HTTP(S) URL。
	RefRemote RefKind = "remote"
	// RefInline 为内联 data URI 数据。
	RefInline RefKind = "inline"
)

// Ref 是媒体引用的带标签变体，避免各组件各自做前缀嗅探。
//
// 持久化时仍写回最初的字符串形态（String），解析只在内存里发生。
type Ref struct {
	Kind RefKind

	// Path 本地文件路径，仅 RefLocal 有效。
	Path string
	// URL 绝对地址，仅 RefRemote 有效。
	URL string
	// MIME 与 Data 仅 RefInline 有效；Data 为已解码的字节。
	MIME string
	Data []byte

	raw string
}

// ParseRef 将字符串形态的引用解析为带标签变体。
// 空字符串返回零值 Ref（IsZero() == true）。
func ParseRef(value string) Ref {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Ref{}
	}

	switch {
	case strings.HasPrefix(trimmed, "http://"), strings.HasPrefix(trimmed, "https://"):
		return Ref{Kind: RefRemote, URL: trimmed, raw: trimmed}
	case strings.HasPrefix(trimmed, "data:"):
		mime, payload := SplitDataURL(trimmed)
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
		if err != nil {
			data = nil
		}
		return Ref{Kind: RefInline, MIME: mime, Data: data, raw: trimmed}
	case strings.HasPrefix(trimmed, "file://"):
		return Ref{Kind: RefLocal, Path: strings.TrimPrefix(trimmed, "file://"), raw: trimmed}
	default:
		return Ref{Kind: RefLocal, Path: trimmed, raw: trimmed}
	}
}

// String 返回引用最初的字符串形态。
func (r Ref) String() string {
	return r.raw
}

// IsZero 判断引用是否为空。
func (r Ref) IsZero() bool {
	return r.raw == ""
}

// SplitDataURL splits a data URL into mime type and base64 payload. Values
// without a data: prefix are treated as bare jpeg base64.
func SplitDataURL(value string) (string, string) {
	if !strings.HasPrefix(value, "data:") {
		return "image/jpeg", value
	}

	value = strings.TrimPrefix(value, "data:")
	parts := strings.SplitN(value, ";base64,", 2)
	if len(parts) != 2 {
		return "image/jpeg", ""
	}
	return parts[0], parts[1]
}

// EnsureDataURL wraps a bare base64 payload into a jpeg data URL.
func EnsureDataURL(value string) string {
	if strings.HasPrefix(value, "data:") {
		return value
	}
	return "data:image/jpeg;base64," + value
}

// DecodePayload decodes an inline base64 or data URL payload and returns the
// raw bytes together with a guessed file extension.
func DecodePayload(payload string) ([]byte, string, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return nil, "", fmt.Errorf("empty media payload")
	}

	mimeType, base64Payload := SplitDataURL(trimmed)
	base64Payload = strings.TrimSpace(base64Payload)
	if base64Payload == "" {
		return nil, "", fmt.Errorf("empty base64 payload")
	}

	data, err := base64.StdEncoding.DecodeString(base64Payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode base64: %w", err)
	}

	ext := ExtensionFromMime(mimeType)
	if ext == "" {
		ext = ExtensionFromMime(http.DetectContentType(data))
	}
	if ext == "" {
		ext = "bin"
	}

	return data, ext, nil
}

// ExtensionFromMime maps a mime type onto a preferred file extension.
func ExtensionFromMime(mimeType string) string {
	normalized := strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(normalized, ";"); idx >= 0 {
		normalized = normalized[:idx]
	}
	switch normalized {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "image/heic":
		return "heic"
	case "video/mp4":
		return "mp4"
	default:
		return ""
	}
}
