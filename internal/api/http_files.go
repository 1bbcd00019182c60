package api

import (
	"fmt"
	"strings"
)

// publicURL 把相对对象 key 映射到公共基础路径；
// 完整 URL、data URL 和本地绝对路径原样返回。
func (h *HTTPHandler) publicURL(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") ||
		strings.HasPrefix(trimmed, "data:") || strings.HasPrefix(trimmed, "file://") ||
		strings.HasPrefix(trimmed, "/") {
		return trimmed
	}
	base := h.storagePublicBase
	if base == "" {
		base = "/files"
	}
	return fmt.Sprintf("%s/%s", strings.TrimRight(base, "/"), strings.TrimLeft(trimmed, "/"))
}
