package media

import "os"

// Verification 描述一次本地文件体检的结果。
type Verification struct {
	Exists     bool
	Accessible bool
}

// Verify 检查引用指向的媒体是否仍然可用。
//
// 只有本地文件才做真正的 I/O：远端 URL 与内联数据在渲染时才可能失败，
// 这里一律视为可用。任何 I/O 错误折叠为 {false, false}，绝不向外抛错。
func Verify(ref Ref) Verification {
	switch ref.Kind {
	case RefRemote, RefInline:
		return Verification{Exists: true, Accessible: true}
	case RefLocal:
		info, err := os.Stat(ref.Path)
		if err != nil {
			return Verification{}
		}
		if info.IsDir() {
			return Verification{}
		}
		return Verification{Exists: true, Accessible: info.Size() > 0}
	default:
		return Verification{}
	}
}

// VerifyRef 是 Verify 的字符串便捷入口。
func VerifyRef(value string) Verification {
	return Verify(ParseRef(value))
}
