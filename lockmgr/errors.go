package lockmgr

import "github.com/ceyewan/lockmgr/xerrors"

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("lockmgr: config is nil")

	// ErrDuplicateLock 节点已持有或正在等待同一资源
	ErrDuplicateLock = xerrors.Wrap(xerrors.ErrConflict, "lockmgr: duplicate lock")

	// ErrLockNotFound 锁不存在，可能已被释放或被死锁检测器回收
	ErrLockNotFound = xerrors.Wrap(xerrors.ErrNotFound, "lockmgr: lock not found")

	// ErrInvalidID 节点或资源 ID 为空
	ErrInvalidID = xerrors.Wrap(xerrors.ErrInvalidInput, "lockmgr: node and resource id must not be empty")

	// ErrInvalidInterval 检测间隔必须为正数
	ErrInvalidInterval = xerrors.Wrap(xerrors.ErrInvalidInput, "lockmgr: detect interval must be positive")

	// ErrClosed 管理器已关闭
	ErrClosed = xerrors.Wrap(xerrors.ErrUnavailable, "lockmgr: manager is closed")
)
