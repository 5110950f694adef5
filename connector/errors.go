package connector

import (
	"fmt"

	"github.com/ceyewan/redisclient/xerrors"
)

// Sentinel Errors - 连接器专用的哨兵错误
var (
	ErrNotConnected  = xerrors.New("connector: not connected")
	ErrAlreadyClosed = xerrors.New("connector: already closed")
	ErrConnection    = xerrors.New("connector: connection failed")
	ErrConfig        = xerrors.New("connector: invalid config")
	ErrHealthCheck   = xerrors.New("connector: health check failed")
)

// wrapErr 同时保留哨兵错误与底层原因，两者都可被 errors.Is 识别
func wrapErr(name string, sentinel, cause error) error {
	return fmt.Errorf("redis connector[%s]: %w: %w", name, sentinel, cause)
}
