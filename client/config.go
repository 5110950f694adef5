package client

import (
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/ceyewan/redisclient/xerrors"
)

// ErrInvalidConfig 配置无法用于打开连接
var ErrInvalidConfig = xerrors.New("client: invalid config")

// Config 连接配置的使用阶段，由 Builder.Build 生成，只读且可并发访问。
type Config struct {
	values
}

// Validate 在打开连接时校验配置，返回包装了 ErrInvalidConfig 的错误。
//
// 检查项：地址已设置且 scheme 为 redis/rediss，超时为正数，数据库编号非负，
// socket 变体与 TLS 实现为已知值。
func (c *Config) Validate() error {
	var errs []error
	if c.address == nil {
		errs = append(errs, xerrors.Wrap(ErrInvalidConfig, "address is required"))
	} else {
		if c.address.Hostname() == "" {
			errs = append(errs, xerrors.Wrap(ErrInvalidConfig, "address host is empty"))
		}
		if s := strings.ToLower(c.address.Scheme); s != DefaultScheme && s != TLSScheme {
			errs = append(errs, xerrors.Wrapf(ErrInvalidConfig, "unsupported scheme %q", c.address.Scheme))
		}
	}
	if c.connectTimeout <= 0 {
		errs = append(errs, xerrors.Wrapf(ErrInvalidConfig, "connect timeout must be positive, got %s", c.connectTimeout))
	}
	if c.commandTimeout <= 0 {
		errs = append(errs, xerrors.Wrapf(ErrInvalidConfig, "command timeout must be positive, got %s", c.commandTimeout))
	}
	if c.database < 0 {
		errs = append(errs, xerrors.Wrapf(ErrInvalidConfig, "database must not be negative, got %d", c.database))
	}
	if !c.socketVariant.Valid() {
		errs = append(errs, xerrors.Wrapf(ErrInvalidConfig, "unknown socket variant %s", c.socketVariant))
	}
	if !c.sslProvider.Valid() {
		errs = append(errs, xerrors.Wrapf(ErrInvalidConfig, "unknown ssl provider %s", c.sslProvider))
	}
	return xerrors.Combine(errs...)
}

// HostPort 返回 "host:port" 形式的拨号地址，地址未设置时返回空串
func (c *Config) HostPort() string {
	if c.address == nil {
		return ""
	}
	port := c.address.Port()
	if port == "" {
		return net.JoinHostPort(c.address.Hostname(), strconv.Itoa(DefaultPort))
	}
	return net.JoinHostPort(c.address.Hostname(), port)
}

// UseTLS 地址 scheme 为 rediss 或配置了证书库时启用 TLS
func (c *Config) UseTLS() bool {
	if c.address != nil && strings.EqualFold(c.address.Scheme, TLSScheme) {
		return true
	}
	return c.sslTruststore != nil || c.sslKeystore != nil
}

// LogValue 实现 slog.LogValuer，密码不会出现在日志中
func (c *Config) LogValue() slog.Value {
	addr := ""
	if c.address != nil {
		redacted := cloneURL(c.address)
		if redacted.User != nil {
			redacted.User = url.User(redacted.User.Username())
		}
		addr = redacted.String()
	}
	return slog.GroupValue(
		slog.String("address", addr),
		slog.Int("database", c.database),
		slog.String("client_name", c.clientName),
		slog.String("socket_variant", c.socketVariant.String()),
		slog.Duration("connect_timeout", c.connectTimeout),
		slog.Duration("command_timeout", c.commandTimeout),
		slog.Bool("tls", c.UseTLS()),
		slog.Bool("read_only", c.readOnly),
		slog.Bool("ping_connection", c.pingConnection),
	)
}
