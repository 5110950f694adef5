package connector

import (
	"context"
	"net"
	"time"

	"github.com/ceyewan/redisclient/client"
	"github.com/ceyewan/redisclient/clog"
	"github.com/ceyewan/redisclient/metrics"
)

// DefaultPingInterval 默认探活间隔
const DefaultPingInterval = 30 * time.Second

// TLSProvider 第三方 TLS 实现，在已拨通的连接上完成握手。
// 仅在配置选择 client.SSLProviderThirdParty 时使用。
type TLSProvider interface {
	Handshake(ctx context.Context, conn net.Conn, cfg *client.Config) (net.Conn, error)
}

type options struct {
	name         string
	logger       clog.Logger
	meter        metrics.Meter
	tracing      bool
	tlsProvider  TLSProvider
	pingInterval time.Duration
}

// Option 配置连接器的选项
type Option func(*options)

func defaultOptions() *options {
	return &options{
		name:         "default",
		logger:       clog.Discard(),
		meter:        metrics.Discard(),
		pingInterval: DefaultPingInterval,
	}
}

// WithName 设置连接器名称 (默认: "default")
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("connector")
		}
	}
}

// WithMeter 设置指标收集器
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithTracing 为客户端启用 OpenTelemetry 链路追踪，使用全局 TracerProvider
func WithTracing() Option {
	return func(o *options) {
		o.tracing = true
	}
}

// WithTLSProvider 注入第三方 TLS 实现
func WithTLSProvider(p TLSProvider) Option {
	return func(o *options) {
		o.tlsProvider = p
	}
}

// WithPingInterval 设置探活间隔 (默认: 30s)
func WithPingInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pingInterval = d
		}
	}
}
