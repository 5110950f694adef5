package connector

import (
	"context"
	"crypto/tls"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"
	"golang.org/x/time/rate"

	"github.com/ceyewan/redisclient/client"
	"github.com/ceyewan/redisclient/clog"
	"github.com/ceyewan/redisclient/metrics"
	"github.com/ceyewan/redisclient/xerrors"
)

const (
	metricConnectTotal = "redis_connector_connect_total"
	metricHealthy      = "redis_connector_healthy"
	metricDialDuration = "redis_connector_dial_duration_seconds"
)

type redisConnector struct {
	cfg       *client.Config
	opts      *options
	client    *redis.Client
	logger    clog.Logger
	tlsConfig *tls.Config
	timer     client.Timer
	executor  client.Executor

	healthy   atomic.Bool
	connected atomic.Bool
	closed    atomic.Bool

	mu    sync.Mutex
	probe client.Timeout

	// 执行器拒绝任务时每秒最多告警一次
	dropWarn rate.Sometimes

	connectTotal metrics.Counter
	healthyGauge metrics.Gauge
	dialDuration metrics.Histogram
}

// NewRedis 创建 Redis 连接器，此时只校验配置，不建立连接
func NewRedis(cfg *client.Config, opts ...Option) (RedisConnector, error) {
	opt := defaultOptions()
	for _, o := range opts {
		o(opt)
	}

	if cfg == nil {
		return nil, xerrors.Wrapf(ErrConfig, "redis connector[%s]: config is nil", opt.name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, wrapErr(opt.name, ErrConfig, err)
	}

	c := &redisConnector{
		cfg:      cfg,
		opts:     opt,
		logger:   opt.logger.With(clog.String("connector", "redis"), clog.String("name", opt.name)),
		timer:    cfg.Timer(),
		executor: cfg.Executor(),
		dropWarn: rate.Sometimes{Interval: time.Second},
	}
	if c.timer == nil {
		c.timer = client.NewTimer()
	}

	if cfg.UseTLS() {
		switch cfg.SSLProvider() {
		case client.SSLProviderThirdParty:
			if opt.tlsProvider == nil {
				return nil, xerrors.Wrapf(ErrConfig, "redis connector[%s]: ssl provider %s requires WithTLSProvider", opt.name, cfg.SSLProvider())
			}
		default:
			tc, err := cfg.TLSConfig()
			if err != nil {
				return nil, wrapErr(opt.name, ErrConfig, err)
			}
			c.tlsConfig = tc
		}
	}

	if err := c.initMetrics(); err != nil {
		return nil, xerrors.Wrapf(err, "redis connector[%s]: init metrics", opt.name)
	}

	c.client = redis.NewClient(c.redisOptions())
	if opt.tracing {
		if err := redisotel.InstrumentTracing(c.client); err != nil {
			_ = c.client.Close()
			return nil, xerrors.Wrapf(err, "redis connector[%s]: instrument tracing", opt.name)
		}
	}

	c.logger.Debug("redis connector created", clog.Any("config", cfg))
	return c, nil
}

func (c *redisConnector) redisOptions() *redis.Options {
	o := &redis.Options{
		Addr:         c.cfg.HostPort(),
		Network:      c.cfg.SocketVariant().Network(),
		Password:     c.cfg.Password(),
		DB:           c.cfg.Database(),
		ClientName:   c.cfg.ClientName(),
		DialTimeout:  c.cfg.ConnectTimeout(),
		ReadTimeout:  c.cfg.CommandTimeout(),
		WriteTimeout: c.cfg.CommandTimeout(),
		Dialer:       c.dial,
		OnConnect:    c.onConnect,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}

	// 地址中的 userinfo 作为 ACL 用户名，password 字段为空时使用其中的密码
	if u := c.cfg.Address(); u != nil && u.User != nil {
		o.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok && o.Password == "" {
			o.Password = pw
		}
	}
	return o
}

func (c *redisConnector) initMetrics() error {
	var err error
	c.connectTotal, err = c.opts.meter.Counter(metricConnectTotal, "Number of redis connect attempts")
	if err != nil {
		return err
	}
	c.healthyGauge, err = c.opts.meter.Gauge(metricHealthy, "Whether the redis connection is healthy (1) or not (0)")
	if err != nil {
		return err
	}
	c.dialDuration, err = c.opts.meter.Histogram(metricDialDuration, "Time spent dialing and handshaking a redis connection", metrics.WithUnit("s"))
	return err
}

// dial 通过 EventLoopGroup 拨号，设置 TCP 选项后按需完成 TLS 握手
func (c *redisConnector) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	start := time.Now()
	conn, err := c.establish(ctx, network, addr)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	c.dialDuration.Record(ctx, time.Since(start).Seconds(), c.label(), metrics.L(metrics.LabelOutcome, outcome))
	return conn, err
}

func (c *redisConnector) establish(ctx context.Context, network, addr string) (net.Conn, error) {
	conn, err := c.cfg.EventLoopGroup().Dial(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	if sock := socketOf(conn); sock != nil {
		if err := sock.SetKeepAlive(c.cfg.KeepAlive()); err != nil {
			_ = conn.Close()
			return nil, xerrors.Wrap(err, "set keepalive")
		}
		if err := sock.SetNoDelay(c.cfg.TCPNoDelay()); err != nil {
			_ = conn.Close()
			return nil, xerrors.Wrap(err, "set tcp nodelay")
		}
	} else {
		c.logger.Debug("dialed connection does not expose tcp options", clog.String("addr", addr))
	}

	if !c.cfg.UseTLS() {
		return conn, nil
	}
	if c.tlsConfig == nil {
		return c.opts.tlsProvider.Handshake(ctx, conn, c.cfg)
	}

	tlsConn := tls.Client(conn, c.tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, xerrors.Wrap(err, "tls handshake")
	}
	return tlsConn, nil
}

// socketOptions TCP 层可调参数，*net.TCPConn 实现了该接口
type socketOptions interface {
	SetKeepAlive(keepalive bool) error
	SetNoDelay(noDelay bool) error
}

// socketOf 沿 NetConn() 链查找可设置 TCP 选项的连接
func socketOf(conn net.Conn) socketOptions {
	for conn != nil {
		if s, ok := conn.(socketOptions); ok {
			return s
		}
		inner, ok := conn.(interface{ NetConn() net.Conn })
		if !ok {
			return nil
		}
		conn = inner.NetConn()
	}
	return nil
}

// onConnect 在每个新连接上执行，readOnly 时发送 READONLY
func (c *redisConnector) onConnect(ctx context.Context, cn *redis.Conn) error {
	if !c.cfg.ReadOnly() {
		return nil
	}
	if err := cn.ReadOnly(ctx).Err(); err != nil {
		// 非集群模式的服务端不支持 READONLY，此时只读仅为建议
		if strings.Contains(err.Error(), "cluster support disabled") {
			c.logger.Debug("server does not support READONLY, ignored", clog.Error(err))
			return nil
		}
		return xerrors.Wrap(err, "send READONLY")
	}
	return nil
}

// Connect 建立连接
func (c *redisConnector) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrAlreadyClosed
	}
	if c.connected.Load() {
		return nil
	}

	addr := c.cfg.HostPort()
	c.logger.Info("attempting to connect to redis", clog.String("addr", addr))

	if err := c.client.Ping(ctx).Err(); err != nil {
		c.connectTotal.Inc(ctx, c.label(), metrics.L(metrics.LabelOutcome, metrics.OutcomeError))
		c.logger.Error("failed to connect to redis", clog.Error(err), clog.String("addr", addr))
		return wrapErr(c.opts.name, ErrConnection, err)
	}

	c.connectTotal.Inc(ctx, c.label(), metrics.L(metrics.LabelOutcome, metrics.OutcomeSuccess))
	c.setHealthy(ctx, true)
	if c.connected.CompareAndSwap(false, true) && c.cfg.PingConnection() {
		c.scheduleProbe()
	}
	c.logger.Info("successfully connected to redis", clog.String("addr", addr))
	return nil
}

// Close 关闭连接，不关闭 Config 中的共享资源
func (c *redisConnector) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.logger.Info("closing redis connection", clog.String("addr", c.cfg.HostPort()))

	c.mu.Lock()
	if c.probe != nil {
		c.probe.Stop()
		c.probe = nil
	}
	c.mu.Unlock()

	c.setHealthy(context.Background(), false)
	if err := c.client.Close(); err != nil {
		c.logger.Error("failed to close redis connection", clog.Error(err))
		return err
	}
	c.logger.Info("redis connection closed successfully")
	return nil
}

// HealthCheck 检查连接健康状态
func (c *redisConnector) HealthCheck(ctx context.Context) error {
	if c.closed.Load() {
		return ErrAlreadyClosed
	}
	if !c.connected.Load() {
		return ErrNotConnected
	}

	if err := c.client.Ping(ctx).Err(); err != nil {
		c.setHealthy(ctx, false)
		c.logger.Warn("redis health check failed", clog.Error(err))
		return wrapErr(c.opts.name, ErrHealthCheck, err)
	}
	c.setHealthy(ctx, true)
	return nil
}

func (c *redisConnector) setHealthy(ctx context.Context, healthy bool) {
	c.healthy.Store(healthy)
	val := 0.0
	if healthy {
		val = 1
	}
	c.healthyGauge.Set(ctx, val, c.label())
}

func (c *redisConnector) label() metrics.Label {
	return metrics.L("name", c.opts.name)
}

// scheduleProbe 在 Timer 上调度下一次探活，探活本身在 Executor 上执行
func (c *redisConnector) scheduleProbe() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return
	}
	c.probe = c.timer.AfterFunc(c.opts.pingInterval, c.runProbe)
}

func (c *redisConnector) runProbe() {
	if c.closed.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CommandTimeout())
	err := c.executor.Submit(ctx, func() {
		defer cancel()
		if err := c.HealthCheck(ctx); err != nil && !xerrors.Is(err, ErrAlreadyClosed) {
			c.logger.Warn("redis liveness probe failed", clog.Error(err))
		}
		c.scheduleProbe()
	})
	if err != nil {
		cancel()
		c.logger.Warn("failed to submit redis liveness probe", clog.Error(err))
		c.scheduleProbe()
	}
}

// IsHealthy 返回缓存的健康状态
func (c *redisConnector) IsHealthy() bool {
	return c.healthy.Load()
}

// Name 返回连接器名称
func (c *redisConnector) Name() string {
	return c.opts.name
}

// GetClient 返回 Redis 客户端
func (c *redisConnector) GetClient() *redis.Client {
	return c.client
}

// Config 返回连接配置
func (c *redisConnector) Config() *client.Config {
	return c.cfg
}
