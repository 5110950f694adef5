package connector

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/redisclient/client"
	"github.com/ceyewan/redisclient/clog"
	"github.com/ceyewan/redisclient/xerrors"
)

func builderFor(t *testing.T, addr string) *client.Builder {
	t.Helper()
	b, err := client.NewBuilder().SetAddress(addr)
	require.NoError(t, err)
	return b.SetConnectTimeout(2 * time.Second).SetCommandTimeout(2 * time.Second)
}

func connect(t *testing.T, cfg *client.Config, opts ...Option) RedisConnector {
	t.Helper()
	conn, err := NewRedis(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.Connect(context.Background()))
	return conn
}

// TestNewRedisValidation 测试打开时的配置校验
func TestNewRedisValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     func(t *testing.T) *client.Config
		opts    []Option
		targets []error
	}{
		{
			name:    "nil config",
			cfg:     func(*testing.T) *client.Config { return nil },
			targets: []error{ErrConfig},
		},
		{
			name:    "missing address",
			cfg:     func(*testing.T) *client.Config { return client.NewBuilder().Build() },
			targets: []error{ErrConfig, client.ErrInvalidConfig},
		},
		{
			name: "zero connect timeout",
			cfg: func(t *testing.T) *client.Config {
				return builderFor(t, "127.0.0.1:6379").SetConnectTimeout(0).Build()
			},
			targets: []error{ErrConfig, client.ErrInvalidConfig},
		},
		{
			name: "negative database",
			cfg: func(t *testing.T) *client.Config {
				return builderFor(t, "127.0.0.1:6379").SetDatabase(-1).Build()
			},
			targets: []error{ErrConfig, client.ErrInvalidConfig},
		},
		{
			name: "third party tls without provider",
			cfg: func(t *testing.T) *client.Config {
				return builderFor(t, "rediss://127.0.0.1:6379").SetSSLProvider(client.SSLProviderThirdParty).Build()
			},
			targets: []error{ErrConfig},
		},
		{
			name: "missing truststore",
			cfg: func(t *testing.T) *client.Config {
				return builderFor(t, "127.0.0.1:6379").
					SetSSLTruststore(&url.URL{Scheme: "file", Path: "/nonexistent/ca.pem"}).
					Build()
			},
			targets: []error{ErrConfig},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := NewRedis(tt.cfg(t), tt.opts...)
			require.Error(t, err)
			assert.Nil(t, conn)
			for _, target := range tt.targets {
				assert.ErrorIs(t, err, target)
			}
		})
	}
}

// TestRedisConnectorLifecycle 测试连接、健康检查与关闭
func TestRedisConnectorLifecycle(t *testing.T) {
	srv := newFakeRedis(t)
	meter := newRecordingMeter()
	exec := client.NewWorkerPool(2)
	group := client.NewEventLoopGroup()

	cfg := builderFor(t, srv.addr()).
		SetDatabase(2).
		SetClientName("orders").
		SetExecutor(exec).
		SetEventLoopGroup(group).
		Build()

	conn, err := NewRedis(cfg, WithName("primary"), WithMeter(meter), WithLogger(clog.Discard()))
	require.NoError(t, err)
	ctx := context.Background()

	assert.Equal(t, "primary", conn.Name())
	assert.Same(t, cfg, conn.Config())
	assert.NotNil(t, conn.GetClient())
	assert.False(t, conn.IsHealthy())
	assert.ErrorIs(t, conn.HealthCheck(ctx), ErrNotConnected)

	require.NoError(t, conn.Connect(ctx))
	require.NoError(t, conn.Connect(ctx))
	assert.True(t, conn.IsHealthy())
	require.NoError(t, conn.HealthCheck(ctx))

	assert.Positive(t, srv.received("SELECT 2"))
	assert.Positive(t, srv.received("CLIENT SETNAME ORDERS"))
	assert.Positive(t, group.ActiveConns())
	assert.Equal(t, float64(1), meter.get("redis_connector_connect_total|name=primary|outcome=success"))
	assert.Equal(t, float64(1), meter.get("redis_connector_healthy|name=primary"))
	assert.Positive(t, meter.get("redis_connector_dial_duration_seconds|name=primary|outcome=success"))

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.False(t, conn.IsHealthy())
	assert.Equal(t, float64(0), meter.get("redis_connector_healthy|name=primary"))
	assert.ErrorIs(t, conn.Connect(ctx), ErrAlreadyClosed)
	assert.ErrorIs(t, conn.HealthCheck(ctx), ErrAlreadyClosed)

	// 共享资源不随连接器关闭
	assert.Zero(t, group.ActiveConns())
	assert.NoError(t, exec.Submit(ctx, func() {}))
	exec.Wait()
}

// TestRedisConnectorConnectFailure 测试连接失败
func TestRedisConnectorConnectFailure(t *testing.T) {
	srv := newFakeRedis(t)
	addr := srv.addr()
	srv.close()

	meter := newRecordingMeter()
	conn, err := NewRedis(builderFor(t, addr).SetConnectTimeout(500*time.Millisecond).Build(), WithMeter(meter))
	require.NoError(t, err)
	defer conn.Close()

	err = conn.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
	assert.False(t, conn.IsHealthy())
	assert.Equal(t, float64(1), meter.get("redis_connector_connect_total|name=default|outcome=error"))
	assert.Positive(t, meter.get("redis_connector_dial_duration_seconds|name=default|outcome=error"))
}

// TestRedisConnectorReadOnly 测试 readOnly 在新连接上发送 READONLY
func TestRedisConnectorReadOnly(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		srv := newFakeRedis(t)
		connect(t, builderFor(t, srv.addr()).SetReadOnly(true).Build())
		assert.Positive(t, srv.received("READONLY"))
	})

	t.Run("not sent by default", func(t *testing.T) {
		srv := newFakeRedis(t)
		connect(t, builderFor(t, srv.addr()).Build())
		assert.Zero(t, srv.received("READONLY"))
	})

	t.Run("cluster support disabled is ignored", func(t *testing.T) {
		srv := newFakeRedis(t)
		srv.mu.Lock()
		srv.readOnlyReply = "ERR This instance has cluster support disabled"
		srv.mu.Unlock()
		connect(t, builderFor(t, srv.addr()).SetReadOnly(true).Build())
	})

	t.Run("other errors fail the connection", func(t *testing.T) {
		srv := newFakeRedis(t)
		srv.mu.Lock()
		srv.readOnlyReply = "ERR permission denied"
		srv.mu.Unlock()

		conn, err := NewRedis(builderFor(t, srv.addr()).SetReadOnly(true).Build())
		require.NoError(t, err)
		defer conn.Close()
		assert.ErrorIs(t, conn.Connect(context.Background()), ErrConnection)
	})
}

// TestRedisConnectorSocketOptions 测试通过 EventLoopGroup 拨号并设置 TCP 选项
func TestRedisConnectorSocketOptions(t *testing.T) {
	tests := []struct {
		name      string
		variant   client.SocketVariant
		keepAlive bool
		noDelay   bool
	}{
		{"defaults", client.SocketTCP, false, false},
		{"keepalive and nodelay", client.SocketTCP4, true, true},
		{"nodelay only", client.SocketTCP6, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeRedis(t)
			group := newOptionGroup()
			connect(t, builderFor(t, srv.addr()).
				SetEventLoopGroup(group).
				SetSocketVariant(tt.variant).
				SetKeepAlive(tt.keepAlive).
				SetTCPNoDelay(tt.noDelay).
				Build())

			network, oc := group.first()
			assert.Equal(t, tt.variant.Network(), network)
			assert.Equal(t, int32(2), oc.applied.Load())
			assert.Equal(t, tt.keepAlive, oc.keepAlive.Load())
			assert.Equal(t, tt.noDelay, oc.noDelay.Load())
		})
	}
}

// TestRedisConnectorTLS 测试原生 TLS 与第三方 TLS 实现
func TestRedisConnectorTLS(t *testing.T) {
	t.Run("native", func(t *testing.T) {
		certFile, keyFile := writeSelfSignedCert(t, "127.0.0.1")
		srv := newFakeRedisTLS(t, certFile, keyFile)

		cfg := builderFor(t, "rediss://"+srv.addr()).
			SetSSLTruststore(&url.URL{Scheme: "file", Path: certFile}).
			Build()
		conn := connect(t, cfg)
		assert.True(t, conn.IsHealthy())
	})

	t.Run("native rejects unknown ca", func(t *testing.T) {
		certFile, keyFile := writeSelfSignedCert(t, "127.0.0.1")
		otherCA, _ := writeSelfSignedCert(t, "127.0.0.1")
		srv := newFakeRedisTLS(t, certFile, keyFile)

		cfg := builderFor(t, "rediss://"+srv.addr()).
			SetSSLTruststore(&url.URL{Scheme: "file", Path: otherCA}).
			Build()
		conn, err := NewRedis(cfg)
		require.NoError(t, err)
		defer conn.Close()
		assert.ErrorIs(t, conn.Connect(context.Background()), ErrConnection)
	})

	t.Run("third party provider", func(t *testing.T) {
		srv := newFakeRedis(t)
		provider := &passthroughTLS{}
		cfg := builderFor(t, "rediss://"+srv.addr()).
			SetSSLProvider(client.SSLProviderThirdParty).
			Build()

		connect(t, cfg, WithTLSProvider(provider))
		assert.Positive(t, provider.handshakes.Load())
	})
}

// TestRedisConnectorPingProbe 测试探活在 Timer 上调度并在 Executor 上执行
func TestRedisConnectorPingProbe(t *testing.T) {
	srv := newFakeRedis(t)
	timer := &manualTimer{}
	exec := newCountingExecutor()

	conn := connect(t, builderFor(t, srv.addr()).
		SetPingConnection(true).
		SetTimer(timer).
		SetExecutor(exec).
		Build(), WithPingInterval(5*time.Second))

	require.Equal(t, 1, timer.scheduled())
	assert.Equal(t, 5*time.Second, timer.last().d)

	pings := srv.received("PING")
	require.True(t, timer.fire())
	exec.Wait()

	assert.Equal(t, int32(1), exec.submits.Load())
	assert.Equal(t, pings+1, srv.received("PING"))
	assert.Equal(t, 2, timer.scheduled())
	assert.True(t, conn.IsHealthy())

	require.NoError(t, conn.Close())
	assert.True(t, timer.last().stopped.Load())
	assert.False(t, timer.fire())
}

// TestRedisConnectorNoProbeByDefault 测试默认不调度探活
func TestRedisConnectorNoProbeByDefault(t *testing.T) {
	srv := newFakeRedis(t)
	timer := &manualTimer{}
	connect(t, builderFor(t, srv.addr()).SetTimer(timer).Build())
	assert.Zero(t, timer.scheduled())
}

type collector struct {
	mu       sync.Mutex
	payloads []string
}

func (c *collector) handle(_ context.Context, msg *redis.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, msg.Payload)
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.payloads...)
}

// TestRedisConnectorSubscribe 测试 keepPubSubOrder 对分发方式的影响
func TestRedisConnectorSubscribe(t *testing.T) {
	payloads := []string{"0", "1", "2", "3", "4", "5", "6", "7"}

	t.Run("ordered inline", func(t *testing.T) {
		srv := newFakeRedis(t)
		exec := newCountingExecutor()
		conn := connect(t, builderFor(t, srv.addr()).SetExecutor(exec).Build())

		var got collector
		sub, err := conn.Subscribe(context.Background(), got.handle, "news")
		require.NoError(t, err)
		require.Eventually(t, func() bool { return srv.subscribers("news") == 1 }, 2*time.Second, 10*time.Millisecond)

		for _, p := range payloads {
			require.Equal(t, 1, srv.publish("news", p))
		}
		require.Eventually(t, func() bool { return len(got.snapshot()) == len(payloads) }, 3*time.Second, 10*time.Millisecond)
		assert.Equal(t, payloads, got.snapshot())
		assert.Zero(t, exec.submits.Load())

		_ = sub.Close()
		select {
		case <-sub.Done():
		default:
			t.Fatal("dispatch goroutine still running after Close")
		}
	})

	t.Run("unordered via executor", func(t *testing.T) {
		srv := newFakeRedis(t)
		exec := newCountingExecutor()
		conn := connect(t, builderFor(t, srv.addr()).SetExecutor(exec).SetKeepPubSubOrder(false).Build())

		var got collector
		sub, err := conn.Subscribe(context.Background(), got.handle, "news")
		require.NoError(t, err)
		defer sub.Close()

		for _, p := range payloads {
			require.Equal(t, 1, srv.publish("news", p))
		}
		require.Eventually(t, func() bool { return len(got.snapshot()) == len(payloads) }, 3*time.Second, 10*time.Millisecond)
		assert.ElementsMatch(t, payloads, got.snapshot())
		assert.Equal(t, int32(len(payloads)), exec.submits.Load())
	})

	t.Run("context cancel stops dispatch", func(t *testing.T) {
		srv := newFakeRedis(t)
		conn := connect(t, builderFor(t, srv.addr()).Build())

		ctx, cancel := context.WithCancel(context.Background())
		var got collector
		sub, err := conn.Subscribe(ctx, got.handle, "news")
		require.NoError(t, err)
		defer sub.Close()

		require.Eventually(t, func() bool { return srv.subscribers("news") == 1 }, 2*time.Second, 10*time.Millisecond)

		cancel()
		select {
		case <-sub.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("dispatch did not stop after context cancel")
		}

		// 取消后底层订阅连接随之关闭，服务端不再投递
		require.Eventually(t, func() bool { return srv.subscribers("news") == 0 }, 2*time.Second, 10*time.Millisecond)
		assert.Zero(t, srv.publish("news", "late"))
		assert.NoError(t, sub.Close())
	})

	t.Run("requires connect", func(t *testing.T) {
		srv := newFakeRedis(t)
		conn, err := NewRedis(builderFor(t, srv.addr()).Build())
		require.NoError(t, err)
		defer conn.Close()

		_, err = conn.Subscribe(context.Background(), func(context.Context, *redis.Message) {}, "news")
		assert.ErrorIs(t, err, ErrNotConnected)

		require.NoError(t, conn.Connect(context.Background()))
		require.NoError(t, conn.Close())
		_, err = conn.Subscribe(context.Background(), func(context.Context, *redis.Message) {}, "news")
		assert.ErrorIs(t, err, ErrAlreadyClosed)
	})
}

func TestWrapErr(t *testing.T) {
	cause := xerrors.New("boom")
	err := wrapErr("x", ErrConnection, cause)
	assert.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "redis connector[x]: connector: connection failed: boom", err.Error())
}
