package client

import (
	"net/url"
	"time"
)

const (
	// DefaultConnectTimeout 默认连接超时 (10000ms)
	DefaultConnectTimeout = 10 * time.Second
	// DefaultCommandTimeout 默认命令超时 (10000ms)
	DefaultCommandTimeout = 10 * time.Second
)

// values Builder 与 Config 共用的字段集合及其只读访问方法
type values struct {
	address        *url.URL
	timer          Timer
	executor       Executor
	eventLoopGroup EventLoopGroup
	socketVariant  SocketVariant

	connectTimeout time.Duration
	commandTimeout time.Duration

	password   string
	database   int
	clientName string

	readOnly        bool
	keepPubSubOrder bool
	pingConnection  bool
	keepAlive       bool
	tcpNoDelay      bool

	sslEnableEndpointIdentification bool
	sslProvider                     SSLProvider
	sslTruststore                   *url.URL
	sslTruststorePassword           string
	sslKeystore                     *url.URL
	sslKeystorePassword             string

	defaults *defaultResources
}

func (v *values) clone() values {
	c := *v
	c.address = cloneURL(v.address)
	c.sslTruststore = cloneURL(v.sslTruststore)
	c.sslKeystore = cloneURL(v.sslKeystore)
	return c
}

// Address 返回连接地址的副本，未设置时返回 nil
func (v *values) Address() *url.URL { return cloneURL(v.address) }

// Timer 返回定时器，未设置时返回 nil
func (v *values) Timer() Timer { return v.timer }

// Executor 返回任务执行器，未设置时返回惰性创建的默认 WorkerPool
func (v *values) Executor() Executor {
	if v.executor != nil {
		return v.executor
	}
	return v.defaults.getExecutor()
}

// EventLoopGroup 返回拨号组，未设置时返回惰性创建的默认 NetpollGroup
func (v *values) EventLoopGroup() EventLoopGroup {
	if v.eventLoopGroup != nil {
		return v.eventLoopGroup
	}
	return v.defaults.getEventLoopGroup()
}

func (v *values) SocketVariant() SocketVariant  { return v.socketVariant }
func (v *values) ConnectTimeout() time.Duration { return v.connectTimeout }
func (v *values) CommandTimeout() time.Duration { return v.commandTimeout }
func (v *values) Password() string              { return v.password }
func (v *values) Database() int                 { return v.database }
func (v *values) ClientName() string            { return v.clientName }
func (v *values) ReadOnly() bool                { return v.readOnly }
func (v *values) KeepPubSubOrder() bool         { return v.keepPubSubOrder }
func (v *values) PingConnection() bool          { return v.pingConnection }
func (v *values) KeepAlive() bool               { return v.keepAlive }
func (v *values) TCPNoDelay() bool              { return v.tcpNoDelay }
func (v *values) SSLProvider() SSLProvider      { return v.sslProvider }
func (v *values) SSLTruststorePassword() string { return v.sslTruststorePassword }
func (v *values) SSLKeystorePassword() string   { return v.sslKeystorePassword }
func (v *values) SSLTruststore() *url.URL       { return cloneURL(v.sslTruststore) }
func (v *values) SSLKeystore() *url.URL         { return cloneURL(v.sslKeystore) }
func (v *values) SSLEnableEndpointIdentification() bool {
	return v.sslEnableEndpointIdentification
}

// Builder 连接配置的构建阶段。
//
// Builder 不是并发安全的，应由单个 goroutine 完成设置后调用 Build。
// 除地址解析外，所有 Setter 不做校验并返回同一个 *Builder 以便链式调用。
type Builder struct {
	values
}

// NewBuilder 创建填充了默认值的 Builder
func NewBuilder() *Builder {
	return &Builder{values{
		socketVariant:                   SocketTCP,
		connectTimeout:                  DefaultConnectTimeout,
		commandTimeout:                  DefaultCommandTimeout,
		keepPubSubOrder:                 true,
		sslEnableEndpointIdentification: true,
		sslProvider:                     SSLProviderNative,
		defaults:                        &defaultResources{},
	}}
}

// SetHostPort 使用默认 scheme 由主机与端口合成地址，与 SetAddress 共用解析逻辑。
// 失败时 Builder 保持不变，返回值仍为同一个 *Builder。
func (b *Builder) SetHostPort(host string, port int) (*Builder, error) {
	return b.SetAddress(hostPortAddress(host, port))
}

// SetAddress 解析地址字符串，缺少 scheme 时补全为 redis。
// 失败时返回包装了 ErrMalformedAddress 的错误，Builder 保持不变。
func (b *Builder) SetAddress(addr string) (*Builder, error) {
	u, err := ParseAddress(addr)
	if err != nil {
		return b, err
	}
	b.address = u
	return b, nil
}

// SetAddressURL 原样保存 URI 的副本，nil 表示重置为未设置
func (b *Builder) SetAddressURL(u *url.URL) *Builder {
	b.address = cloneURL(u)
	return b
}

// SetTimer 设置探活等定时任务使用的 Timer，nil 时由连接器自行创建
func (b *Builder) SetTimer(t Timer) *Builder {
	b.timer = t
	return b
}

// SetExecutor 设置共享执行器，nil 表示恢复使用默认执行器
func (b *Builder) SetExecutor(e Executor) *Builder {
	b.executor = e
	return b
}

// SetEventLoopGroup 设置共享拨号组，nil 表示恢复使用默认拨号组
func (b *Builder) SetEventLoopGroup(g EventLoopGroup) *Builder {
	b.eventLoopGroup = g
	return b
}

// SetSocketVariant 设置拨号使用的网络类型
func (b *Builder) SetSocketVariant(v SocketVariant) *Builder {
	b.socketVariant = v
	return b
}

// SetConnectTimeout 设置建立连接的超时时间，校验推迟到连接时
func (b *Builder) SetConnectTimeout(d time.Duration) *Builder {
	b.connectTimeout = d
	return b
}

// SetCommandTimeout 设置单条命令的读写超时
func (b *Builder) SetCommandTimeout(d time.Duration) *Builder {
	b.commandTimeout = d
	return b
}

// SetPassword 设置 AUTH 密码
func (b *Builder) SetPassword(password string) *Builder {
	b.password = password
	return b
}

// SetDatabase 设置连接后 SELECT 的数据库编号
func (b *Builder) SetDatabase(db int) *Builder {
	b.database = db
	return b
}

// SetClientName 设置 CLIENT SETNAME 使用的连接名
func (b *Builder) SetClientName(name string) *Builder {
	b.clientName = name
	return b
}

// SetReadOnly 为 true 时每个新连接发送 READONLY
func (b *Builder) SetReadOnly(readOnly bool) *Builder {
	b.readOnly = readOnly
	return b
}

// SetKeepPubSubOrder 为 true 时按到达顺序串行分发订阅消息
func (b *Builder) SetKeepPubSubOrder(keep bool) *Builder {
	b.keepPubSubOrder = keep
	return b
}

// SetPingConnection 开启连接的周期性探活
func (b *Builder) SetPingConnection(ping bool) *Builder {
	b.pingConnection = ping
	return b
}

// SetKeepAlive 开启 TCP keep-alive
func (b *Builder) SetKeepAlive(keepAlive bool) *Builder {
	b.keepAlive = keepAlive
	return b
}

// SetTCPNoDelay 开启 TCP_NODELAY
func (b *Builder) SetTCPNoDelay(noDelay bool) *Builder {
	b.tcpNoDelay = noDelay
	return b
}

// SetSSLEnableEndpointIdentification 为 false 时仍校验证书链，但跳过主机名校验
func (b *Builder) SetSSLEnableEndpointIdentification(enable bool) *Builder {
	b.sslEnableEndpointIdentification = enable
	return b
}

// SetSSLProvider 选择 TLS 实现
func (b *Builder) SetSSLProvider(p SSLProvider) *Builder {
	b.sslProvider = p
	return b
}

// SetSSLTruststore 设置信任证书库的位置（PEM 或 PKCS#12），保存副本
func (b *Builder) SetSSLTruststore(u *url.URL) *Builder {
	b.sslTruststore = cloneURL(u)
	return b
}

// SetSSLTruststorePassword 设置 PKCS#12 信任库密码
func (b *Builder) SetSSLTruststorePassword(password string) *Builder {
	b.sslTruststorePassword = password
	return b
}

// SetSSLKeystore 设置客户端证书库的位置，保存副本
func (b *Builder) SetSSLKeystore(u *url.URL) *Builder {
	b.sslKeystore = cloneURL(u)
	return b
}

// SetSSLKeystorePassword 设置 PKCS#12 证书库密码
func (b *Builder) SetSSLKeystorePassword(password string) *Builder {
	b.sslKeystorePassword = password
	return b
}

// Build 生成不可变的 Config 快照，之后对 Builder 的修改不影响已生成的 Config。
// 同一 Builder 生成的 Config 共享其默认资源。
func (b *Builder) Build() *Config {
	return &Config{values: b.clone()}
}
