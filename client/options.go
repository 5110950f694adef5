package client

import (
	"net/url"
	"time"

	"github.com/ceyewan/redisclient/config"
	"github.com/ceyewan/redisclient/xerrors"
)

// Options 连接配置的文件/环境变量形式，字段与 Builder 一一对应。
//
// 零值字段保留 NewBuilder 的默认值；布尔字段使用指针以区分"未设置"与 false。
type Options struct {
	Address        string        `mapstructure:"address" yaml:"address" json:"address"`                         // [必填] 如 "redis://127.0.0.1:6379"
	SocketVariant  string        `mapstructure:"socket_variant" yaml:"socket_variant" json:"socket_variant"`    // tcp/tcp4/tcp6 (默认: tcp)
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout" json:"connect_timeout"` // (默认: 10s)
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout" json:"command_timeout"` // (默认: 10s)
	Password       string        `mapstructure:"password" yaml:"password" json:"password"`
	Database       int           `mapstructure:"database" yaml:"database" json:"database"`
	ClientName     string        `mapstructure:"client_name" yaml:"client_name" json:"client_name"`

	ReadOnly        *bool `mapstructure:"read_only" yaml:"read_only" json:"read_only"`                         // (默认: false)
	KeepPubSubOrder *bool `mapstructure:"keep_pubsub_order" yaml:"keep_pubsub_order" json:"keep_pubsub_order"` // (默认: true)
	PingConnection  *bool `mapstructure:"ping_connection" yaml:"ping_connection" json:"ping_connection"`       // (默认: false)
	KeepAlive       *bool `mapstructure:"keep_alive" yaml:"keep_alive" json:"keep_alive"`                      // (默认: false)
	TCPNoDelay      *bool `mapstructure:"tcp_no_delay" yaml:"tcp_no_delay" json:"tcp_no_delay"`                // (默认: false)

	SSLEnableEndpointIdentification *bool  `mapstructure:"ssl_enable_endpoint_identification" yaml:"ssl_enable_endpoint_identification" json:"ssl_enable_endpoint_identification"` // (默认: true)
	SSLProvider                     string `mapstructure:"ssl_provider" yaml:"ssl_provider" json:"ssl_provider"`                                                                   // native/third_party (默认: native)
	SSLTruststore                   string `mapstructure:"ssl_truststore" yaml:"ssl_truststore" json:"ssl_truststore"`
	SSLTruststorePassword           string `mapstructure:"ssl_truststore_password" yaml:"ssl_truststore_password" json:"ssl_truststore_password"`
	SSLKeystore                     string `mapstructure:"ssl_keystore" yaml:"ssl_keystore" json:"ssl_keystore"`
	SSLKeystorePassword             string `mapstructure:"ssl_keystore_password" yaml:"ssl_keystore_password" json:"ssl_keystore_password"`
}

// Builder 在 NewBuilder 默认值之上应用 Options
func (o *Options) Builder() (*Builder, error) {
	b := NewBuilder()
	if o.Address != "" {
		if _, err := b.SetAddress(o.Address); err != nil {
			return nil, err
		}
	}

	variant, err := ParseSocketVariant(o.SocketVariant)
	if err != nil {
		return nil, err
	}
	provider, err := ParseSSLProvider(o.SSLProvider)
	if err != nil {
		return nil, err
	}
	b.SetSocketVariant(variant).SetSSLProvider(provider)

	if o.ConnectTimeout != 0 {
		b.SetConnectTimeout(o.ConnectTimeout)
	}
	if o.CommandTimeout != 0 {
		b.SetCommandTimeout(o.CommandTimeout)
	}
	b.SetPassword(o.Password).
		SetDatabase(o.Database).
		SetClientName(o.ClientName).
		SetSSLTruststorePassword(o.SSLTruststorePassword).
		SetSSLKeystorePassword(o.SSLKeystorePassword)

	applyBool(o.ReadOnly, b.SetReadOnly)
	applyBool(o.KeepPubSubOrder, b.SetKeepPubSubOrder)
	applyBool(o.PingConnection, b.SetPingConnection)
	applyBool(o.KeepAlive, b.SetKeepAlive)
	applyBool(o.TCPNoDelay, b.SetTCPNoDelay)
	applyBool(o.SSLEnableEndpointIdentification, b.SetSSLEnableEndpointIdentification)

	if o.SSLTruststore != "" {
		u, err := url.Parse(o.SSLTruststore)
		if err != nil {
			return nil, xerrors.Wrapf(xerrors.ErrInvalidInput, "ssl_truststore %q: %v", o.SSLTruststore, err)
		}
		b.SetSSLTruststore(u)
	}
	if o.SSLKeystore != "" {
		u, err := url.Parse(o.SSLKeystore)
		if err != nil {
			return nil, xerrors.Wrapf(xerrors.ErrInvalidInput, "ssl_keystore %q: %v", o.SSLKeystore, err)
		}
		b.SetSSLKeystore(u)
	}
	return b, nil
}

func applyBool(v *bool, set func(bool) *Builder) {
	if v != nil {
		set(*v)
	}
}

// LoadOptions 从配置加载器读取 key 下的 Options 并生成 Builder
func LoadOptions(loader config.Loader, key string) (*Builder, error) {
	var o Options
	if err := loader.UnmarshalKey(key, &o); err != nil {
		return nil, xerrors.Wrapf(err, "load redis options %q", key)
	}
	return o.Builder()
}
