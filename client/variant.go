package client

import (
	"fmt"
	"strings"

	"github.com/ceyewan/redisclient/xerrors"
)

// SocketVariant 选择 socket 实现，由连接器在打开连接时解析
type SocketVariant int

const (
	// SocketTCP 双栈 TCP，默认值
	SocketTCP SocketVariant = iota
	// SocketTCP4 仅 IPv4
	SocketTCP4
	// SocketTCP6 仅 IPv6
	SocketTCP6
)

var socketVariantNames = map[SocketVariant]string{
	SocketTCP:  "tcp",
	SocketTCP4: "tcp4",
	SocketTCP6: "tcp6",
}

// String 返回变体名称，同时也是 net.Dial 使用的 network
func (v SocketVariant) String() string {
	if s, ok := socketVariantNames[v]; ok {
		return s
	}
	return fmt.Sprintf("SocketVariant(%d)", int(v))
}

// Network 返回 net.Dial 的 network 参数
func (v SocketVariant) Network() string {
	return v.String()
}

// Valid 是否为已知变体
func (v SocketVariant) Valid() bool {
	_, ok := socketVariantNames[v]
	return ok
}

// ParseSocketVariant 解析变体名称，大小写不敏感，空串为 SocketTCP
func ParseSocketVariant(s string) (SocketVariant, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return SocketTCP, nil
	}
	for v, n := range socketVariantNames {
		if n == name {
			return v, nil
		}
	}
	return SocketTCP, xerrors.Wrapf(xerrors.ErrInvalidInput, "unknown socket variant %q", s)
}

func (v SocketVariant) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, xerrors.Wrapf(xerrors.ErrInvalidInput, "unknown socket variant %d", int(v))
	}
	return []byte(v.String()), nil
}

func (v *SocketVariant) UnmarshalText(text []byte) error {
	parsed, err := ParseSocketVariant(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// SSLProvider 选择 TLS 实现家族
type SSLProvider int

const (
	// SSLProviderNative 使用标准库 crypto/tls，默认值
	SSLProviderNative SSLProvider = iota
	// SSLProviderThirdParty 使用连接器注入的第三方 TLS 实现
	SSLProviderThirdParty
)

var sslProviderNames = map[SSLProvider]string{
	SSLProviderNative:     "native",
	SSLProviderThirdParty: "third_party",
}

func (p SSLProvider) String() string {
	if s, ok := sslProviderNames[p]; ok {
		return s
	}
	return fmt.Sprintf("SSLProvider(%d)", int(p))
}

// Valid 是否为已知实现
func (p SSLProvider) Valid() bool {
	_, ok := sslProviderNames[p]
	return ok
}

// ParseSSLProvider 解析实现名称，接受 "native"/"jdk" 与 "third_party"/"openssl"，空串为 SSLProviderNative
func ParseSSLProvider(s string) (SSLProvider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "native", "jdk":
		return SSLProviderNative, nil
	case "third_party", "thirdparty", "openssl":
		return SSLProviderThirdParty, nil
	}
	return SSLProviderNative, xerrors.Wrapf(xerrors.ErrInvalidInput, "unknown ssl provider %q", s)
}

func (p SSLProvider) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, xerrors.Wrapf(xerrors.ErrInvalidInput, "unknown ssl provider %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *SSLProvider) UnmarshalText(text []byte) error {
	parsed, err := ParseSSLProvider(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
