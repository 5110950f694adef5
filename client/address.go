package client

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/ceyewan/redisclient/xerrors"
)

const (
	// DefaultScheme 未指定 scheme 时使用的协议
	DefaultScheme = "redis"
	// TLSScheme 启用 TLS 的协议
	TLSScheme = "rediss"
	// DefaultPort 未指定端口时使用的端口
	DefaultPort = 6379

	// CodeMalformedAddress 地址解析失败的错误码
	CodeMalformedAddress = "MALFORMED_ADDRESS"
)

// ErrMalformedAddress 地址无法解析为带主机名的 URI
var ErrMalformedAddress = xerrors.New("client: malformed address")

// ParseAddress 将地址字符串规范化为 URI。
//
// 接受 "host"、"host:port"、"[::1]:port" 以及带 scheme 的 "rediss://host:port"。
// 缺少 scheme 时补全为 redis，缺少端口时补全为 6379。
// 失败时返回包装了 ErrMalformedAddress 的错误，错误码为 MALFORMED_ADDRESS。
func ParseAddress(addr string) (*url.URL, error) {
	raw := strings.TrimSpace(addr)
	if raw == "" {
		return nil, malformed(addr, "empty address")
	}
	if !strings.Contains(raw, "://") {
		raw = DefaultScheme + "://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, malformed(addr, err.Error())
	}
	if u.Scheme == "" {
		return nil, malformed(addr, "missing scheme")
	}

	host := u.Hostname()
	if host == "" || strings.ContainsAny(host, " \t") {
		return nil, malformed(addr, "missing host")
	}
	// IPv6 地址必须带方括号
	if strings.Contains(host, ":") && !strings.HasPrefix(u.Host, "[") {
		return nil, malformed(addr, "invalid host "+host)
	}

	port := u.Port()
	if port == "" {
		// 形如 "host:" 的空端口
		if strings.HasSuffix(u.Host, ":") {
			return nil, malformed(addr, "empty port")
		}
		u.Host = net.JoinHostPort(host, strconv.Itoa(DefaultPort))
	} else {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return nil, malformed(addr, "invalid port "+port)
		}
	}
	return u, nil
}

func malformed(addr, reason string) error {
	return xerrors.WithCode(xerrors.Wrapf(ErrMalformedAddress, "%q: %s", addr, reason), CodeMalformedAddress)
}

// hostPortAddress 根据主机与端口合成带默认 scheme 的地址字符串
func hostPortAddress(host string, port int) string {
	return DefaultScheme + "://" + net.JoinHostPort(host, strconv.Itoa(port))
}

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	c := *u
	if u.User != nil {
		user := *u.User
		c.User = &user
	}
	return &c
}
