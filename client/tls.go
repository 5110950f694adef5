package client

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"net/url"
	"os"
	"strings"

	"golang.org/x/crypto/pkcs12"

	"github.com/ceyewan/redisclient/xerrors"
)

// storeMaterial 证书库中读取的 PEM 数据
type storeMaterial struct {
	certs []byte
	key   []byte
}

// TLSConfig 根据证书库配置生成 crypto/tls 配置，仅适用于 SSLProviderNative。
//
// 证书库可以是 PEM 文件或 PKCS#12 文件，密码仅用于 PKCS#12。
// 关闭 endpoint identification 时仍校验证书链，只跳过主机名校验。
func (c *Config) TLSConfig() (*tls.Config, error) {
	if c.sslProvider != SSLProviderNative {
		return nil, xerrors.Wrapf(ErrInvalidConfig, "ssl provider %s has no native tls config", c.sslProvider)
	}

	tc := &tls.Config{MinVersion: tls.VersionTLS12}
	if c.address != nil {
		tc.ServerName = c.address.Hostname()
	}

	if c.sslTruststore != nil {
		m, err := readStore(c.sslTruststore, c.sslTruststorePassword)
		if err != nil {
			return nil, xerrors.Wrap(err, "load truststore")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(m.certs) {
			return nil, xerrors.Wrapf(ErrInvalidConfig, "truststore %s contains no certificates", c.sslTruststore)
		}
		tc.RootCAs = pool
	}

	if c.sslKeystore != nil {
		m, err := readStore(c.sslKeystore, c.sslKeystorePassword)
		if err != nil {
			return nil, xerrors.Wrap(err, "load keystore")
		}
		cert, err := tls.X509KeyPair(m.certs, m.key)
		if err != nil {
			return nil, xerrors.Wrapf(err, "keystore %s", c.sslKeystore)
		}
		tc.Certificates = []tls.Certificate{cert}
	}

	if !c.sslEnableEndpointIdentification {
		roots := tc.RootCAs
		tc.InsecureSkipVerify = true
		tc.VerifyConnection = func(cs tls.ConnectionState) error {
			return verifyChain(cs, roots)
		}
	}
	return tc, nil
}

// verifyChain 校验服务端证书链，不校验主机名
func verifyChain(cs tls.ConnectionState, roots *x509.CertPool) error {
	if len(cs.PeerCertificates) == 0 {
		return xerrors.New("tls: server presented no certificates")
	}
	opts := x509.VerifyOptions{
		Roots:         roots,
		Intermediates: x509.NewCertPool(),
	}
	for _, cert := range cs.PeerCertificates[1:] {
		opts.Intermediates.AddCert(cert)
	}
	_, err := cs.PeerCertificates[0].Verify(opts)
	return err
}

// readStore 读取 file:// URL 或普通路径指向的证书库
func readStore(u *url.URL, password string) (storeMaterial, error) {
	path, err := storePath(u)
	if err != nil {
		return storeMaterial{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return storeMaterial{}, xerrors.Wrapf(err, "read %s", path)
	}

	if bytes.Contains(data, []byte("-----BEGIN")) {
		return splitPEM(data), nil
	}

	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		return storeMaterial{}, xerrors.Wrapf(err, "decode pkcs12 %s", path)
	}
	var buf bytes.Buffer
	for _, b := range blocks {
		if err := pem.Encode(&buf, b); err != nil {
			return storeMaterial{}, err
		}
	}
	return splitPEM(buf.Bytes()), nil
}

func storePath(u *url.URL) (string, error) {
	switch u.Scheme {
	case "", "file":
		// file://certs/ca.pem 会把 certs 解析为主机名
		if u.Host != "" && u.Host != "localhost" {
			return "", xerrors.Wrapf(ErrInvalidConfig, "store location %s has host %q, use file:///path", u, u.Host)
		}
		if u.Path != "" {
			return u.Path, nil
		}
		if u.Opaque != "" {
			return u.Opaque, nil
		}
	}
	return "", xerrors.Wrapf(ErrInvalidConfig, "unsupported store location %s", u)
}

// splitPEM 将 PEM 数据分为证书与私钥两部分
func splitPEM(data []byte) storeMaterial {
	var m storeMaterial
	var certs, keys bytes.Buffer
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		switch {
		case block.Type == "CERTIFICATE":
			_ = pem.Encode(&certs, block)
		case strings.HasSuffix(block.Type, "PRIVATE KEY"):
			_ = pem.Encode(&keys, block)
		}
	}
	m.certs = certs.Bytes()
	m.key = keys.Bytes()
	return m
}
