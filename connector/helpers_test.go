package connector

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ceyewan/redisclient/client"
	"github.com/ceyewan/redisclient/metrics"
)

// ============================================================================
// 指标
// ============================================================================

// recordingMeter 记录每个指标最近一次的值，按 "name|label=value|..." 索引
type recordingMeter struct {
	mu     sync.Mutex
	values map[string]float64
}

func newRecordingMeter() *recordingMeter {
	return &recordingMeter{values: make(map[string]float64)}
}

func (m *recordingMeter) key(name string, labels []metrics.Label) string {
	parts := []string{name}
	for _, l := range labels {
		parts = append(parts, l.Key+"="+l.Value)
	}
	return strings.Join(parts, "|")
}

func (m *recordingMeter) add(name string, labels []metrics.Label, delta float64, set bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(name, labels)
	if set {
		m.values[k] = delta
		return
	}
	m.values[k] += delta
}

func (m *recordingMeter) get(key string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key]
}

func (m *recordingMeter) Counter(name, _ string, _ ...metrics.MetricOption) (metrics.Counter, error) {
	return &recordingInstrument{m: m, name: name}, nil
}

func (m *recordingMeter) Gauge(name, _ string, _ ...metrics.MetricOption) (metrics.Gauge, error) {
	return &recordingInstrument{m: m, name: name}, nil
}

func (m *recordingMeter) Histogram(name, _ string, _ ...metrics.MetricOption) (metrics.Histogram, error) {
	return &recordingInstrument{m: m, name: name}, nil
}

func (m *recordingMeter) Shutdown(context.Context) error { return nil }

type recordingInstrument struct {
	m    *recordingMeter
	name string
}

func (r *recordingInstrument) Inc(_ context.Context, labels ...metrics.Label) {
	r.m.add(r.name, labels, 1, false)
}

func (r *recordingInstrument) Dec(_ context.Context, labels ...metrics.Label) {
	r.m.add(r.name, labels, -1, false)
}

func (r *recordingInstrument) Add(_ context.Context, val float64, labels ...metrics.Label) {
	r.m.add(r.name, labels, val, false)
}

func (r *recordingInstrument) Set(_ context.Context, val float64, labels ...metrics.Label) {
	r.m.add(r.name, labels, val, true)
}

// Record 直方图记录次数
func (r *recordingInstrument) Record(_ context.Context, _ float64, labels ...metrics.Label) {
	r.m.add(r.name, labels, 1, false)
}

// ============================================================================
// 共享资源
// ============================================================================

// manualTimer 保存调度的任务，由测试手动触发
type manualTimer struct {
	mu    sync.Mutex
	tasks []*manualTimeout
}

type manualTimeout struct {
	d       time.Duration
	f       func()
	stopped atomic.Bool
}

func (t *manualTimeout) Stop() bool {
	return t.stopped.CompareAndSwap(false, true)
}

func (m *manualTimer) AfterFunc(d time.Duration, f func()) client.Timeout {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := &manualTimeout{d: d, f: f}
	m.tasks = append(m.tasks, task)
	return task
}

func (m *manualTimer) scheduled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

func (m *manualTimer) last() *manualTimeout {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[len(m.tasks)-1]
}

// fire 执行最近一次调度且未取消的任务
func (m *manualTimer) fire() bool {
	task := m.last()
	if task.stopped.Load() {
		return false
	}
	task.f()
	return true
}

// countingExecutor 统计 Submit 次数
type countingExecutor struct {
	*client.WorkerPool
	submits atomic.Int32
}

func newCountingExecutor() *countingExecutor {
	return &countingExecutor{WorkerPool: client.NewWorkerPool(4)}
}

func (e *countingExecutor) Submit(ctx context.Context, task func()) error {
	e.submits.Add(1)
	return e.WorkerPool.Submit(ctx, task)
}

// optionGroup 记录拨号参数与 TCP 选项
type optionGroup struct {
	inner    *client.NetpollGroup
	mu       sync.Mutex
	networks []string
	conns    []*optionConn
}

func newOptionGroup() *optionGroup {
	return &optionGroup{inner: client.NewEventLoopGroup()}
}

func (g *optionGroup) Dial(ctx context.Context, network, addr string) (net.Conn, error) {
	// 回环监听只在 IPv4 上，统一按 tcp 拨号
	conn, err := g.inner.Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	oc := &optionConn{Conn: conn}
	g.mu.Lock()
	g.networks = append(g.networks, network)
	g.conns = append(g.conns, oc)
	g.mu.Unlock()
	return oc, nil
}

func (g *optionGroup) first() (string, *optionConn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.networks[0], g.conns[0]
}

type optionConn struct {
	net.Conn
	keepAlive atomic.Bool
	noDelay   atomic.Bool
	applied   atomic.Int32
}

func (c *optionConn) SetKeepAlive(v bool) error {
	c.keepAlive.Store(v)
	c.applied.Add(1)
	return nil
}

func (c *optionConn) SetNoDelay(v bool) error {
	c.noDelay.Store(v)
	c.applied.Add(1)
	return nil
}

// passthroughTLS 记录握手次数，直接返回原连接
type passthroughTLS struct {
	handshakes atomic.Int32
}

func (p *passthroughTLS) Handshake(_ context.Context, conn net.Conn, _ *client.Config) (net.Conn, error) {
	p.handshakes.Add(1)
	return conn, nil
}

// ============================================================================
// 证书
// ============================================================================

// writeSelfSignedCert 生成自签名证书，返回证书文件与私钥文件路径
func writeSelfSignedCert(t *testing.T, hosts ...string) (certFile, keyFile string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: "connector-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile
}
