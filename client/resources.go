package client

import (
	"context"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ceyewan/redisclient/xerrors"
)

// ErrExecutorClosed 向已关闭的 WorkerPool 提交任务
var ErrExecutorClosed = xerrors.New("client: executor closed")

// Executor 共享的任务执行器，用于回调分发与后台探活。
//
// 实现必须并发安全。配置只持有引用，从不关闭 Executor。
type Executor interface {
	// Submit 提交任务，在 ctx 取消前阻塞等待空闲槽位
	Submit(ctx context.Context, task func()) error
}

// EventLoopGroup 共享的 I/O 拨号组，连接器通过它建立底层 socket。
type EventLoopGroup interface {
	Dial(ctx context.Context, network, addr string) (net.Conn, error)
}

// Timer 共享的定时调度器。
type Timer interface {
	// AfterFunc 在 d 之后于独立 goroutine 中执行 f
	AfterFunc(d time.Duration, f func()) Timeout
}

// Timeout 一次已调度的定时任务。
type Timeout interface {
	// Stop 取消任务，任务已执行或已取消时返回 false
	Stop() bool
}

// ============================================================================
// WorkerPool
// ============================================================================

// DefaultWorkers 默认 Executor 的并发上限
func DefaultWorkers() int {
	return 2 * runtime.NumCPU()
}

// WorkerPool 基于加权信号量的有界 goroutine 池
type WorkerPool struct {
	sem  *semaphore.Weighted
	size int
	wg   sync.WaitGroup

	// mu 保证 closed 置位之后不会再有 wg.Add
	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool 创建并发上限为 size 的 WorkerPool，size <= 0 时使用 DefaultWorkers()
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = DefaultWorkers()
	}
	return &WorkerPool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// Size 返回并发上限
func (p *WorkerPool) Size() int {
	return p.size
}

// Submit 获取一个槽位后异步执行 task
func (p *WorkerPool) Submit(ctx context.Context, task func()) error {
	if p.isClosed() {
		return ErrExecutorClosed
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return xerrors.Wrap(err, "acquire worker")
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		p.sem.Release(1)
		return ErrExecutorClosed
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		task()
	}()
	return nil
}

// Wait 阻塞直到所有已提交任务完成
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

// Shutdown 拒绝新任务并等待已提交任务完成，由资源的创建者调用
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *WorkerPool) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// ============================================================================
// NetpollGroup
// ============================================================================

// NetpollGroup 默认 EventLoopGroup，通过 net.Dialer 拨号，socket 由 Go 运行时 netpoller 驱动。
type NetpollGroup struct {
	dialer net.Dialer
	active atomic.Int64
}

// NewEventLoopGroup 创建默认 EventLoopGroup
func NewEventLoopGroup() *NetpollGroup {
	return &NetpollGroup{
		// 由连接器按配置显式设置 keepalive
		dialer: net.Dialer{KeepAlive: -1},
	}
}

// Dial 建立连接，返回的 net.Conn 关闭时计数减一
func (g *NetpollGroup) Dial(ctx context.Context, network, addr string) (net.Conn, error) {
	conn, err := g.dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	g.active.Add(1)
	return &trackedConn{Conn: conn, group: g}, nil
}

// ActiveConns 当前由该组打开且未关闭的连接数
func (g *NetpollGroup) ActiveConns() int64 {
	return g.active.Load()
}

type trackedConn struct {
	net.Conn
	group *NetpollGroup
	once  sync.Once
}

func (c *trackedConn) Close() error {
	c.once.Do(func() { c.group.active.Add(-1) })
	return c.Conn.Close()
}

// NetConn 返回底层连接，用于设置 TCP 选项
func (c *trackedConn) NetConn() net.Conn {
	return c.Conn
}

// ============================================================================
// Timer
// ============================================================================

type stdTimer struct{}

// NewTimer 返回基于 time.AfterFunc 的 Timer
func NewTimer() Timer {
	return stdTimer{}
}

func (stdTimer) AfterFunc(d time.Duration, f func()) Timeout {
	return time.AfterFunc(d, f)
}

// ============================================================================
// 默认资源
// ============================================================================

// 默认资源构造函数，测试中可替换以统计创建次数
var (
	newDefaultExecutor       = func() Executor { return NewWorkerPool(DefaultWorkers()) }
	newDefaultEventLoopGroup = func() EventLoopGroup { return NewEventLoopGroup() }
)

// defaultResources 一个 Builder 惰性创建的默认资源，由其生成的所有 Config 共享
type defaultResources struct {
	executorOnce sync.Once
	executor     Executor
	groupOnce    sync.Once
	group        EventLoopGroup
}

func (d *defaultResources) getExecutor() Executor {
	d.executorOnce.Do(func() {
		d.executor = newDefaultExecutor()
	})
	return d.executor
}

func (d *defaultResources) getEventLoopGroup() EventLoopGroup {
	d.groupOnce.Do(func() {
		d.group = newDefaultEventLoopGroup()
	})
	return d.group
}
