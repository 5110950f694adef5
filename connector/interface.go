// Package connector 是 Redis 连接的建立者，消费 client.Config 并持有存活的 *redis.Client。
//
// 核心特性：
//   - 打开时校验：NewRedis 调用 Config.Validate，配置的范围检查在这里统一失败
//   - 共享资源：通过 Config 的 EventLoopGroup 拨号、Executor 分发回调、Timer 调度探活
//   - TLS：rediss 地址或配置了证书库时启用，支持注入第三方 TLS 实现
//   - 健康检查：pingConnection 开启时周期性探活，IsHealthy 读取缓存状态
//   - 发布订阅：keepPubSubOrder 开启时按序同步分发，否则提交到 Executor 并发分发
//
// 基本使用：
//
//	b, err := client.NewBuilder().SetAddress("127.0.0.1:6379")
//	if err != nil {
//		panic(err)
//	}
//	conn, err := connector.NewRedis(b.Build(), connector.WithLogger(logger))
//	if err != nil {
//		panic(err)
//	}
//	defer conn.Close()
//
//	if err := conn.Connect(ctx); err != nil {
//		panic(err)
//	}
//	rdb := conn.GetClient()
//	result, err := rdb.Get(ctx, "key").Result()
//
// 资源所有权：
//
//	Connector 拥有底层连接的生命周期，应通过 defer 确保 Close() 被调用。
//	Executor、EventLoopGroup、Timer 由其创建者负责关闭，Connector 从不关闭它们。
package connector

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/redisclient/client"
)

// Connector 定义连接器的通用行为，所有方法并发安全。
type Connector interface {
	// Connect 建立连接。
	//
	// 此方法是幂等的，首次成功后再次调用直接返回 nil。
	//
	// 返回错误：
	//   - ErrConnection: 连接建立失败
	//   - ErrAlreadyClosed: 连接器已关闭
	Connect(ctx context.Context) error

	// Close 关闭连接并释放资源，可重复调用。
	Close() error

	// HealthCheck 发送 PING 并更新健康状态缓存。
	//
	// 返回错误：
	//   - ErrNotConnected: 尚未 Connect
	//   - ErrAlreadyClosed: 连接器已关闭
	//   - ErrHealthCheck: 健康检查失败
	HealthCheck(ctx context.Context) error

	// IsHealthy 返回缓存的健康状态，无阻塞
	IsHealthy() bool

	// Name 返回连接实例名称，用于日志与指标
	Name() string
}

// TypedConnector 提供类型安全的客户端访问。
type TypedConnector[T any] interface {
	Connector

	// GetClient 返回底层客户端实例
	GetClient() T
}

// MessageHandler 处理一条发布订阅消息
type MessageHandler func(ctx context.Context, msg *redis.Message)

// RedisConnector Redis 连接器接口。
type RedisConnector interface {
	TypedConnector[*redis.Client]

	// Config 返回打开连接所用的配置
	Config() *client.Config

	// Subscribe 订阅频道，消息按 keepPubSubOrder 的设置分发给 handler。
	// ctx 取消或 Subscription.Close 后停止分发。
	Subscribe(ctx context.Context, handler MessageHandler, channels ...string) (*Subscription, error)
}
