// Package client 定义 Redis 客户端的连接配置模型。
//
// 配置分为两个阶段：
//   - 构建阶段：Builder 可变，通过链式 Setter 逐项设置参数
//   - 使用阶段：Build() 生成不可变的 *Config，交给 connector 打开连接
//
// 基本使用：
//
//	b, err := client.NewBuilder().SetAddress("redis.internal:6380")
//	if err != nil {
//		return err
//	}
//	cfg := b.SetDatabase(2).
//		SetClientName("order-service").
//		SetPingConnection(true).
//		Build()
//
//	conn, err := connector.NewRedis(cfg, connector.WithLogger(logger))
//
// 校验策略：
//
//	Setter 只做地址解析，超时、数据库编号等范围检查推迟到 Config.Validate，
//	由 connector 在打开连接时调用。
//
// 共享资源：
//
//	Executor、EventLoopGroup、Timer 以引用方式保存，配置从不关闭它们。
//	未显式设置时，默认的 Executor 与 EventLoopGroup 在首次访问时按 Builder 惰性创建一次，
//	同一 Builder 生成的所有 Config 共享这一对默认资源，不同 Builder 之间互不共享。
package client
