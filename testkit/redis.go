package testkit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/redisclient/client"
	"github.com/ceyewan/redisclient/connector"
)

// RedisAddrEnv 覆盖测试 Redis 地址的环境变量
const RedisAddrEnv = "REDISCLIENT_TEST_REDIS_ADDR"

// GetRedisBuilder 返回 Redis 测试配置的 Builder
// 默认连接 localhost:6379 的 DB 1，可通过 REDISCLIENT_TEST_REDIS_ADDR 覆盖地址
func GetRedisBuilder(t *testing.T) *client.Builder {
	t.Helper()
	addr := os.Getenv(RedisAddrEnv)
	if addr == "" {
		addr = "localhost:6379"
	}
	b, err := client.NewBuilder().SetAddress(addr)
	if err != nil {
		t.Fatalf("invalid redis address %q: %v", addr, err)
	}
	// 使用 DB 1 避免与默认的 DB 0 冲突
	return b.SetDatabase(1).
		SetClientName("redisclient-test").
		SetConnectTimeout(5 * time.Second).
		SetCommandTimeout(3 * time.Second)
}

// GetRedisConfig 返回 Redis 测试配置
func GetRedisConfig(t *testing.T) *client.Config {
	t.Helper()
	return GetRedisBuilder(t).Build()
}

// GetRedisConnector 使用给定配置创建并连接 Redis 连接器，cfg 为 nil 时使用 GetRedisConfig
func GetRedisConnector(t *testing.T, cfg *client.Config, opts ...connector.Option) connector.RedisConnector {
	t.Helper()
	if cfg == nil {
		cfg = GetRedisConfig(t)
	}
	opts = append([]connector.Option{connector.WithLogger(NewLogger())}, opts...)
	conn, err := connector.NewRedis(cfg, opts...)
	if err != nil {
		t.Fatalf("failed to create redis connector: %v", err)
	}

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	// 注册清理函数
	t.Cleanup(func() {
		_ = conn.Close()
	})

	return conn
}

// GetRedisClient 获取原生 Redis 客户端
func GetRedisClient(t *testing.T) *redis.Client {
	return GetRedisConnector(t, nil).GetClient()
}

// FlushRedis 清空 Redis 数据库（慎用！）
func FlushRedis(t *testing.T, rdb *redis.Client) {
	if err := rdb.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("failed to flush redis: %v", err)
	}
}
