package connector

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/redisclient/clog"
)

// Subscription 一次频道订阅
//
// 订阅 ctx 取消时会自动关闭底层连接，Close 可重复调用。
type Subscription struct {
	pubsub *redis.PubSub
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Close 取消订阅并等待分发协程退出
func (s *Subscription) Close() error {
	err := s.release()
	<-s.done
	return err
}

func (s *Subscription) release() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.pubsub.Close()
	})
	return s.closeErr
}

// Done 分发协程退出时关闭
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Subscribe 订阅频道并启动分发协程
func (c *redisConnector) Subscribe(ctx context.Context, handler MessageHandler, channels ...string) (*Subscription, error) {
	if c.closed.Load() {
		return nil, ErrAlreadyClosed
	}
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}

	ps := c.client.Subscribe(ctx, channels...)
	// 等待订阅确认，确保返回后不会丢失消息
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, wrapErr(c.opts.name, ErrConnection, err)
	}

	sub := &Subscription{pubsub: ps, done: make(chan struct{})}
	go c.dispatch(ctx, sub, handler)
	return sub, nil
}

func (c *redisConnector) dispatch(ctx context.Context, sub *Subscription, handler MessageHandler) {
	defer close(sub.done)

	ordered := c.cfg.KeepPubSubOrder()
	ch := sub.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			if err := sub.release(); err != nil {
				c.logger.Debug("close subscription", clog.Error(err))
			}
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if ordered {
				handler(ctx, msg)
				continue
			}
			if err := c.executor.Submit(ctx, func() { handler(ctx, msg) }); err != nil {
				c.dropWarn.Do(func() {
					c.logger.Warn("dropped pubsub message", clog.String("channel", msg.Channel), clog.Error(err))
				})
			}
		}
	}
}
