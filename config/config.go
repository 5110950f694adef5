package config

import (
	"context"
	"fmt"
)

// New 创建配置加载器，需调用 Load 后才能读取配置
func New(opts ...Option) (Loader, error) {
	return newLoader(opts...)
}

// MustLoad 创建并加载配置，失败时 panic，仅用于初始化阶段
func MustLoad(opts ...Option) Loader {
	l, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	if err := l.Load(context.Background()); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return l
}
