package scheduler

import (
	"sync"
	"time"
)

// Clock 统一取当前时间，测试中可注入固定时钟
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// Scheduler 周期任务抽象。Every 启动周期执行并返回取消函数，
// 取消函数可以被重复调用。
type Scheduler interface {
	Every(interval time.Duration, fn func()) (stop func())
}

type TickerScheduler struct{}

func (TickerScheduler) Every(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
		})
	}
}
