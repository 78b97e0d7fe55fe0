package escalation

import "time"

// Clock 时间源抽象，倒计时逻辑依赖注入的时钟以便测试
type Clock interface {
	Now() time.Time
}

// SystemClock 系统时钟
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
