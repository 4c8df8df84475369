package human

import (
	"context"
	"sync"
	"time"
)

// Throttle ограничивает число кликов в минуту. rpm <= 0: без ограничения.
type Throttle struct {
	rpm      int
	sleeper  Sleeper
	now      func() time.Time
	mu       sync.Mutex
	lastTime time.Time
	clicks   int
}

func NewThrottle(rpm int, sleeper Sleeper) *Throttle {
	if sleeper == nil {
		sleeper = RealSleeper()
	}
	return &Throttle{rpm: rpm, sleeper: sleeper, now: time.Now}
}

// Wait блокирует, пока в текущей минуте не освободится место для клика.
func (t *Throttle) Wait(ctx context.Context) error {
	if t.rpm <= 0 {
		return nil
	}

	t.mu.Lock()
	now := t.now()

	// Сброс счётчика, если минута прошла
	if now.Sub(t.lastTime) > time.Minute {
		t.clicks = 0
		t.lastTime = now
	}

	if t.clicks >= t.rpm {
		waitTime := time.Minute - now.Sub(t.lastTime)
		t.mu.Unlock()

		if err := t.sleeper.Sleep(ctx, waitTime); err != nil {
			return err
		}

		t.mu.Lock()
		t.clicks = 1
		t.lastTime = t.now()
		t.mu.Unlock()
		return nil
	}

	t.clicks++
	t.mu.Unlock()
	return nil
}
