package app

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"coupon-clipper/internal/observability"
)

// Interrupts: запрос паузы от оператора (Ctrl+C).
// Флаг читает цикл между купонами, канал: ожидание ввода.
type Interrupts struct {
	pending atomic.Bool
	ch      chan struct{}
}

func NewInterrupts() *Interrupts {
	return &Interrupts{ch: make(chan struct{}, 1)}
}

// Raise поднимает флаг паузы. Повторные нажатия до обработки не копятся.
func (i *Interrupts) Raise() {
	i.pending.Store(true)
	select {
	case i.ch <- struct{}{}:
	default:
	}
}

// Take забирает запрос паузы, если он есть.
func (i *Interrupts) Take() bool {
	select {
	case <-i.ch:
	default:
	}
	return i.pending.Swap(false)
}

// C срабатывает при Ctrl+C; его слушает console.Prompter.
func (i *Interrupts) C() <-chan struct{} {
	return i.ch
}

// WatchSignals запускает мониторинг OS сигналов.
// SIGINT превращается в запрос паузы, SIGTERM отменяет возвращённый context.
func WatchSignals(parent context.Context, logger *observability.Logger, interrupts *Interrupts) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	// Канал для сигналов ОС
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigChan:
				if sig == syscall.SIGINT {
					logger.Info("Pause requested", "signal", sig.String())
					interrupts.Raise()
					continue
				}
				logger.Info("Shutdown signal received", "signal", sig.String())
				cancel()
				return
			}
		}
	}()

	return ctx, cancel
}
