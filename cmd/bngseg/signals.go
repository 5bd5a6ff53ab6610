package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// interrupter turns the first Ctrl+C during path recording into the end
// of the recording. Any other interrupt cancels the whole run.
type interrupter struct {
	mu           sync.Mutex
	cancelRun    context.CancelFunc
	cancelRecord context.CancelFunc

	sigs chan os.Signal
	done chan struct{}
}

func withInterrupts(parent context.Context) (context.Context, *interrupter) {
	ctx, cancel := context.WithCancel(parent)
	i := &interrupter{
		cancelRun: cancel,
		sigs:      make(chan os.Signal, 1),
		done:      make(chan struct{}),
	}
	signal.Notify(i.sigs, os.Interrupt, syscall.SIGTERM)
	go i.loop()
	return ctx, i
}

func (i *interrupter) loop() {
	for {
		select {
		case sig := <-i.sigs:
			i.handle(sig)
		case <-i.done:
			return
		}
	}
}

func (i *interrupter) handle(sig os.Signal) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if sig == os.Interrupt && i.cancelRecord != nil {
		i.cancelRecord()
		i.cancelRecord = nil
		return
	}
	i.cancelRun()
}

// RecordContext returns a context that the next interrupt cancels instead
// of the run.
func (i *interrupter) RecordContext(ctx context.Context) (context.Context, context.CancelFunc) {
	rctx, cancel := context.WithCancel(ctx)

	i.mu.Lock()
	i.cancelRecord = cancel
	i.mu.Unlock()

	return rctx, func() {
		i.mu.Lock()
		i.cancelRecord = nil
		i.mu.Unlock()
		cancel()
	}
}

func (i *interrupter) stop() {
	signal.Stop(i.sigs)
	close(i.done)
	i.cancelRun()
}
