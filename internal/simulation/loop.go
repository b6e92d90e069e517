package simulation

import (
	"context"
	"time"
)

// StepFunc advances the director by one fixed timestep. tick counts completed
// steps starting at 1.
type StepFunc func(tick uint64, step time.Duration)

// Loop drives a fixed timestep update at the configured target frequency. Steps
// run sequentially on a single goroutine; a slow step delays the next one.
type Loop struct {
	step     time.Duration
	stepFunc StepFunc
	monitor  *TickMonitor
	ticks    uint64
	ticker   *time.Ticker
	done     chan struct{}
}

// NewLoop configures a loop that targets the provided frames per second. A nil
// monitor disables timing collection; otherwise the step interval becomes its
// overrun budget.
func NewLoop(targetHz float64, step StepFunc, monitor *TickMonitor) *Loop {
	if targetHz <= 0 {
		targetHz = 30
	}
	if step == nil {
		step = func(uint64, time.Duration) {}
	}
	interval := time.Duration(float64(time.Second) / targetHz)
	if interval <= 0 {
		interval = time.Second / 30
	}
	monitor.adoptBudget(interval)
	return &Loop{
		step:     interval,
		stepFunc: step,
		monitor:  monitor,
	}
}

// Start begins ticking until the context is cancelled or Stop is invoked.
func (l *Loop) Start(ctx context.Context) {
	if l == nil || l.stepFunc == nil {
		return
	}

	l.ticker = time.NewTicker(l.step)
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		defer l.ticker.Stop()
		last := time.Now()
		accumulator := time.Duration(0)
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-l.ticker.C:
				//1.- Accumulate elapsed time and run fixed steps while catching up.
				accumulator += now.Sub(last)
				last = now
				for accumulator >= l.step {
					l.runStep()
					accumulator -= l.step
				}
			}
		}
	}()
}

func (l *Loop) runStep() {
	started := time.Now()
	l.ticks++
	l.stepFunc(l.ticks, l.step)
	//1.- Record how long the step itself took so stalls in collaborators surface in metrics.
	l.monitor.Observe(time.Since(started))
}

// Stop cancels the loop and waits for the goroutine to exit.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	if l.ticker != nil {
		l.ticker.Stop()
	}
	if l.done != nil {
		<-l.done
		l.done = nil
	}
}

// StepDuration exposes the configured timestep for testing.
func (l *Loop) StepDuration() time.Duration {
	if l == nil {
		return 0
	}
	return l.step
}
