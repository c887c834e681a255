package thermal

import (
	"context"
	"errors"
)

var ErrLoopStopped = errors.New("thermal loop is not running")

type command struct {
	ctx   context.Context
	fn    func(ctx context.Context, m *Manager) error
	reply chan error
}

// Loop owns the goroutine that calls Task. Commands that must run on that
// goroutine, like Autotune and WaitFor, are handed over with Do.
type Loop struct {
	manager  *Manager
	commands chan command
	done     chan struct{}
}

func NewLoop(manager *Manager) *Loop {
	return &Loop{
		manager:  manager,
		commands: make(chan command),
		done:     make(chan struct{}),
	}
}

func (l *Loop) Manager() *Manager {
	return l.manager
}

// Run pumps Idle and executes commands until ctx is done.
// All heaters are switched off when it returns.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	defer l.manager.DisableAll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-l.commands:
			c.reply <- c.fn(c.ctx, l.manager)
		default:
			l.manager.Idle()
		}
	}
}

// Do runs fn on the loop goroutine and waits for its result. fn receives the
// context given to Do and must return once it is done.
func (l *Loop) Do(ctx context.Context, fn func(ctx context.Context, m *Manager) error) error {
	c := command{ctx: ctx, fn: fn, reply: make(chan error, 1)}
	select {
	case l.commands <- c:
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	return <-c.reply
}

func (l *Loop) Autotune(ctx context.Context, request AutotuneRequest) (*AutotuneReport, error) {
	var report *AutotuneReport
	err := l.Do(ctx, func(ctx context.Context, m *Manager) error {
		var err error
		report, err = m.Autotune(ctx, request)
		return err
	})
	return report, err
}

func (l *Loop) WaitFor(ctx context.Context, id ChannelId, policy WaitPolicy) (bool, error) {
	var settled bool
	err := l.Do(ctx, func(ctx context.Context, m *Manager) error {
		var err error
		settled, err = m.WaitFor(ctx, id, policy)
		return err
	})
	return settled, err
}
