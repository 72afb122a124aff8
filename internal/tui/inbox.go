package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// runMsg carries a func posted to the coordinator; Update runs it.
type runMsg func()

// Inbox is the coordinator Executor for the TUI: posted funcs are delivered
// to the bubbletea program as messages and run inside Update.
type Inbox struct {
	ch   chan func()
	done chan struct{}
	once sync.Once
}

func NewInbox() *Inbox {
	return &Inbox{ch: make(chan func(), 256), done: make(chan struct{})}
}

// Post queues fn. After Close it is dropped.
func (in *Inbox) Post(fn func()) {
	select {
	case in.ch <- fn:
	case <-in.done:
	}
}

func (in *Inbox) Close() { in.once.Do(func() { close(in.done) }) }

// next waits for the following posted func.
func (in *Inbox) next() tea.Cmd {
	return func() tea.Msg {
		select {
		case fn := <-in.ch:
			return runMsg(fn)
		case <-in.done:
			return nil
		}
	}
}
