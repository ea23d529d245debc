package pipeline

import (
	"bufio"
	"context"
	"io"
	"strings"

	"go.uber.org/zap"
)

type Command int

const (
	CommandNone Command = iota
	CommandQuit
	CommandSave
	CommandAnalyze
)

func (c Command) String() string {
	switch c {
	case CommandQuit:
		return "quit"
	case CommandSave:
		return "save"
	case CommandAnalyze:
		return "analyze"
	default:
		return "none"
	}
}

// ParseCommand maps an operator key or word to a command.
func ParseCommand(input string) (Command, bool) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "q", "quit", "exit":
		return CommandQuit, true
	case "s", "save":
		return CommandSave, true
	case "t", "a", "analyze":
		return CommandAnalyze, true
	default:
		return CommandNone, false
	}
}

// CommandQueue buffers operator commands for the display worker. Commands that
// arrive while the buffer is full are dropped, except quit which waits for room.
type CommandQueue struct {
	ch chan Command
}

func NewCommandQueue(size int) *CommandQueue {
	if size < 1 {
		size = 1
	}
	return &CommandQueue{ch: make(chan Command, size)}
}

// Push reports whether the command was queued.
func (q *CommandQueue) Push(cmd Command) bool {
	select {
	case q.ch <- cmd:
		return true
	default:
	}
	if cmd != CommandQuit {
		return false
	}
	// Make room for quit by discarding the oldest pending command.
	select {
	case <-q.ch:
	default:
	}
	select {
	case q.ch <- cmd:
		return true
	default:
		return false
	}
}

// Poll returns one pending command without waiting.
func (q *CommandQueue) Poll() (Command, bool) {
	select {
	case cmd := <-q.ch:
		return cmd, true
	default:
		return CommandNone, false
	}
}

// ReadKeys turns lines read from r into commands until r is exhausted or ctx ends.
func ReadKeys(ctx context.Context, r io.Reader, q *CommandQueue, logger *zap.SugaredLogger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		cmd, ok := ParseCommand(line)
		if !ok {
			logger.Infow("unknown key, use q (quit), s (save) or t (analyze)", "input", line)
			continue
		}
		if !q.Push(cmd) {
			logger.Warnw("command dropped, queue full", "command", cmd)
		}
	}
}
