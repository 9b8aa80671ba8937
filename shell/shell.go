// SPDX-License-Identifier: GPL-3.0-or-later

package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrBusy is returned by [*Shell.Exec] while another command runs.
	ErrBusy = errors.New("shell: a command is already running")

	// ErrClosed is returned by [*Shell.Exec] after [*Shell.Close].
	ErrClosed = errors.New("shell: closed")

	// ErrUnknownCommand is returned by [*Shell.Exec] for unknown commands.
	ErrUnknownCommand = errors.New("shell: unknown command")
)

// Poster runs functions on the event loop goroutine.
//
// The [*Shell] implements this interface.
type Poster interface {
	Post(fn func()) bool
}

// Shell is a cooperative command runtime. A single goroutine, the one
// running [*Shell.Run], executes commands, delivers events, and publishes
// notifications. Other goroutines hand work to it using [*Shell.Post].
//
// Only one command runs at a time: [*Shell.Exec] fails with [ErrBusy]
// until the running command calls [*Context.Finish].
//
// Construct using [New].
type Shell struct {
	// active is the running command or nil.
	active *Context

	// closed indicates that Close has run.
	closed bool

	// commands is the dispatch table.
	commands map[string]*Command

	// done is closed when Run returns.
	done chan struct{}

	// inputSize is the capacity of the input ring buffers.
	inputSize int

	// line accumulates a partial command line.
	line bytes.Buffer

	// logger is the logger to use.
	logger zerolog.Logger

	// newID generates invocation IDs.
	newID func() string

	// out is the output stream.
	out io.Writer

	// posted contains the functions to run on the loop.
	posted chan func()

	// prompt is printed when the shell is idle.
	prompt string

	// timer100ms ticks every 100 milliseconds while Run runs.
	timer100ms *Channel[time.Time]

	// timer1s ticks every second while Run runs.
	timer1s *Channel[time.Time]
}

// Option is an option for [New].
type Option func(cfg *config)

type config struct {
	inputSize int
	logger    zerolog.Logger
	newID     func() string
	postQueue int
	prompt    string
}

// DefaultInputBufferSize is the default capacity of the input ring buffer.
const DefaultInputBufferSize = 1024

// OptionLogger sets the logger.
func OptionLogger(logger zerolog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// OptionInputBufferSize sets the capacity of the input ring buffer.
func OptionInputBufferSize(size int) Option {
	return func(cfg *config) {
		cfg.inputSize = size
	}
}

// OptionPrompt sets the prompt printed when the shell is idle.
func OptionPrompt(prompt string) Option {
	return func(cfg *config) {
		cfg.prompt = prompt
	}
}

// OptionIDGenerator overrides how invocation IDs are generated.
func OptionIDGenerator(fn func() string) Option {
	return func(cfg *config) {
		cfg.newID = fn
	}
}

// New creates a new [*Shell] writing to the given output stream.
//
// The shell comes with a built-in "help" command.
func New(out io.Writer, options ...Option) *Shell {
	cfg := &config{
		inputSize: DefaultInputBufferSize,
		logger:    zerolog.Nop(),
		newID:     uuid.NewString,
		postQueue: 128,
	}
	for _, opt := range options {
		opt(cfg)
	}
	sh := &Shell{
		commands:   make(map[string]*Command),
		done:       make(chan struct{}),
		inputSize:  cfg.inputSize,
		logger:     cfg.logger,
		newID:      cfg.newID,
		out:        out,
		posted:     make(chan func(), cfg.postQueue),
		prompt:     cfg.prompt,
		timer100ms: NewChannel[time.Time]("timer100ms"),
		timer1s:    NewChannel[time.Time]("timer1s"),
	}
	sh.commands["help"] = &Command{
		Name:        "help",
		Description: "List the available commands.",
		Usage:       "help",
		Do:          sh.help,
	}
	return sh
}

// Timer1s returns the channel ticking every second.
func (sh *Shell) Timer1s() *Channel[time.Time] {
	return sh.timer1s
}

// Timer100ms returns the channel ticking every 100 milliseconds.
func (sh *Shell) Timer100ms() *Channel[time.Time] {
	return sh.timer100ms
}

// Register adds commands to the dispatch table.
func (sh *Shell) Register(cmds ...*Command) error {
	for _, cmd := range cmds {
		if cmd.Name == "" || cmd.Do == nil {
			return fmt.Errorf("shell: invalid command: %q", cmd.Name)
		}
		if _, found := sh.commands[cmd.Name]; found {
			return fmt.Errorf("shell: duplicate command: %s", cmd.Name)
		}
	}
	for _, cmd := range cmds {
		sh.commands[cmd.Name] = cmd
	}
	return nil
}

// Busy returns whether a command is running.
func (sh *Shell) Busy() bool {
	return sh.active != nil
}

// Exec parses and runs a command line.
func (sh *Shell) Exec(line string) error {
	args := strings.Fields(line)
	if len(args) <= 0 {
		return nil
	}
	if sh.closed {
		return ErrClosed
	}
	if sh.active != nil {
		return ErrBusy
	}
	cmd, found := sh.commands[args[0]]
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
	}

	id := sh.newID()
	cc := &Context{
		args:   args,
		cmd:    cmd,
		id:     id,
		logger: sh.logger.With().Str("cmd", cmd.Name).Str("invocation", id).Logger(),
		shell:  sh,
	}
	if cmd.Flags&FlagRedirectInput != 0 {
		cc.input = NewRingBuffer(sh.inputSize)
	}
	sh.active = cc
	cc.logger.Debug().Strs("args", args[1:]).Msg("shell: command started")
	cmd.Do(cc, args)
	return nil
}

// release is called by [*Context.Finish].
func (sh *Shell) release(cc *Context) {
	if sh.active != cc {
		return
	}
	sh.active = nil
	cc.logger.Debug().Msg("shell: command finished")
	sh.printPrompt()
}

// Input handles raw input. While the running command redirects input, the
// bytes go to its ring buffer followed by [EventInputData]. Otherwise, the
// bytes are split into command lines passed to [*Shell.Exec], and input
// arriving while a command runs is discarded.
func (sh *Shell) Input(data []byte) {
	for len(data) > 0 {
		if cc := sh.active; cc != nil {
			if cc.input == nil {
				cc.logger.Debug().Int("size", len(data)).Msg("shell: input discarded")
				return
			}
			sh.redirect(cc, data)
			return
		}

		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			sh.line.Write(data)
			return
		}
		sh.line.Write(data[:idx])
		data = data[idx+1:]
		line := sh.line.String()
		sh.line.Reset()

		switch err := sh.Exec(line); {
		case err != nil:
			fmt.Fprintf(sh.out, "%s\n", err)
			sh.printPrompt()
		case strings.TrimSpace(line) == "":
			sh.printPrompt()
		}
	}
}

// redirect writes data into the input ring buffer of cc, delivering
// [EventInputData] after each write so the command can drain the buffer.
// It stops when cc finishes or when a write makes no progress twice in
// a row, in which case the remaining bytes are dropped.
func (sh *Shell) redirect(cc *Context, data []byte) {
	stalled := false
	for len(data) > 0 && sh.active == cc {
		count := cc.input.Write(data)
		data = data[count:]
		if count == 0 && stalled {
			cc.logger.Warn().Int("dropped", len(data)).Msg("shell: input buffer full")
			return
		}
		stalled = count == 0
		sh.deliver(EventInputData)
	}
}

// Interrupt delivers [EventInterrupt] to the running command.
func (sh *Shell) Interrupt() {
	if sh.active == nil {
		sh.line.Reset()
		fmt.Fprintf(sh.out, "\n")
		sh.printPrompt()
		return
	}
	sh.deliver(EventInterrupt)
}

// Close delivers [EventExit] to the running command, finishes it if it is
// still running afterwards, and closes the notification channels. After
// Close, [*Shell.Run] returns and [*Shell.Exec] fails.
func (sh *Shell) Close() {
	if sh.closed {
		return
	}
	sh.closed = true
	if cc := sh.active; cc != nil {
		sh.deliver(EventExit)
		cc.Finish()
	}
	sh.timer1s.Close()
	sh.timer100ms.Close()
}

// Closed returns whether [*Shell.Close] has run.
func (sh *Shell) Closed() bool {
	return sh.closed
}

func (sh *Shell) deliver(ev Event) {
	cc := sh.active
	if cc == nil {
		return
	}
	cc.logger.Debug().Stringer("event", ev).Msg("shell: event")
	if cc.cmd.OnEvent != nil {
		cc.cmd.OnEvent(cc, ev)
		return
	}
	if ev&(EventInterrupt|EventExit) != 0 {
		cc.Finish()
	}
}

// Post schedules fn to run on the event loop. It is safe to call from any
// goroutine and returns false once [*Shell.Run] has returned.
func (sh *Shell) Post(fn func()) bool {
	select {
	case <-sh.done:
		return false
	default:
	}
	select {
	case sh.posted <- fn:
		return true
	case <-sh.done:
		return false
	}
}

// Run runs the event loop until the context is done or the shell is
// closed. When the context is done, Run closes the shell. Run must be
// called at most once.
func (sh *Shell) Run(ctx context.Context) error {
	defer close(sh.done)

	ticker1s := time.NewTicker(time.Second)
	defer ticker1s.Stop()
	ticker100ms := time.NewTicker(100 * time.Millisecond)
	defer ticker100ms.Stop()

	sh.printPrompt()
	for !sh.closed {
		select {
		case <-ctx.Done():
			sh.Close()
			return ctx.Err()

		case fn := <-sh.posted:
			fn()

		case now := <-ticker100ms.C:
			sh.timer100ms.Publish(now)

		case now := <-ticker1s.C:
			sh.timer1s.Publish(now)
		}
	}
	return nil
}

func (sh *Shell) printPrompt() {
	if sh.prompt != "" && !sh.closed {
		fmt.Fprint(sh.out, sh.prompt)
	}
}

func (sh *Shell) help(cc *Context, args []string) {
	names := make([]string, 0, len(sh.commands))
	for name := range sh.commands {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		cmd := sh.commands[name]
		cc.Printf("%-10s %s\n", name, cmd.Description)
		cc.Printf("%-10s usage: %s\n", "", cmd.Usage)
	}
	cc.Finish()
}
