// SPDX-License-Identifier: GPL-3.0-or-later

package shell

import (
	"fmt"
	"io"

	"github.com/bassosimone/runtimex"
	"github.com/rs/zerolog"
)

// Context is the state of one command invocation.
//
// Construct using [*Shell.Exec].
type Context struct {
	// args contains the command line arguments.
	args []string

	// cmd is the command being run.
	cmd *Command

	// finished indicates that Finish has run.
	finished bool

	// id identifies the invocation in logs.
	id string

	// input is the input ring buffer or nil.
	input *RingBuffer

	// logger is the invocation logger.
	logger zerolog.Logger

	// session is the attached session or nil.
	session Session

	// shell is the shell running us.
	shell *Shell
}

// Args returns the command line arguments, including the command name.
func (cc *Context) Args() []string {
	return cc.args
}

// ID returns the unique invocation ID.
func (cc *Context) ID() string {
	return cc.id
}

// Logger returns the invocation logger.
func (cc *Context) Logger() *zerolog.Logger {
	return &cc.logger
}

// Stream returns the output stream.
func (cc *Context) Stream() io.Writer {
	return cc.shell.out
}

// Printf formats to the output stream.
func (cc *Context) Printf(format string, args ...any) {
	fmt.Fprintf(cc.shell.out, format, args...)
}

// PrintUsage prints the command usage.
func (cc *Context) PrintUsage() {
	cc.Printf("Usage: %s\n", cc.cmd.Usage)
}

// Input returns the input ring buffer and the number of readable bytes.
// It returns nil and zero for commands without [FlagRedirectInput].
func (cc *Context) Input() (*RingBuffer, int) {
	if cc.input == nil {
		return nil, 0
	}
	return cc.input, cc.input.Len()
}

// Attach makes the given [Session] the state of this invocation.
//
// Attaching a second session or attaching after [*Context.Finish]
// is a programming error.
func (cc *Context) Attach(sess Session) {
	runtimex.Assert(!cc.finished && cc.session == nil && sess != nil)
	cc.session = sess
}

// Session returns the attached [Session] or nil.
func (cc *Context) Session() Session {
	return cc.session
}

// SessionAs returns the attached [Session] as a T.
func SessionAs[T Session](cc *Context) (T, bool) {
	sess, ok := cc.session.(T)
	return sess, ok
}

// Finished returns whether [*Context.Finish] has run.
func (cc *Context) Finished() bool {
	return cc.finished
}

// Finish terminates the invocation. It detaches and closes the session,
// if any, and then tells the shell that the command is done. Calling
// Finish again is a no-op, so the session is closed at most once.
func (cc *Context) Finish() {
	if cc.finished {
		return
	}
	cc.finished = true
	if sess := cc.session; sess != nil {
		cc.session = nil
		sess.Close()
	}
	cc.shell.release(cc)
}
