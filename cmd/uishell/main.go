// SPDX-License-Identifier: GPL-3.0-or-later

// Command uishell runs the network shell on a userspace lab internet.
//
// The lab contains a client stack, where the shell tools run, and a
// server stack, which answers pings and serves DNS from a static zone.
package main

import (
	"context"
	"io"
	"os"

	"github.com/bassosimone/runtimex"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// args contains the command line arguments (overridable in tests).
	args = os.Args

	// input is the shell input (overridable in tests).
	input io.Reader = os.Stdin

	// output is the shell output (overridable in tests).
	output io.Writer = os.Stdout

	// errOutput receives logs and errors (overridable in tests).
	errOutput io.Writer = os.Stderr

	// exit terminates the process (overridable in tests).
	exit = os.Exit
)

var errorLabel = color.New(color.FgRed)

func newRootCommand() *cobra.Command {
	v := newViper()
	var configFile string

	cmd := &cobra.Command{
		Use:   "uishell [flags]",
		Short: "Interactive network shell over a userspace internet",
		Long: `uishell runs an interactive shell on a client stack connected to a
server stack through a userspace internet. The shell provides the ping,
nslookup, and telnet commands. Type help for the list of commands.

Settings are read from flags, from UISHELL_* environment variables, and
from the optional YAML file passed with --config, in this order.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, input, output, errOutput)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "Path to the YAML configuration file.")
	flags.String("client-addr", "10.0.0.2", "Select client IP address.")
	flags.String("server-addr", "10.0.0.1", "Select server IP address.")
	flags.Uint16("dns-port", 53, "Select the DNS server port.")
	flags.Uint32("mtu", 1500, "Select the links MTU.")
	flags.String("pcap-file", "", "Write PCAP at the given file.")
	flags.Uint16("pcap-snaplen", 1500, "PCAP snapshot length in bytes.")
	flags.String("log-level", "info", "Select the log level.")
	flags.String("prompt", "uishell> ", "Select the shell prompt.")
	runtimex.PanicOnError0(v.BindPFlags(flags))

	return cmd
}

func main() {
	cmd := newRootCommand()
	cmd.SetArgs(args[1:])
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		errorLabel.Fprint(errOutput, "Error: ")
		io.WriteString(errOutput, err.Error()+"\n")
		exit(1)
	}
}
