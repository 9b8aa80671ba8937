// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/bassosimone/uishell/netsim"
	"github.com/bassosimone/uishell/probe"
	"github.com/bassosimone/uishell/resolver"
	"github.com/bassosimone/uishell/shell"
	"github.com/bassosimone/uishell/tools"
	"github.com/rs/zerolog"
)

// newLogger creates the console logger.
func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	return zerolog.New(cw).Level(level).With().Timestamp().Logger()
}

// run builds the lab internet and runs the shell until the input ends.
func run(ctx context.Context, cfg *Config, in io.Reader, out, errw io.Writer) (err error) {
	// 1. validate the configuration
	clientAddr, serverAddr, err := cfg.addrs()
	if err != nil {
		return err
	}
	zone, err := cfg.zone()
	if err != nil {
		return err
	}
	level, err := cfg.logLevel()
	if err != nil {
		return err
	}
	logger := newLogger(errw, level)

	// 2. optionally capture the packets
	ixOptions := []netsim.InternetOption{netsim.InternetOptionLogger(logger)}
	if cfg.PCAPFile != "" {
		filep, ferr := os.Create(cfg.PCAPFile)
		if ferr != nil {
			return ferr
		}
		trace := netsim.NewPCAPTrace(filep, cfg.PCAPSnaplen)
		defer func() {
			err = errors.Join(err, trace.Close())
		}()
		ixOptions = append(ixOptions, netsim.InternetOptionTrace(trace))
	}

	// 3. create the internet and the stacks
	ix := netsim.NewInternet(ixOptions...)
	serverStack, err := ix.NewStack(cfg.mtu(), serverAddr)
	if err != nil {
		return fmt.Errorf("cannot create server stack: %w", err)
	}
	defer serverStack.Close()
	clientStack, err := ix.NewStack(cfg.mtu(), clientAddr)
	if err != nil {
		return fmt.Errorf("cannot create client stack: %w", err)
	}
	defer clientStack.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	wg := &sync.WaitGroup{}

	// 4. route packets in the background
	wg.Go(func() {
		ix.Route(ctx)
	})

	// 5. serve DNS on the server stack
	dnsEpnt := netip.AddrPortFrom(serverAddr, cfg.DNSPort)
	pconn, err := netsim.NewListenConfig(serverStack).ListenPacket(ctx, "udp", dnsEpnt.String())
	if err != nil {
		return fmt.Errorf("cannot listen for DNS: %w", err)
	}
	dnsServer := resolver.NewServer(zone, resolver.ServerOptionLogger(logger))
	wg.Go(func() {
		if err := dnsServer.Serve(ctx, pconn); err != nil {
			logger.Warn().Err(err).Msg("uishell: DNS server failed")
		}
	})

	// 6. create the shell and the engines
	sh := shell.New(out, shell.OptionLogger(logger), shell.OptionPrompt(cfg.Prompt))
	clientDialer := netsim.NewDialer(clientStack)
	dnsResolver := resolver.New(sh, resolver.NewUDPExchanger(clientDialer, dnsEpnt),
		resolver.OptionLogger(logger))
	probes, err := probe.New(sh, probe.DialNetsim(clientDialer), sh.Timer100ms(), probe.OptionLogger(logger))
	if err != nil {
		return err
	}
	defer probes.Close()
	deps := tools.Deps{
		Resolver: dnsResolver,
		Probes:   tools.NewProbeEngine(probes),
	}
	if err := tools.Register(sh, deps); err != nil {
		return err
	}

	// 7. feed the input and the interrupts to the shell
	go readInput(in, sh)
	wg.Go(func() {
		forwardInterrupts(ctx, sh)
	})

	// 8. run the shell until the input ends
	fmt.Fprintf(out, "uishell: client %s, server %s, DNS at %s\n", clientAddr, serverAddr, dnsEpnt)
	err = sh.Run(ctx)

	// 9. stop the background goroutines
	cancel()
	wg.Wait()
	return err
}

// readInput posts the input to the shell and closes it on EOF.
func readInput(in io.Reader, sh *shell.Shell) {
	buf := make([]byte, 512)
	for {
		count, err := in.Read(buf)
		if count > 0 {
			data := append([]byte(nil), buf[:count]...)
			if !sh.Post(func() { sh.Input(data) }) {
				return
			}
		}
		if err != nil {
			sh.Post(sh.Close)
			return
		}
	}
}

// forwardInterrupts delivers SIGINT to the shell until the context is done.
func forwardInterrupts(ctx context.Context, sh *shell.Shell) {
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt)
	defer signal.Stop(sigch)
	for {
		select {
		case <-sigch:
			sh.Post(sh.Interrupt)
		case <-ctx.Done():
			return
		}
	}
}
