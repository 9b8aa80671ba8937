//
// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/ooni/netem/blob/6e0d618f0cb48b96c78cd066e23cf3aa1208b1dd/pcap.go
//

package netsim

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapSnapshot is a captured packet prefix.
type pcapSnapshot struct {
	// data is the captured prefix.
	data []byte

	// length is the original packet length.
	length int
}

// PCAPTrace writes the packets passed to [*PCAPTrace.Dump] into a PCAP
// file using a background goroutine.
//
// Construct using [NewPCAPTrace].
type PCAPTrace struct {
	// cancel stops the background goroutine.
	cancel context.CancelFunc

	// dropped counts the packets dropped because the queue was full.
	dropped atomic.Uint64

	// errch receives the background goroutine result.
	errch chan error

	// once provides "once" semantics for Close.
	once sync.Once

	// snaps is the queue of packets to write.
	snaps chan pcapSnapshot

	// snapSize is the maximum number of bytes captured per packet.
	snapSize uint16

	// wc is the file we write to.
	wc io.WriteCloser
}

// PCAPTraceOption is an option for [NewPCAPTrace].
type PCAPTraceOption func(cfg *pcapTraceConfig)

type pcapTraceConfig struct {
	buffer int
}

// DefaultPCAPTraceBuffer is the default number of queued packets.
const DefaultPCAPTraceBuffer = 4096

// PCAPTraceOptionBuffer sets the number of packets that can be queued
// before [*PCAPTrace.Dump] starts dropping them.
func PCAPTraceOptionBuffer(size int) PCAPTraceOption {
	return func(cfg *pcapTraceConfig) {
		cfg.buffer = size
	}
}

// NewPCAPTrace creates a [*PCAPTrace] writing to the given file and
// capturing at most snapSize bytes of each packet.
func NewPCAPTrace(wc io.WriteCloser, snapSize uint16, options ...PCAPTraceOption) *PCAPTrace {
	cfg := &pcapTraceConfig{buffer: DefaultPCAPTraceBuffer}
	for _, opt := range options {
		opt(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	tr := &PCAPTrace{
		cancel:   cancel,
		errch:    make(chan error, 1),
		snaps:    make(chan pcapSnapshot, cfg.buffer),
		snapSize: snapSize,
		wc:       wc,
	}
	go func() {
		tr.errch <- tr.saveLoop(ctx)
	}()
	return tr
}

// Dump queues a copy of the raw IP packet for writing.
func (tr *PCAPTrace) Dump(packet []byte) {
	snap := pcapSnapshot{
		data:   append([]byte(nil), packet[:min(len(packet), int(tr.snapSize))]...),
		length: len(packet),
	}
	select {
	case tr.snaps <- snap:
	default:
		tr.dropped.Add(1)
	}
}

// Dropped returns the number of packets dropped because the queue was full,
// which happens when writing cannot keep up with the capture rate.
func (tr *PCAPTrace) Dropped() uint64 {
	return tr.dropped.Load()
}

func (tr *PCAPTrace) saveLoop(ctx context.Context) error {
	w := pcapgo.NewWriter(tr.wc)
	if err := w.WriteFileHeader(uint32(tr.snapSize), layers.LinkTypeRaw); err != nil {
		return err
	}
	for {
		snap, ok := tr.readOrDrain(ctx)
		if !ok {
			return nil
		}
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Now(),
			CaptureLength: len(snap.data),
			Length:        snap.length,
		}
		if err := w.WritePacket(ci, snap.data); err != nil {
			return err
		}
	}
}

// readOrDrain returns the next queued packet. After cancellation, it keeps
// returning the queued packets until the queue is empty.
func (tr *PCAPTrace) readOrDrain(ctx context.Context) (pcapSnapshot, bool) {
	select {
	case snap := <-tr.snaps:
		return snap, true
	case <-ctx.Done():
	}

	select {
	case snap := <-tr.snaps:
		return snap, true
	default:
		return pcapSnapshot{}, false
	}
}

// Close stops the background goroutine, waits for it to write the queued
// packets, and closes the file.
func (tr *PCAPTrace) Close() (err error) {
	tr.once.Do(func() {
		tr.cancel()
		err = errors.Join(<-tr.errch, tr.wc.Close())
	})
	return
}
