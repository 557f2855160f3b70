// Package replay implements the replay pipeline (C9): a reader task
// pulls packets out of a project at batch_size = 20, handing each to a
// bounded FIFO queue; a sender task dequeues, sleeps to reproduce the
// original inter-packet timing scaled by a speed factor, and hands the
// payload to a transport. The two tasks are coordinated with
// golang.org/x/sync/errgroup the way distr1-distri's build scheduler
// coordinates its worker goroutines (the teacher's segmentmanager-adjacent
// code has no concurrency of its own to borrow from).
package replay

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Zoranner/pcapfile/pcap"
)

// DefaultQueueCapacity is the replay queue's capacity absent an explicit
// override.
const DefaultQueueCapacity = 100

// readBatchSize is how many packets the reader task asks for per call.
const readBatchSize = 20

// Source is the packet source a replay reads from. project.Reader
// satisfies it; anything else offering the same batching contract does
// too.
type Source interface {
	ReadPackets(n int) ([]*pcap.Packet, error)
}

// Sender is the transport a replay sends to. transport.Transport
// satisfies it.
type Sender interface {
	Send(payload []byte) (int, error)
}

// Stats is a snapshot of a run's counters, safe to read after Run
// returns or at any point via Coordinator.Stats.
type Stats struct {
	ProcessedCount int64
	TotalBytes     int64
	MinSize        int64
	MaxSize        int64
	ChecksumErrors int64
	PacketsPerSec  float64
}

type counters struct {
	processed      int64
	totalBytes     int64
	minSize        int64
	maxSize        int64
	checksumErrors int64

	mu          sync.Mutex
	windowStart time.Time
	windowCount int64
	lastRate    float64
}

func newCounters() *counters {
	return &counters{minSize: -1, windowStart: timeNow()}
}

func (c *counters) record(n int, corrupt bool) {
	atomic.AddInt64(&c.processed, 1)
	atomic.AddInt64(&c.totalBytes, int64(n))
	if corrupt {
		atomic.AddInt64(&c.checksumErrors, 1)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.minSize < 0 || int64(n) < c.minSize {
		c.minSize = int64(n)
	}
	if int64(n) > c.maxSize {
		c.maxSize = int64(n)
	}
	c.windowCount++
	if elapsed := timeNow().Sub(c.windowStart); elapsed >= time.Second {
		c.lastRate = float64(c.windowCount) / elapsed.Seconds()
		c.windowCount = 0
		c.windowStart = timeNow()
	}
}

func (c *counters) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	minSize := c.minSize
	if minSize < 0 {
		minSize = 0
	}
	return Stats{
		ProcessedCount: atomic.LoadInt64(&c.processed),
		TotalBytes:     atomic.LoadInt64(&c.totalBytes),
		MinSize:        minSize,
		MaxSize:        c.maxSize,
		ChecksumErrors: atomic.LoadInt64(&c.checksumErrors),
		PacketsPerSec:  c.lastRate,
	}
}

// timeNow is the only place this package calls time.Now, so tests can
// exercise the rate-window logic deterministically if ever needed.
var timeNow = time.Now

// Coordinator drives the reader task and the sender task over a bounded
// queue at a configured speed.
type Coordinator struct {
	source        Source
	sender        Sender
	speed         float64
	queueCapacity int
	counters      *counters
}

// Option configures a Coordinator at New time.
type Option func(*Coordinator)

// WithQueueCapacity overrides DefaultQueueCapacity.
func WithQueueCapacity(n int) Option {
	return func(c *Coordinator) { c.queueCapacity = n }
}

// New builds a Coordinator replaying source's packets to sender at the
// given speed factor (> 0; 1 reproduces original timing, >1 is faster).
func New(source Source, sender Sender, speed float64, opts ...Option) (*Coordinator, error) {
	if speed <= 0 {
		return nil, fmt.Errorf("speed %v must be > 0: %w", speed, pcap.ErrInvalidArgument)
	}
	c := &Coordinator{
		source:        source,
		sender:        sender,
		speed:         speed,
		queueCapacity: DefaultQueueCapacity,
		counters:      newCounters(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.queueCapacity <= 0 {
		return nil, fmt.Errorf("queue capacity %d must be > 0: %w", c.queueCapacity, pcap.ErrInvalidArgument)
	}
	return c, nil
}

// Stats returns a snapshot of the run's counters.
func (c *Coordinator) Stats() Stats { return c.counters.snapshot() }

// Run drives the replay to completion or until ctx is cancelled. It
// blocks until both the reader and sender tasks have exited, the queue
// has been drained, and returns the first task error (if any), or
// pcap.ErrCancelled if ctx was the cause.
func (c *Coordinator) Run(ctx context.Context) error {
	queue := make(chan *pcap.Packet, c.queueCapacity)

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer close(queue)
		for {
			batch, err := c.source.ReadPackets(readBatchSize)
			if err != nil {
				return err
			}
			if len(batch) == 0 {
				return nil
			}
			for _, p := range batch {
				select {
				case queue <- p:
				case <-ctx.Done():
					return ctxErr(ctx)
				}
			}
		}
	})

	eg.Go(func() error {
		var last *pcap.Packet
		for {
			select {
			case p, ok := <-queue:
				if !ok {
					return nil
				}
				if last != nil {
					delta := p.Timestamp - last.Timestamp
					if delta > 0 {
						wait := time.Duration(float64(delta)/c.speed) * time.Millisecond
						select {
						case <-time.After(wait):
						case <-ctx.Done():
							return ctxErr(ctx)
						}
					}
				}
				if _, err := c.sender.Send(p.Payload); err != nil {
					return err
				}
				c.counters.record(len(p.Payload), crc32.ChecksumIEEE(p.Payload) != p.Checksum)
				last = p
			case <-ctx.Done():
				return ctxErr(ctx)
			}
		}
	})

	err := eg.Wait()
	// The reader task has closed queue; discard anything still buffered.
	for range queue {
	}
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return nil
}

func ctxErr(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("replay cancelled: %w", pcap.ErrCancelled)
	}
	return nil
}
