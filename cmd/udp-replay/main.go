// Command udp-replay reads a project and replays its packets over UDP,
// reproducing the original inter-packet timing at a configurable speed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/Zoranner/pcapfile/pcap"
	"github.com/Zoranner/pcapfile/project"
	"github.com/Zoranner/pcapfile/replay"
	"github.com/Zoranner/pcapfile/transport"
)

const (
	defaultAddress = "255.255.255.255"
	defaultPort    = 12345
	defaultSpeed   = 1.0
	defaultBuffer  = 1000
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("udp-replay", flag.ExitOnError)
	address := fs.String("address", defaultAddress, "destination address")
	port := fs.Int("port", defaultPort, "destination port")
	modeFlag := fs.String("mode", "", "broadcast, multicast, or unicast (default: inferred from address)")
	speed := fs.Float64("speed", defaultSpeed, "playback speed factor")
	buffer := fs.Int("buffer", defaultBuffer, "replay queue capacity")
	quiet := fs.Bool("quiet", false, "suppress progress logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 2 {
		return fmt.Errorf("usage: udp-replay <base_dir> <project_name> [flags]")
	}
	baseDir, projectName := fs.Arg(0), fs.Arg(1)

	logger := log.New(os.Stderr, "udp-replay: ", log.LstdFlags)
	if *quiet {
		logger.SetOutput(nilWriter{})
	}

	mode, err := resolveMode(*modeFlag, *address)
	if err != nil {
		return err
	}

	projectPath := filepath.Join(baseDir, projectName+".pcap")
	reader, err := project.Open(projectPath)
	if err != nil {
		return fmt.Errorf("opening project %s: %w", projectPath, err)
	}
	defer reader.Close()

	tr, err := transport.Dial(*address, *port, mode)
	if err != nil {
		return fmt.Errorf("dialing %s:%d: %w", *address, *port, err)
	}
	defer tr.Close()

	coordinator, err := replay.New(reader, tr, *speed, replay.WithQueueCapacity(*buffer))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Printf("replaying %d packets from %s to %s:%d (mode=%s, speed=%v)",
		reader.PacketCount(), projectPath, *address, *port, modeName(mode), *speed)

	if err := coordinator.Run(ctx); err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	stats := coordinator.Stats()
	logger.Printf("done: %d packets, %d bytes, %d checksum errors",
		stats.ProcessedCount, stats.TotalBytes, stats.ChecksumErrors)
	return nil
}

func resolveMode(modeFlag, address string) (transport.Mode, error) {
	switch modeFlag {
	case "broadcast":
		return transport.Broadcast, nil
	case "multicast":
		return transport.Multicast, nil
	case "unicast":
		return transport.Unicast, nil
	case "":
		return inferMode(address)
	default:
		return 0, fmt.Errorf("unknown mode %q: %w", modeFlag, pcap.ErrInvalidArgument)
	}
}

func inferMode(address string) (transport.Mode, error) {
	ip := net.ParseIP(address)
	if ip == nil {
		return 0, fmt.Errorf("invalid address %q: %w", address, pcap.ErrInvalidArgument)
	}
	if ip.IsMulticast() {
		return transport.Multicast, nil
	}
	if v4 := ip.To4(); v4 != nil && v4[3] == 255 {
		return transport.Broadcast, nil
	}
	return transport.Unicast, nil
}

func modeName(m transport.Mode) string {
	switch m {
	case transport.Broadcast:
		return "broadcast"
	case transport.Multicast:
		return "multicast"
	default:
		return "unicast"
	}
}

type nilWriter struct{}

func (nilWriter) Write(p []byte) (int, error) { return len(p), nil }
