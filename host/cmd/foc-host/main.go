// Command foc-host configures and runs a drive over its serial link.
//
// By default it pushes the profile's configuration, enables the drive at
// the profile's reference and polls status until interrupted. With
// -interactive it reads commands from stdin instead.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gofoc/core"
	"gofoc/host/link"
	"gofoc/host/logging"
	"gofoc/host/profile"
	"gofoc/host/serial"
	"gofoc/host/telemetry"
	"gofoc/protocol"
)

var (
	profilePath = flag.String("profile", "", "Drive profile (yaml, json or toml)")
	device      = flag.String("device", "", "Serial device path, overrides the profile")
	interval    = flag.Duration("interval", 100*time.Millisecond, "Status poll interval")
	duration    = flag.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	interactive = flag.Bool("interactive", false, "Read commands from stdin")
	dump        = flag.Bool("dump", false, "Print the resolved profile and exit")
)

func main() {
	flag.Parse()

	prof, err := profile.Load(*profilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *device != "" {
		prof.Serial.Device = *device
	}
	if *dump {
		if err := profile.Write(os.Stdout, prof); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	log := logging.New(prof.Log)
	defer log.Sync()

	if err := run(prof, log); err != nil {
		log.Fatal("foc-host failed", zap.Error(err))
	}
}

func run(prof *profile.Profile, log *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, *duration)
		defer stop()
	}

	port, err := serial.Open(&prof.Serial)
	if err != nil {
		return err
	}
	if err := port.Flush(); err != nil {
		log.Debug("flush failed", zap.Error(err))
	}

	l := link.New(port, log.Named("link"))
	defer l.Close()

	dict, err := l.Identify(ctx)
	if err != nil {
		return err
	}
	log.Info("connected",
		zap.String("device", prof.Serial.Device),
		zap.String("firmware", dict.Version),
		zap.String("profile", prof.Name))

	var pub *telemetry.Publisher
	if prof.Telemetry.Enabled {
		pub, err = telemetry.Connect(prof.Telemetry, log.Named("mqtt"))
		if err != nil {
			return err
		}
		defer pub.Close()
	}

	if err := watch(l, pub, log); err != nil {
		return err
	}

	cfg, err := prof.Drive.Config()
	if err != nil {
		return err
	}
	if err := l.PushConfig(ctx, &cfg); err != nil {
		return err
	}
	log.Info("configuration applied",
		zap.Stringer("method", cfg.Method),
		zap.Stringer("angle_mode", cfg.AngleMode),
		zap.Float32("period", cfg.Period))

	if err := startMonitor(ctx, l, prof.BusMonitor); err != nil {
		return err
	}

	if *interactive {
		return repl(ctx, l, log)
	}
	return drive(ctx, l, pub, prof, log)
}

// watch forwards unsolicited drive messages to the log and broker
func watch(l *link.Link, pub *telemetry.Publisher, log *zap.Logger) error {
	err := l.Subscribe("shutdown", func(args []byte) {
		clock, _ := protocol.DecodeVLQUint(&args)
		log.Error("drive shut down", zap.Uint32("clock", clock))
		if pub != nil {
			if err := pub.PublishEvent(telemetry.EventMessage{Event: "shutdown", Clock: clock}); err != nil {
				log.Warn("publish failed", zap.Error(err))
			}
		}
	})
	if err != nil {
		return err
	}
	return l.Subscribe("bus_voltage_state", func(args []byte) {
		b, err := link.DecodeBusVoltage(args)
		if err != nil {
			log.Warn("bad bus report", zap.Error(err))
			return
		}
		log.Debug("bus voltage", zap.Float32("volts", b.Voltage))
		if pub != nil {
			if err := pub.PublishBus(b); err != nil {
				log.Warn("publish failed", zap.Error(err))
			}
		}
	})
}

func startMonitor(ctx context.Context, l *link.Link, p link.BusMonitorParams) error {
	if p.SampleCount == 0 {
		return nil
	}
	clock, err := l.Clock(ctx)
	if err != nil {
		return err
	}
	// Leave the drive a few milliseconds to schedule the first sample
	p.Clock = clock + core.TimerFromUS(5000)
	return l.StartBusMonitor(ctx, p)
}

// drive runs the profile's reference until ctx ends
func drive(ctx context.Context, l *link.Link, pub *telemetry.Publisher, prof *profile.Profile, log *zap.Logger) error {
	ref := prof.Drive.Reference
	if err := l.SetReference(ctx, ref.D, ref.Q); err != nil {
		return err
	}
	if err := l.Enable(ctx); err != nil {
		return err
	}
	log.Info("drive enabled", zap.Float32("id", ref.D), zap.Float32("iq", ref.Q))

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	var lastTrips uint32
	for {
		select {
		case <-ctx.Done():
			return shutdown(l, log)
		case <-ticker.C:
		}

		s, err := l.QueryStatus(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return shutdown(l, log)
			}
			log.Warn("status query failed", zap.Error(err))
			continue
		}
		if s.Trips != lastTrips {
			log.Warn("drive tripped to idle", zap.Uint32("trips", s.Trips), zap.Stringer("flags", s.Flags))
			lastTrips = s.Trips
		}
		log.Debug("status",
			zap.Stringer("state", s.State),
			zap.Stringer("flags", s.Flags),
			zap.Float32("id", s.Id),
			zap.Float32("iq", s.Iq))
		if pub != nil {
			if err := pub.PublishStatus(s); err != nil {
				log.Warn("publish failed", zap.Error(err))
			}
		}
	}
}

// shutdown disables the drive with a fresh context since ctx is done
func shutdown(l *link.Link, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Disable(ctx); err != nil {
		return fmt.Errorf("disable: %w", err)
	}
	l.StartBusMonitor(ctx, link.BusMonitorParams{})
	log.Info("drive disabled")
	return nil
}

func repl(ctx context.Context, l *link.Link, log *zap.Logger) error {
	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		var err error
		switch parts[0] {
		case "quit", "exit", "q":
			return shutdown(l, log)
		case "help", "?":
			printHelp()
		case "dict":
			printDictionary(l.Dictionary())
		case "status":
			var s link.Status
			if s, err = l.QueryStatus(ctx); err == nil {
				fmt.Printf("%s [%s] ticks=%d id=%.3f iq=%.3f vd=%.2f vq=%.2f theta=%.3f sector=%d duty=%.3f overruns=%d trips=%d\n",
					s.State, s.Flags, s.Ticks, s.Id, s.Iq, s.Vd, s.Vq, s.Theta, s.Sector, s.Duty, s.Overruns, s.Trips)
			}
		case "enable":
			err = l.Enable(ctx)
		case "disable":
			err = l.Disable(ctx)
		case "ref":
			if len(parts) != 3 {
				fmt.Println("usage: ref <id> <iq>")
				continue
			}
			var d, q float64
			if d, err = strconv.ParseFloat(parts[1], 32); err == nil {
				if q, err = strconv.ParseFloat(parts[2], 32); err == nil {
					err = l.SetReference(ctx, float32(d), float32(q))
				}
			}
		case "events":
			var events []link.TickEvent
			if events, err = l.TickEvents(ctx); err == nil {
				for _, e := range events {
					fmt.Printf("  type=%d clock=%d tick=%d status=%s\n", e.Type, e.Clock, e.Tick, e.Status)
				}
			}
		case "stop":
			err = l.EmergencyStop(ctx)
		case "clear":
			err = l.ClearShutdown(ctx)
		default:
			fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", parts[0])
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		if ctx.Err() != nil {
			return shutdown(l, log)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return shutdown(l, log)
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  help           - Show this help message")
	fmt.Println("  dict           - Print dictionary summary")
	fmt.Println("  status         - Query drive status")
	fmt.Println("  enable/disable - Start or stop current control")
	fmt.Println("  ref <id> <iq>  - Set current references in amps")
	fmt.Println("  events         - Dump the control tick event ring")
	fmt.Println("  stop / clear   - Emergency stop / clear shutdown")
	fmt.Println("  quit/exit/q    - Disable and exit")
	fmt.Println()
}

func printDictionary(d *link.Dictionary) {
	if d == nil {
		fmt.Println("No dictionary loaded")
		return
	}
	fmt.Printf("Version: %s\nBuild: %s\n", d.Version, d.BuildVersions)
	for k, v := range d.Config {
		fmt.Printf("  %s = %s\n", k, v)
	}
	fmt.Printf("Commands: %d, responses: %d\n", len(d.Commands), len(d.Responses))
	for name, values := range d.Enumerations {
		fmt.Printf("  %s: %d values\n", name, len(values))
	}
}
