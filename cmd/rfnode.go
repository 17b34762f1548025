package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/womat/debug"

	"rfnode/pkg/acurite"
	"rfnode/pkg/app"
	"rfnode/pkg/app/config"
	"rfnode/pkg/capture"
	"rfnode/pkg/port"
	"rfnode/pkg/pulse"
	"rfnode/pkg/radio"
	"rfnode/pkg/raspberry"
)

const defaultConfigFile = "/opt/womat/config/" + app.MODULE + ".yaml"

func main() {
	exitCode := 1
	defer func() {
		os.Exit(exitCode)
	}()

	// cfg holds the application configuration
	cfg := config.NewConfig()

	cliApp := &cli.App{
		Name:    app.MODULE,
		Usage:   "433 MHz receiver for Acurite weather sensors",
		Version: app.VERSION,
		Description: "Decode the pulse trains of an RXB6 receiver and write the messages to mqtt" +
			"\n the receiver data pin is connected to a gpio of the Raspberry Pi" +
			"\n or to a serial front-end which measures the pulses.",
		UsageText: "rfnode [--config <file>] [--log standard|debug|trace] [command]" +
			"\n\nEXAMPLE:" +
			"\n\tstart the receiver and use the configuration file rfnode.yaml" +
			"\n\t\trfnode --config /opt/womat/rfnode.yaml" +
			"\n\trecord the pulses of one minute" +
			"\n\t\trfnode record --duration 1m --out pulses.cbor",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Destination: &cfg.Flag.ConfigFile, Value: defaultConfigFile, Usage: "load configuration from `FILE`"},
			&cli.StringFlag{Name: "log", Aliases: []string{"l"}, Destination: &cfg.Flag.Debug, Value: "standard", Usage: "`LEVEL` defines the log level (standard|debug|trace)"},
		},
		Commands: []*cli.Command{
			{
				Name:  "record",
				Usage: "record the raw pulses of the configured source to a file",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "duration", Aliases: []string{"d"}, Value: time.Minute, Usage: "recording `TIME`"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "pulses.cbor", Usage: "write the recording to `FILE`"},
				},
				Action: func(ctx *cli.Context) error {
					return withConfig(cfg, func() error {
						return record(cfg, ctx.Duration("duration"), ctx.String("out"))
					})
				},
			},
			{
				Name:      "replay",
				Usage:     "decode a recording and print the messages",
				ArgsUsage: "FILE",
				Action: func(ctx *cli.Context) error {
					if ctx.NArg() != 1 {
						return fmt.Errorf("replay needs one recording")
					}
					debug.SetDebug(os.Stderr, debug.Standard)
					return replay(cfg, ctx.Args().First())
				},
			},
		},
		Action: func(ctx *cli.Context) error {
			return withConfig(cfg, func() error {
				a, err := app.New(cfg)
				defer func() {
					debug.InfoLog.Printf("closing app %s", app.Version())
					_ = a.Close()
				}()

				if err != nil {
					return err
				}

				debug.InfoLog.Printf("starting app %s", app.Version())
				if err = a.Run(); err != nil {
					return err
				}

				waitForSignal()
				return nil
			})
		},
	}

	// we expect to have more command line flags in the future - sort them
	sort.Sort(cli.FlagsByName(cliApp.Flags))
	sort.Sort(cli.CommandsByName(cliApp.Commands))

	err := cliApp.Run(os.Args)
	if err != nil {
		debug.FatalLog.Print(err)
		exitCode = 1
		return
	}

	exitCode = 0
	return
}

// withConfig loads the configuration, sets the debug output and runs fn.
func withConfig(cfg *config.Config, fn func() error) error {
	if err := cfg.LoadConfig(); err != nil {
		return err
	}

	debug.SetDebug(cfg.Debug.File, cfg.Debug.Flag)
	defer func() {
		debug.InfoLog.Printf("closing debug file %s", cfg.Debug.FileString)
		_ = cfg.Debug.File.Close()
	}()

	return fn()
}

// waitForSignal blocks until the process is interrupted.
func waitForSignal() {
	// capture exit signals to ensure resources are released on exit.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	// wait for am os.Interrupt signal (CTRL C)
	sig := <-quit
	debug.InfoLog.Printf("Got %s signal. Aborting...", sig)
}

// record captures the pulses of the edge source for d and writes them to name.
func record(cfg *config.Config, d time.Duration, name string) error {
	clock := port.NewSystemClock()
	ring := pulse.NewRing(cfg.Radio.Buffer)
	in := ring.Producer()

	rec := &capture.Recording{Device: cfg.Radio.Device, Started: time.Now()}
	if cfg.EdgeSource().Timestamped() {
		ring.EnableOnEdge()
	} else {
		ring.Enable(true, clock.Now())
	}

	src, err := raspberry.Open(cfg.EdgeSource(), clock, func(t port.Micros) { in.Push(t) })
	if err != nil {
		return err
	}

	debug.InfoLog.Printf("recording %v from %s", d, cfg.Radio.Source)

	poll := time.NewTicker(cfg.Radio.Poll)
	stop := time.NewTimer(d)
	for done := false; !done; {
		select {
		case <-poll.C:
			rec.Add(ring.Consumer())
		case <-stop.C:
			done = true
		}
	}
	poll.Stop()

	_ = src.Close()
	rec.Add(ring.Consumer())

	if n := ring.Dropped(); n > 0 {
		debug.ErrorLog.Printf("%d pulses lost, increase buffer or decrease poll", n)
	}

	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err = capture.Write(f, rec); err != nil {
		_ = f.Close()
		return err
	}

	debug.InfoLog.Printf("%d pulses written to %s", len(rec.Samples), name)
	return f.Close()
}

// replay decodes the recording in name and prints every message.
// A recording of a custom device is decoded with the profile of the configuration.
func replay(cfg *config.Config, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	rec, err := capture.Read(f)
	if err != nil {
		return err
	}

	device, err := radio.ParseDeviceType(rec.Device)
	if err != nil {
		return err
	}

	clock := port.NewManualClock(0)
	rx := radio.New(cfg.Radio.Buffer, clock)

	if device == radio.DeviceCustom {
		if err = cfg.LoadConfig(); err != nil {
			return err
		}
		err = rx.SetProfile(cfg.Profile())
	} else {
		err = rx.SelectDeviceType(device)
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d pulses of %s, recorded %s\n", name, len(rec.Samples), rec.Device, rec.Started.Format(time.RFC3339))

	st := capture.Replay(rec, rx, clock, func(msg []byte) {
		fmt.Printf("% X", msg)
		if device != radio.DeviceCustom {
			if r, err := acurite.Decode(msg); err == nil {
				fmt.Printf("  %s/%d %.1f C %d%% battery ok:%v", r.Channel, r.ID, r.Temperature, r.Humidity, r.BatteryOK)
			} else {
				fmt.Printf("  %v", err)
			}
		}
		fmt.Println()
	})

	fmt.Println(st)
	return nil
}
