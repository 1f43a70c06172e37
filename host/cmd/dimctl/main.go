package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"dimctl/host/api"
	"dimctl/host/config"
	"dimctl/host/dimmer"
	"dimctl/host/firmware"
	"dimctl/host/gpio"
	"dimctl/host/logging"
	"dimctl/host/serial"
	"dimctl/host/service"
	"dimctl/host/stm32"
	"dimctl/host/telemetry"
	"dimctl/protocol"
)

var (
	configPath = flag.String("config", config.DefaultPath, "Configuration file")
	device     = flag.String("device", "", "Serial device path (overrides the configuration)")
	verbose    = flag.Bool("verbose", false, "Enable debug logging on the console")
	once       = flag.Bool("once", false, "Initialize, poll once, print the status and exit")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	osFs := afero.NewOsFs()

	cfg, err := loadConfig(osFs, *configPath)
	if err != nil {
		return err
	}
	if *device != "" {
		cfg.Serial.Device = *device
	}

	level := cfg.Log.Level
	if *verbose {
		level = "debug"
	}
	logCloser, err := logging.Init(logging.Options{
		Level:      level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Console:    true,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	port, err := serial.Open(&serial.Config{
		Device:      cfg.Serial.Device,
		Baud:        cfg.Serial.Baud,
		ReadTimeout: cfg.Serial.ReadTimeoutMs,
		Parity:      serial.ParityNone,
		Driver:      cfg.Serial.Driver,
	})
	if err != nil {
		return err
	}
	defer port.Close()

	resetLine, boot0Line, err := openLines(osFs, cfg.Lines, port)
	if err != nil {
		return err
	}

	reg := telemetry.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	var publisher *telemetry.Publisher
	if cfg.MQTT.Broker != "" {
		publisher = telemetry.NewPublisher(mqtt.NewClient(telemetry.ClientOptions(cfg.MQTT.Broker)), cfg.MQTT.TopicPrefix)
		if err := publisher.Connect(); err != nil {
			return err
		}
		defer publisher.Close()
	}
	mqttSink := func(name string) telemetry.Sink {
		if publisher == nil {
			return nil
		}
		return publisher.Sink(name)
	}

	lightLevel := &service.Level{}
	opts := []dimmer.Option{
		dimmer.WithConfig(dimmer.Config{
			MinBrightness:    cfg.Dimmer.MinBrightness,
			MaxBrightness:    cfg.Dimmer.MaxBrightness,
			FadeRate:         cfg.Dimmer.FadeRate,
			WarmupBrightness: cfg.Dimmer.WarmupBrightness,
			WarmupTime:       cfg.Dimmer.WarmupTime,
			LeadingEdge:      cfg.Dimmer.LeadingEdge,
		}),
		dimmer.WithLines(resetLine, boot0Line),
		dimmer.WithSinks(
			telemetry.Join(metrics.PowerSink(), mqttSink("power")),
			telemetry.Join(metrics.VoltageSink(), mqttSink("voltage")),
			telemetry.Join(metrics.CurrentSink(), mqttSink("current")),
		),
		dimmer.WithBrightnessSink(telemetry.Join(metrics.BrightnessSink(), mqttSink("brightness"))),
		dimmer.WithBrightnessSource(lightLevel.Get),
		dimmer.WithTransportOptions(protocol.WithResultHook(metrics.ObserveCommand)),
	}

	if cfg.Firmware.Path != "" {
		img, err := firmware.Load(osFs, cfg.Firmware.Path, cfg.Firmware.Major, cfg.Firmware.Minor)
		if err != nil {
			return err
		}
		opts = append(opts, dimmer.WithFirmware(img, stm32.New(port)))
	}

	svc := service.New(dimmer.New(port, opts...), lightLevel,
		service.WithPollInterval(cfg.Dimmer.PollInterval()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		return runOnce(ctx, svc)
	}

	// Subscribe before the workers start so a failure leaves nothing running
	var levels *service.LevelQueue
	if publisher != nil {
		levels = service.NewLevelQueue()
		if err := publisher.SubscribeBrightness(levels.Submit); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svc.Run(ctx)
	})

	if cfg.HTTP.Listen != "" {
		g.Go(func() error {
			return api.Serve(ctx, cfg.HTTP.Listen, api.NewRouter(svc, telemetry.Handler(reg)))
		})
	}

	if levels != nil {
		g.Go(func() error {
			return levels.Run(ctx, svc.SetBrightness)
		})
	}

	return g.Wait()
}

func loadConfig(fsys afero.Fs, path string) (*config.Config, error) {
	cfg, err := config.Load(fsys, path)
	if errors.Is(err, fs.ErrNotExist) && path == config.DefaultPath {
		return config.Default(), nil
	}
	return cfg, err
}

func openLines(fsys afero.Fs, cfg config.Lines, port serial.Port) (gpio.Line, gpio.Line, error) {
	switch cfg.Mode {
	case config.LinesSysfs:
		reset, err := gpio.OpenSysfs(fsys, cfg.SysfsRoot, cfg.ResetGPIO)
		if err != nil {
			return nil, nil, err
		}
		boot0, err := gpio.OpenSysfs(fsys, cfg.SysfsRoot, cfg.Boot0GPIO)
		if err != nil {
			return nil, nil, err
		}
		return maybeInvert(reset, cfg.Invert), maybeInvert(boot0, cfg.Invert), nil

	case config.LinesModem:
		modem, ok := port.(serial.ModemControl)
		if !ok {
			return nil, nil, fmt.Errorf("serial driver cannot drive DTR/RTS")
		}
		reset := gpio.LineFunc(modem.SetDTR)
		boot0 := gpio.LineFunc(modem.SetRTS)
		return maybeInvert(reset, cfg.Invert), maybeInvert(boot0, cfg.Invert), nil

	default:
		return gpio.NopLine{}, gpio.NopLine{}, nil
	}
}

func maybeInvert(line gpio.Line, invert bool) gpio.Line {
	if invert {
		return gpio.Inverted(line)
	}
	return line
}

func runOnce(ctx context.Context, svc *service.Service) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if err := svc.Setup(ctx); err != nil {
		return err
	}

	out, err := json.MarshalIndent(svc.Status(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
