// PZEM API polls a PZEM-004T energy meter, keeps a rolling average of the
// measurements and serves it over HTTP, websocket and optionally MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NotCoffee418/pzem_monitor/pkg/aggregator"
	"github.com/NotCoffee418/pzem_monitor/pkg/config"
	"github.com/NotCoffee418/pzem_monitor/pkg/gateway"
	"github.com/NotCoffee418/pzem_monitor/pkg/interpreter"
	"github.com/NotCoffee418/pzem_monitor/pkg/mqtt"
	"github.com/NotCoffee418/pzem_monitor/pkg/port_reader"
	"github.com/NotCoffee418/pzem_monitor/pkg/pzem"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	var configFile, logLevel string

	app := &cli.App{
		Name:  "pzem_api",
		Usage: "Poll a PZEM-004T energy meter and serve the rolling average",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Destination: &configFile, Usage: "load configuration from `FILE`"},
			&cli.StringFlag{Name: "log", Aliases: []string{"l"}, Destination: &logLevel, Usage: "`LEVEL` overrides log_level (panic|fatal|error|warn|info|debug|trace)"},
		},
		Action: func(c *cli.Context) error {
			if err := config.LoadPzemAPIConfig(configFile); err != nil {
				return fmt.Errorf("failed to load pzem API config: %w", err)
			}
			if logLevel == "" {
				logLevel = config.ActivePzemAPIConfig.LogLevel
			}
			level, err := log.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("%w: log level %q", pzem.ErrInvalidArgument, logLevel)
			}
			log.SetLevel(level)

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, config.ActivePzemAPIConfig)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.PzemAPIConfig) error {
	meter, closer, err := openMeter(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	ring, err := aggregator.New(cfg.SampleCapacity)
	if err != nil {
		return err
	}

	publisher := mqtt.New(cfg.MqttTopic)
	if err := publisher.Connect(cfg.MqttBroker, "pzem_api"); err != nil {
		return err
	}
	go publisher.Service()
	defer publisher.Disconnect()

	hub := newHub()
	reader := port_reader.NewPzemReader(meter, ring, cfg.PollInterval(), cfg.MaxConsecutiveErrors)
	reader.StartReading(ctx,
		func(reading *interpreter.MeterReading) {
			log.Debugf("Average over %d samples: %s", reading.SampleCount, reading.Measurement())
			hub.Broadcast(reading)
			publisher.PublishReading(reading)
		},
		func(err error) {
			log.Errorf("PZEM failed %d times in a row, last error: %v", cfg.MaxConsecutiveErrors, err)
		},
	)
	defer reader.StopReading()

	listener := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.ListenPort)
	server := &http.Server{
		Addr:    listener,
		Handler: newRouter(reader, hub),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Starting PZEM API on %s", listener)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		log.Println("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// openMeter connects to the meter over the configured transport.
func openMeter(cfg *config.PzemAPIConfig) (port_reader.Meter, io.Closer, error) {
	switch cfg.Transport {
	case config.TransportSerial:
		ch, err := port_reader.OpenSerial(cfg.SerialDevice, cfg.Baudrate)
		if err != nil {
			return nil, nil, err
		}
		return port_reader.NewSerialMeter(ch, cfg.SlaveAddress, cfg.ResponseTimeout()), ch, nil
	case config.TransportTCP:
		m := gateway.NewMeter(cfg.GatewayAddress, cfg.SlaveAddress, cfg.ResponseTimeout())
		return m, m, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown transport %q", pzem.ErrInvalidArgument, cfg.Transport)
}
