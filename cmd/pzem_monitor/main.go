// PZEM monitor prints the rolling averages broadcast by pzem_api.
// Depends on the PZEM API being online.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/NotCoffee418/pzem_monitor/pkg/config"
	"github.com/NotCoffee418/pzem_monitor/pkg/interpreter"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	var configFile, host string
	var jsonOutput bool

	app := &cli.App{
		Name:  "pzem_monitor",
		Usage: "Print the PZEM averages published by pzem_api",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Destination: &configFile, Usage: "load configuration from `FILE`"},
			&cli.StringFlag{Name: "host", EnvVars: []string{"PZEM_API_HOST"}, Destination: &host, Usage: "pzem_api `HOST:PORT`, overrides pzem_api_host"},
			&cli.BoolFlag{Name: "json", Destination: &jsonOutput, Usage: "print raw JSON readings"},
		},
		Action: func(c *cli.Context) error {
			if err := config.LoadMonitorConfig(configFile); err != nil {
				return fmt.Errorf("failed to load monitor config: %w", err)
			}
			if host == "" {
				host = config.ActiveMonitorConfig.PzemAPIHost
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			u := interpreter.ListenerURL(host, config.ActiveMonitorConfig.TLSEnabled)
			interpreter.StartListener(ctx, u, func(reading *interpreter.MeterReading) {
				if jsonOutput {
					fmt.Println(string(reading.ToJsonBytes()))
					return
				}
				handleMeterReading(reading)
			})
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func handleMeterReading(reading *interpreter.MeterReading) {
	log.WithField("samples", reading.SampleCount).Info(reading.Measurement().String())
	if reading.Alarms != 0 {
		log.Warnf("PZEM alarm bits set: 0x%04X", reading.Alarms)
	}
}
