package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kelseyhightower/envconfig"
	"github.com/urfave/cli"

	"github.com/tofgen/tofgen/pkg/tofgen"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

func main() {
	app := newApp(version)
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("%+v", err)
	}
}

func newApp(version string) *cli.App {
	app := cli.NewApp()
	app.Name = "Tofgen"
	app.Version = fmt.Sprintf("%s, %s, %s, %s", version, commit, date, builtBy)

	app.Usage = "P4 based hardware traffic generator control plane"

	app.EnableBashCompletion = true
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "request, r",
			Usage: "traffic generation request file (YAML)",
		},
		cli.StringFlag{
			Name:  "device, d",
			Usage: "P4Runtime address of the switch, host:port",
		},
		cli.Uint64Flag{
			Name:  "device-id",
			Value: 1,
			Usage: "P4Runtime device id",
		},
		cli.Uint64Flag{
			Name:  "election-id",
			Value: 1,
			Usage: "election id used to claim mastership",
		},
		cli.BoolFlag{
			Name:  "tofino2",
			Usage: "target is a Tofino2 (enables SRv6, raises the rate ceiling)",
		},
		cli.IntFlag{
			Name:  "verbose, v",
			Usage: "log verbosity, 1 or higher enables debug logs",
		},
		cli.BoolFlag{
			Name:  "json-log",
			Usage: "log in JSON format",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "validate",
			Usage:  "check a request against the hardware limits without touching the device",
			Action: runValidate,
		},
		{
			Name:   "run",
			Usage:  "validate a request, program the switch and start generation",
			Action: runGenerate,
		},
		{
			Name:   "stats",
			Usage:  "poll egress counters of the ports in a request",
			Action: runStats,
		},
	}
	return app
}

func buildConfig(ctx *cli.Context) (tofgen.Config, error) {
	cfg := tofgen.Config{
		RequestPath: ctx.GlobalString("request"),
		DeviceAddr:  ctx.GlobalString("device"),
		DeviceID:    ctx.GlobalUint64("device-id"),
		ElectionID:  ctx.GlobalUint64("election-id"),
		Tofino2:     ctx.GlobalBool("tofino2"),
	}

	if err := envconfig.Process("tofgen", &cfg.LoggerConfig); err != nil {
		return cfg, fmt.Errorf("failed to read logger config from env: %w", err)
	}
	if v := ctx.GlobalInt("verbose"); v > 0 {
		cfg.LoggerConfig.Verbose = v
	}
	if ctx.GlobalBool("json-log") {
		cfg.LoggerConfig.JSON = true
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runValidate(ctx *cli.Context) error {
	cfg, err := buildConfig(ctx)
	if err != nil {
		return err
	}

	t, err := tofgen.New(cfg)
	if err != nil {
		return err
	}
	defer t.Close()

	return t.ValidateOnly()
}

func runGenerate(ctx *cli.Context) error {
	cfg, err := buildConfig(ctx)
	if err != nil {
		return err
	}

	t, err := tofgen.New(cfg)
	if err != nil {
		return err
	}
	defer t.Close()

	return t.Run(context.Background())
}

func runStats(ctx *cli.Context) error {
	cfg, err := buildConfig(ctx)
	if err != nil {
		return err
	}

	t, err := tofgen.New(cfg)
	if err != nil {
		return err
	}
	defer t.Close()

	runCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return t.ShowStats(runCtx)
}
