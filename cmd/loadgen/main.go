package main

import (
	"context"
	"math/rand/v2"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/okian/capboard/internal/loadgen"
	"github.com/okian/capboard/pkg/logger"
)

var (
	appName = "capboard-loadgen"
	appSha  = "populated-at-link-time"
)

func main() {
	if err := makeApp().Run(os.Args); err != nil {
		os.Stderr.WriteString("load run failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func makeApp() *cli.App {
	app := cli.NewApp()
	app.Name = appName
	app.Version = appSha
	app.Usage = "create companies, fire market-cap ticks at capboard and verify the leaderboard"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "url",
			Value:  "http://localhost:9080",
			EnvVar: "LOADGEN_URL",
			Usage:  "Base URL of the capboard service",
		},
		cli.IntFlag{
			Name:   "companies",
			Value:  100,
			EnvVar: "LOADGEN_COMPANIES",
			Usage:  "Number of companies to create",
		},
		cli.IntFlag{
			Name:   "ticks",
			Value:  10000,
			EnvVar: "LOADGEN_TICKS",
			Usage:  "Number of ticks to submit",
		},
		cli.IntFlag{
			Name:   "workers",
			Value:  runtime.NumCPU() * 2,
			EnvVar: "LOADGEN_WORKERS",
			Usage:  "Number of concurrent submitters",
		},
		cli.DurationFlag{
			Name:   "timeout",
			Value:  30 * time.Second,
			EnvVar: "LOADGEN_TIMEOUT",
			Usage:  "HTTP request timeout",
		},
		cli.DurationFlag{
			Name:   "settle",
			Value:  time.Minute,
			EnvVar: "LOADGEN_SETTLE",
			Usage:  "How long to wait for submitted ticks to be applied",
		},
		cli.StringFlag{
			Name:   "transport",
			Value:  loadgen.TransportHTTP,
			EnvVar: "LOADGEN_TRANSPORT",
			Usage:  "Tick transport: http or kafka",
		},
		cli.StringFlag{
			Name:   "kafka-brokers",
			Value:  "localhost:9092",
			EnvVar: "LOADGEN_KAFKA_BROKERS",
			Usage:  "Comma separated Kafka brokers (kafka transport)",
		},
		cli.StringFlag{
			Name:   "kafka-topic",
			Value:  "capboard.ticks",
			EnvVar: "LOADGEN_KAFKA_TOPIC",
			Usage:  "Kafka tick topic (kafka transport)",
		},
		cli.Uint64Flag{
			Name:   "seed",
			EnvVar: "LOADGEN_SEED",
			Usage:  "Random seed; 0 picks one from the clock",
		},
		cli.BoolFlag{
			Name:   "verbose",
			EnvVar: "LOADGEN_VERBOSE",
			Usage:  "Log every failed tick",
		},
	}
	app.Action = runMain
	return app
}

func runMain(appCtx *cli.Context) error {
	if err := logger.Init(); err != nil {
		return err
	}
	if appCtx.Bool("verbose") {
		_ = logger.SetLevelString("debug")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seed := appCtx.Uint64("seed")
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	log := logger.Get().Named("loadgen")
	log.Info(ctx, "random seed", logger.Any("seed", seed))

	cfg := &loadgen.Config{
		BaseURL:      appCtx.String("url"),
		Companies:    appCtx.Int("companies"),
		Ticks:        appCtx.Int("ticks"),
		Workers:      appCtx.Int("workers"),
		Timeout:      appCtx.Duration("timeout"),
		Settle:       appCtx.Duration("settle"),
		Transport:    appCtx.String("transport"),
		KafkaBrokers: strings.Split(appCtx.String("kafka-brokers"), ","),
		KafkaTopic:   appCtx.String("kafka-topic"),
		Verbose:      appCtx.Bool("verbose"),
	}
	_, err := loadgen.Run(ctx, cfg, log, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
	return err
}
