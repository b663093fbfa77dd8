package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"syreclabs.com/go/faker"

	"github.com/drblury/pipeflow"
)

type demoOptions struct {
	cfg     pipeflow.Config
	count   int
	seed    int64
	forward bool
	topic   string
	serve   bool
}

func newDemoCmd(newLogger func(io.Writer) (pipeflow.ServiceLogger, error)) *cobra.Command {
	opts := &demoOptions{}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Process generated orders through a pipeline",
		Long: `Builds a pipeline with an order handler and a console subscriber, then
processes --count generated orders. With --forward every order is also
published to the transport selected by --forward-system.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger, err := newLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runDemo(ctx, opts, logger, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.count, "count", "n", 5, "Number of orders to process")
	flags.Int64Var(&opts.seed, "seed", 0, "Seed for the order generator (0 uses the clock)")
	flags.BoolVar(&opts.forward, "forward", false, "Forward processed orders to a transport")
	flags.StringVar(&opts.topic, "topic", "orders", "Topic forwarded orders are published to")
	flags.BoolVar(&opts.serve, "serve", false, "Keep the metrics and web endpoints up until interrupted")

	flags.StringVar(&opts.cfg.ForwardSystem, "forward-system", "channel", "Transport used with --forward")
	flags.StringVar(&opts.cfg.ForwardCodec, "codec", "json", "Payload codec (json, msgpack)")
	flags.BoolVar(&opts.cfg.ForwardCloudEvents, "cloudevents", false, "Wrap forwarded payloads in CloudEvents")
	flags.StringVar(&opts.cfg.ForwardSource, "source", "pipeflow-demo", "CloudEvents source attribute")
	flags.StringSliceVar(&opts.cfg.KafkaBrokers, "kafka-brokers", nil, "Kafka brokers")
	flags.StringVar(&opts.cfg.RabbitMQURL, "rabbitmq-url", "", "RabbitMQ URL")
	flags.StringVar(&opts.cfg.NATSURL, "nats-url", "", "NATS URL")
	flags.StringVar(&opts.cfg.HTTPPublisherURL, "http-url", "", "Base URL for the http transport")
	flags.StringVar(&opts.cfg.IOFile, "io-file", "", "File written by the io transport")
	flags.StringVar(&opts.cfg.GoCloudURL, "gocloud-url", "", `gocloud.dev topic URL, e.g. "mem://{topic}"`)
	flags.StringVar(&opts.cfg.AWSRegion, "aws-region", "", "AWS region")
	flags.StringVar(&opts.cfg.AWSEndpoint, "aws-endpoint", "", "AWS endpoint override (LocalStack)")
	flags.IntVar(&opts.cfg.MetricsPort, "metrics-port", 0, "Port for /metrics with --serve")
	flags.IntVar(&opts.cfg.WebUIPort, "webui-port", 0, "Port for the web API with --serve")

	return cmd
}

func runDemo(ctx context.Context, opts *demoOptions, logger pipeflow.ServiceLogger, out io.Writer) error {
	cfg := opts.cfg
	if !opts.forward {
		cfg.ForwardSystem = ""
	}
	if opts.serve {
		cfg.MetricsEnabled = true
		cfg.WebUIEnabled = true
	}

	seed := opts.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	faker.Seed(seed)

	out = &syncWriter{w: out}

	p, err := pipeflow.NewPipeline(ctx, &cfg, logger, pipeflow.PipelineDependencies{
		Middlewares: []pipeflow.MiddlewareRegistration{pipeflow.TimingMiddleware(logger)},
	})
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeoutOrDefault())
		defer cancel()
		if err := p.Close(closeCtx); err != nil {
			logger.Error("Pipeline close failed", err, nil)
		}
	}()

	if err := pipeflow.RegisterHandler(p, pipeflow.HandlerRegistration[Order]{
		Name:    "orders",
		Handler: orderHandler{logger: logger},
	}); err != nil {
		return err
	}
	if err := pipeflow.RegisterSubscriber(p, pipeflow.SubscriberRegistration[Order]{
		Name:       "console",
		Subscriber: consoleSubscriber{out: out},
	}); err != nil {
		return err
	}
	if opts.forward {
		if err := pipeflow.RegisterForwarder[Order](p, pipeflow.ForwardOptions{Topic: opts.topic}); err != nil {
			return err
		}
		logger.Info("Forwarding orders", pipeflow.LogFields{"transport": p.TransportCapabilities().Name, "topic": opts.topic})
	}

	for i := 0; i < opts.count; i++ {
		if ctx.Err() != nil {
			break
		}
		order := fakeOrder()
		saved, err := pipeflow.ProcessAs[SavedOrder](ctx, p, order)
		if err != nil {
			logger.Error("Order processing failed", err, pipeflow.LogFields{"order_id": order.ID})
			continue
		}
		fmt.Fprintf(out, "processed %s: %s\n", saved.ID, saved.Status)
	}

	if !opts.serve {
		return nil
	}
	logger.Info("Serving until interrupted", pipeflow.LogFields{"metrics": cfg.MetricsAddr(), "webui": cfg.WebUIAddr()})
	if err := p.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
