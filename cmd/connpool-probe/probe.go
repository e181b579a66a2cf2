package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/soyvural/connpool/v2"
)

type probeCmd struct {
	configPath  string
	rounds      int
	metricsAddr string
	dialTimeout time.Duration
	verbose     bool
}

func newRootCmd() *cobra.Command {
	c := &probeCmd{}
	cmd := &cobra.Command{
		Use:          "connpool-probe [flags] host:port...",
		Short:        "Cycle pooled connections against servers and report pool stats",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE:         c.run,
	}

	flags := cmd.Flags()
	flags.StringVar(&c.configPath, "config", "", "path to a YAML pool config")
	flags.IntVar(&c.rounds, "rounds", 1, "acquire/release rounds per address")
	flags.StringVar(&c.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address until interrupted")
	flags.DurationVar(&c.dialTimeout, "dial-timeout", 5*time.Second, "TCP dial timeout")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func (c *probeCmd) run(cmd *cobra.Command, args []string) (err error) {
	if c.rounds < 1 {
		return fmt.Errorf("rounds must be at least 1, got %d", c.rounds)
	}
	addrs := make([]connpool.Address, 0, len(args))
	for _, arg := range args {
		addr, err := connpool.ParseAddress(arg)
		if err != nil {
			return err
		}
		addrs = append(addrs, addr)
	}
	cfg, err := connpool.LoadConfig(c.configPath)
	if err != nil {
		return err
	}

	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	if c.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	reg := prometheus.NewRegistry()
	p, err := connpool.New(
		connpool.DialFactory(&net.Dialer{Timeout: c.dialTimeout}),
		connpool.DirectErrorHandler{},
		connpool.WithName("probe"),
		connpool.WithConfig(cfg),
		connpool.WithLogger(logger),
		connpool.WithRegisterer(reg),
	)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, p.Close())
	}()

	out := cmd.OutOrStdout()
	var failed error
	for _, addr := range addrs {
		for i := 0; i < c.rounds; i++ {
			if err := connpool.WithConn(p, addr, func(connpool.Conn) error { return nil }); err != nil {
				failed = multierr.Append(failed, err)
				break
			}
		}
		fmt.Fprintf(out, "%s\tin_use=%d\n", addr, p.InUseConnectionCount(addr))
	}

	s := p.Stats()
	fmt.Fprintf(out, "requests=%d acquired=%d created=%d evicted=%d idle=%d\n",
		s.Request(), s.Success(), s.Created(), s.Evicted(), s.Idle())

	if failed != nil || c.metricsAddr == "" {
		return failed
	}
	return serveMetrics(cmd.Context(), c.metricsAddr, reg, logger)
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger logrus.FieldLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("address", addr).Info("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
