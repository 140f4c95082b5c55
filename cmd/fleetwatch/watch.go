// cmd/fleetwatch/watch.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalnine/fleetwatch/internal/dashboard"
	"github.com/signalnine/fleetwatch/internal/logging"
	"github.com/signalnine/fleetwatch/internal/poller"
	"github.com/signalnine/fleetwatch/internal/protocol"
	"github.com/signalnine/fleetwatch/internal/proxy"
	"github.com/signalnine/fleetwatch/internal/render"
)

var (
	watchServer   string
	watchHost     string
	watchPort     string
	watchInterval time.Duration
	watchLevel    string
)

// watchCmd is the host detail page in a terminal: one widget per metric kind,
// each on its own timer, fetching through the dashboard API.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live metrics for one host through a running dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, issues := proxy.Validate(watchHost, watchPort); len(issues) > 0 {
			return fmt.Errorf("%s", render.ErrorMessage("", proxy.Invalid{Issues: issues}))
		}

		logger := logging.New(logging.Config{Level: watchLevel})
		defer logger.Sync()

		ctx, stop := signalContext()
		defer stop()

		fetcher := dashboard.NewRemote(watchServer, logger.Named("remote"))
		widgets := startWidgets(ctx, fetcher, watchHost, watchPort, watchInterval, logger, &lockedWriter{w: os.Stdout})

		<-ctx.Done()
		for _, w := range widgets {
			w.Stop()
		}
		return nil
	},
}

// lockedWriter serializes lines from concurrently updating widgets
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) println(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

// startWidgets starts one independent widget per kind. The process table is
// fetched once; every other kind refreshes on interval.
func startWidgets(ctx context.Context, fetcher poller.Fetcher, host, port string, interval time.Duration,
	logger *zap.Logger, out *lockedWriter) []*poller.Widget {

	var widgets []*poller.Widget
	for _, kind := range protocol.Kinds() {
		kind := kind
		every := interval
		if kind == protocol.KindProcess {
			every = 0
		}

		w := poller.NewWidget(kind,
			func(ctx context.Context) proxy.Result { return fetcher.Fetch(ctx, host, port, kind) },
			poller.WithInterval(every),
			poller.WithLogger(logger.Named(string(kind))),
			poller.OnUpdate(func(res proxy.Result) {
				out.println(render.Result(kind, res, time.Now()))
			}))
		w.Start(ctx)
		widgets = append(widgets, w)
	}
	return widgets
}

func init() {
	watchCmd.Flags().StringVar(&watchServer, "server", "http://localhost:3000", "dashboard base URL")
	watchCmd.Flags().StringVar(&watchHost, "host", "", "agent hostname or IP")
	watchCmd.Flags().StringVar(&watchPort, "port", "8001", "agent port")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", poller.DefaultInterval, "refresh interval")
	watchCmd.Flags().StringVar(&watchLevel, "log-level", "warn", "log level")
	watchCmd.MarkFlagRequired("host")
}
