package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flowlens/flowlens/cfg"
	"github.com/flowlens/flowlens/cmd/internal/cmderr"
	"github.com/flowlens/flowlens/codegen"
	"github.com/flowlens/flowlens/packet"
	"github.com/flowlens/flowlens/pcap"
	"github.com/flowlens/flowlens/printer"
	"github.com/flowlens/flowlens/proto"
	"github.com/flowlens/flowlens/proto/dnsp"
	"github.com/flowlens/flowlens/proto/httpp"
	"github.com/flowlens/flowlens/proto/quicp"
	"github.com/flowlens/flowlens/proto/tlsp"
	"github.com/flowlens/flowlens/stats"
	"github.com/flowlens/flowlens/subscription"
	"github.com/flowlens/flowlens/worker"
)

const (
	defaultMempoolSlabs    = 4096
	defaultMempoolSlabSize = 65536
	defaultReassemblyRing  = 64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture, reassemble, identify, and dispatch matching traffic.",
	Long:  "run loads the configured subscriptions, compiles them into a filter/tracker program, and starts one worker core per configured interface queue.",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().String("iface", "", "Network interface to capture from (overrides config).")
	viper.BindPFlag("iface", runCmd.Flags().Lookup("iface"))
}

func runRun(cmd *cobra.Command, args []string) error {
	settings := cfg.Settings()
	settings.BindPFlag("iface", cmd.Flags().Lookup("iface"))

	iface := settings.GetString("iface")
	if iface == "" {
		return cmderr.FlowlensErr{Err: errors.New("no interface configured; set `iface` in the config file or pass --iface")}
	}
	cores := settings.GetInt("cores")
	if cores < 1 {
		cores = 1
	}

	decls, err := loadSubscriptions()
	if err != nil {
		return cmderr.FlowlensErr{Err: err}
	}
	if len(decls) == 0 {
		printer.Stderr.Warningln("no subscriptions configured; the daemon will run but match nothing.")
	}

	registry := proto.NewRegistry()
	registry.Enable(proto.KindHTTP, httpp.New)
	registry.Enable(proto.KindTLS, tlsp.New)
	registry.Enable(proto.KindDNS, dnsp.New)
	registry.Enable(proto.KindQUIC, quicp.New)

	program, err := codegen.Build(decls, registry)
	if err != nil {
		return cmderr.FlowlensErr{Err: errors.Wrap(err, "failed to compile subscriptions")}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	callbacks := &loggingRegistry{out: printer.Stdout}

	now := time.Now()
	handles, err := startCores(ctx, iface, cores, program, callbacks, now)
	if err != nil {
		return cmderr.FlowlensErr{Err: err}
	}

	printer.Stderr.Infof("flowlensd running on %s with %d core(s); %d subscription(s) loaded\n", iface, cores, len(decls))
	<-ctx.Done()
	printer.Stderr.Infoln("shutting down")

	for _, h := range handles {
		h.Close()
	}
	reportFinalStats()
	return nil
}

type coreHandle struct {
	source *pcap.LiveSource
}

func (h *coreHandle) Close() { h.source.Close() }

func startCores(ctx context.Context, iface string, cores int, program *codegen.Program, callbacks worker.CallbackRegistry, now time.Time) ([]*coreHandle, error) {
	pool := packet.NewPool(defaultMempoolSlabs, defaultMempoolSlabSize)
	var handles []*coreHandle

	for id := 0; id < cores; id++ {
		source, err := pcap.NewLiveSource(iface, "", pool)
		if err != nil {
			for _, h := range handles {
				h.Close()
			}
			return nil, errors.Wrapf(err, "failed to start core %d", id)
		}
		handles = append(handles, &coreHandle{source: source})

		core := worker.NewCore(worker.Config{
			CoreID:         id,
			ReassemblyRing: defaultReassemblyRing,
			WheelSlots:     4096,
			IdleTimeout:    60 * time.Second,
		}, source, program, callbacks, now)

		go core.Run(ctx)
	}
	return handles, nil
}

func loadSubscriptions() ([]subscription.Declaration, error) {
	path := cfg.Settings().GetString("subscriptions")
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read subscriptions file %s", path)
	}
	return subscription.Load(data)
}

func reportFinalStats() {
	for _, s := range stats.Global().Snapshot() {
		printer.Stderr.Infof(
			"core %d: received=%d dropped=%d mempool_exhausted=%d callbacks=%d\n",
			s.CoreID, s.PacketsReceived, s.PacketsDropped, s.MempoolExhausted, s.CallbacksFired,
		)
	}
}

// loggingRegistry is the default worker.CallbackRegistry: it has no
// knowledge of application-specific callback bodies, so it logs each
// invocation. A real deployment supplies its own CallbackRegistry
// (e.g. loaded via a Go plugin or linked in at build time) in place of
// this one.
type loggingRegistry struct {
	out printer.P
}

func (r *loggingRegistry) Invoke(callback string, view any) {
	r.out.Infof("callback %s: %s\n", callback, fmt.Sprintf("%+v", view))
}
