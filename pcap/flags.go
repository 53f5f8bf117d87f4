package pcap

import (
	"time"

	flag "github.com/spf13/pflag"
)

var (
	// ShutdownDrainFlag is a hidden duration flag for a post-shutdown
	// drain window. Nothing reads it: worker cores stop on a shutdown
	// signal without draining their ingress queues.
	ShutdownDrainFlag = flag.Duration("shutdown_drain_duration", 200*time.Millisecond, "Amount of time to keep draining the ingress queue after a shutdown signal.")
)

func init() {
	flag.CommandLine.MarkHidden("shutdown_drain_duration")
}
