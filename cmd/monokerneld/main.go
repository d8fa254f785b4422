package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"code.hybscloud.com/monokernel/internal/klog"
	"code.hybscloud.com/monokernel/kernel"
)

func main() {
	var (
		userRingCap = flag.Int("user-ring-capacity", 1024, "capacity of the user-facing rings")
		deckRingCap = flag.Int("deck-ring-capacity", 1024, "capacity of each deck's dispatch ring")
		routingSize = flag.Int("routing-table-size", 256, "number of buckets in the routing table")
		fsBlocks    = flag.Uint("tagfs-blocks", 16384, "number of blocks in the TagFS volume")
		fsInodes    = flag.Uint("tagfs-inodes", 4096, "number of inodes in the TagFS volume")
		metricsAddr = flag.String("metrics-addr", ":9090", "listen address for the /metrics endpoint")
		verbose     = flag.Bool("v", false, "verbose (debug-level) logging")
	)
	flag.Parse()

	logConfig := klog.DefaultConfig()
	if *verbose {
		logConfig.Level = klog.LevelDebug
	}
	log := klog.New(logConfig)
	klog.SetDefault(log)

	reg := prometheus.NewRegistry()
	cfg := kernel.Config{
		UserRingCapacity: *userRingCap,
		DeckRingCapacity: *deckRingCap,
		RoutingTableSize: *routingSize,
		TagFSBlocks:      uint32(*fsBlocks),
		TagFSInodes:      uint32(*fsInodes),
		Log:              log,
	}
	sys := kernel.New(cfg, reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		log.Info("metrics listening", "addr", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			log.Error("metrics server stopped", "err", err)
		}
	}()

	stop := make(chan struct{})
	go sys.Run(stop)

	log.Info("monokerneld running",
		"user_ring_capacity", *userRingCap,
		"deck_ring_capacity", *deckRingCap,
		"routing_table_size", *routingSize,
	)
	fmt.Fprintf(os.Stderr, "monokerneld started; metrics on %s\n", *metricsAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("received shutdown signal")
	close(stop)
}
