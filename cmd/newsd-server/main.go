// Command newsd-server runs the multi-tenant NNTP server: the session
// listener, the ingestion queue, the peer federator, and the retention
// sweeper, wired together and shut down on SIGINT/SIGTERM. Grounded on
// the teacher's cmd/nntp-server/main.go: flag parsing into a config
// struct, a shared *sync.WaitGroup the components register against,
// and a signal channel gating graceful Stop()+Wait().
package main

import (
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nntpcore/newsd/internal/auth"
	"github.com/nntpcore/newsd/internal/config"
	"github.com/nntpcore/newsd/internal/control"
	"github.com/nntpcore/newsd/internal/filter"
	"github.com/nntpcore/newsd/internal/milter"
	"github.com/nntpcore/newsd/internal/peering"
	"github.com/nntpcore/newsd/internal/queue"
	"github.com/nntpcore/newsd/internal/retention"
	"github.com/nntpcore/newsd/internal/session"
	"github.com/nntpcore/newsd/internal/store"
	"github.com/nntpcore/newsd/internal/usage"
)

var appVersion = "-unset-"

func main() {
	config.AppVersion = appVersion
	log.Printf("starting newsd (version: %s)", config.AppVersion)

	var configPath string
	flagSet := newFlagSet(&configPath)
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		log.Fatalf("parse flags: %v", err)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cell := config.NewCell(cfg)

	st, err := store.Open(cfg.DB.DSN)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	as, err := auth.Open(cfg.DB.DSN)
	if err != nil {
		log.Fatalf("open auth store: %v", err)
	}
	defer as.Close()

	defaults := auth.Limits{}
	if cfg.Limits.DefaultMaxConnections > 0 {
		n := int64(cfg.Limits.DefaultMaxConnections)
		defaults.MaxConnections = &n
	}
	if cfg.Limits.DefaultBandwidthBytes > 0 {
		b := cfg.Limits.DefaultBandwidthBytes
		defaults.BandwidthCapBytes = &b
	}
	if cfg.Limits.DefaultBandwidthWindowSeconds > 0 {
		w := int64(cfg.Limits.DefaultBandwidthWindowSeconds)
		defaults.BandwidthWindowSeconds = &w
	}
	posting := cfg.Limits.DefaultPostingAllowed
	defaults.PostingAllowed = &posting
	tracker := usage.New(as, defaults)

	deps := filter.Deps{Store: st, Auth: as, Config: cfg}
	var optional []filter.Predicate
	if cfg.Filters.Milter != nil {
		optional = append(optional, filter.MilterPredicate{Client: &milter.Client{
			Network: cfg.Filters.Milter.Network,
			Addr:    cfg.Filters.Milter.Addr,
			UseTLS:  cfg.Filters.Milter.TLS,
			Timeout: cfg.Filters.Milter.Timeout,
		}})
	}
	chain := filter.NewChain(optional...)
	ctl := control.New(st, as)

	q := queue.New(cfg.Queue.Capacity, cfg.Queue.Workers, deps, chain, ctl)
	defer q.Stop()

	var wg sync.WaitGroup

	srv := session.NewServer(cell, st, as, tracker, q, &wg)
	if err := srv.Start(); err != nil {
		log.Fatalf("start session server: %v", err)
	}

	peers := peering.NewScheduler(peering.Deps{Store: st, Config: cell}, &wg)
	peers.Start()

	sweeper := retention.NewSweeper(st, cell, retention.DefaultInterval, &wg)
	sweeper.Start()

	log.Println("newsd is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down newsd")
	peers.Stop()
	sweeper.Stop()
	if err := srv.Stop(); err != nil {
		log.Printf("stop session server: %v", err)
	}
	wg.Wait()
	log.Println("newsd stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
