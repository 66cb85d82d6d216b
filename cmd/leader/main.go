// Command leader runs the 2PC coordinator: it accepts follower
// registrations until its ring fills, then serves client GET/PUT/DELETE
// traffic by fanning requests out across the ring.
//
// Configuration:
//   - CONFIG_FILE: optional path to a YAML config file
//   - LEADER_CAPACITY, LEADER_REDUNDANCY, LEADER_MAX_THREADS,
//     LEADER_HOSTNAME, LEADER_PORT, LEADER_VOTE_TIMEOUT,
//     LEADER_RETRY_BACKOFF_MIN, LEADER_RETRY_BACKOFF_MAX: overrides
//
// Example usage:
//
//	LEADER_CAPACITY=3 LEADER_REDUNDANCY=2 LEADER_PORT=8080 ./leader
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dreamware/tpckv/internal/config"
	"github.com/dreamware/tpckv/internal/leader"
	"github.com/dreamware/tpckv/internal/wire"
)

// logFatal is a variable so tests can intercept a fatal startup error
// without terminating the test process.
var logFatal = log.Fatalf

func main() {
	cfg, err := config.LoadLeaderConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logFatal("leader: %v", err)
		return
	}

	client := wire.NewClient()
	coord := leader.NewCoordinator(cfg.Capacity, cfg.Redundancy, client, leader.Options{
		VoteTimeout:     cfg.VoteTimeout.Duration,
		RetryBackoffMin: cfg.RetryBackoffMin.Duration,
		RetryBackoffMax: cfg.RetryBackoffMax.Duration,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Hostname, cfg.Port)
	s := &http.Server{
		Addr:              addr,
		Handler:           wire.NewLeaderRouter(coord),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("leader: listening on %s (capacity=%d redundancy=%d)", addr, cfg.Capacity, cfg.Redundancy)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("leader: listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Printf("leader: shutdown error: %v", err)
	}
	log.Println("leader stopped")
}
