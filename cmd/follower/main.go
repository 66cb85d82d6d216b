// Command follower runs a single 2PC participant: a KVStore, a TPCLog,
// and the state machine that ties them together, fronted by an HTTP
// server. On startup it recovers any in-flight transaction from its log
// and registers itself with the configured leader.
//
// Configuration:
//   - CONFIG_FILE: optional path to a YAML config file
//   - FOLLOWER_DIRNAME, FOLLOWER_HOSTNAME, FOLLOWER_PORT,
//     FOLLOWER_LEADER_ADDR, FOLLOWER_MAX_THREADS: overrides
//
// Example usage:
//
//	FOLLOWER_DIRNAME=/var/lib/kv/f1 FOLLOWER_PORT=9001 \
//	FOLLOWER_LEADER_ADDR=127.0.0.1:8080 ./follower
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
	"github.com/dreamware/tpckv/internal/follower"
	"github.com/dreamware/tpckv/internal/kvmessage"
	"github.com/dreamware/tpckv/internal/wire"
)

var logFatal = log.Fatalf

func main() {
	cfg, err := config.LoadFollowerConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logFatal("follower: %v", err)
		return
	}

	f, err := follower.Open(cfg.Dirname, cfg.Hostname, cfg.Port)
	if err != nil {
		logFatal("follower: open %s: %v", cfg.Dirname, err)
		return
	}
	log.Printf("follower: recovered in state %s", f.State())

	addr := fmt.Sprintf("%s:%d", cfg.Hostname, cfg.Port)
	s := &http.Server{
		Addr:              addr,
		Handler:           wire.NewFollowerRouter(f),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("follower: listening on %s", addr)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("follower: listen: %v", err)
		}
	}()

	register(context.Background(), cfg.LeaderAddr, cfg.Hostname, cfg.Port)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Printf("follower: shutdown error: %v", err)
	}
	log.Println("follower stopped")
}

// register announces this follower to the leader, retrying on failure
// to tolerate the leader starting up after its followers.
func register(ctx context.Context, leaderAddr, host string, port int) {
	client := wire.NewClient()
	for i := 0; i < 10; i++ {
		resp, err := client.Register(ctx, leaderAddr, host, port)
		if err == nil && resp.Type == kvmessage.Success {
			log.Printf("follower: registered with leader @ %s", leaderAddr)
			return
		}
		if err == nil {
			log.Printf("follower: registration rejected: %s", resp.Body)
		} else {
			log.Printf("follower: register retry %d: %v", i+1, err)
		}
		time.Sleep(400 * time.Millisecond)
	}
	logFatal("follower: could not register with leader @ %s", leaderAddr)
}
