// Command cepdemo wires a handful of pattern chains end to end and drives
// them with a small in-process event script, mirroring the scenarios this
// engine is built against. It is a demonstration harness, not a server:
// go-crablet's internal/web-app is the template for its config/logging
// conventions, trimmed to what an in-process demo needs.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strconv"
	"time"

	"cepcore/internal/router"
	"cepcore/pkg/cep"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetOutput(os.Stderr)
}

func main() {
	grpcAddr := flag.String("grpc-addr", envOr("CEPDEMO_GRPC_ADDR", ""), "gRPC address; this demo only logs it and does not start the gRPC transport")
	expireMS := envIntOr("CEPDEMO_EXPIRE_INTERVAL_MS", 0)
	flag.Parse()

	r := router.New(time.Duration(expireMS) * time.Millisecond)

	registerSequenceChain(r)
	registerEveryCountChain(r)
	registerLogicalAndChain(r)
	registerWithinChain(r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go r.Run(ctx)

	if *grpcAddr != "" {
		log.Printf("cepdemo: gRPC transport requested at %s but not started by this demo script; wire internal/transport/grpcpattern.Serve from your own main if needed", *grpcAddr)
	}

	runDemoScript(r)

	time.Sleep(100 * time.Millisecond) // let the last dispatch settle
	r.Close()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

// registerSequenceChain builds A -> B in Sequence mode (scenario: a basic
// two-step sequence with no filter).
func registerSequenceChain(r *router.Router) {
	root := cep.NewSequencePattern(cep.NewStreamPattern("a", "LoginAttempt", nil), cep.NewStreamPattern("b", "LoginSuccess", nil))
	chain, err := cep.NewPatternChainBuilder().Build(root, cep.Sequence, nil, nil, func(se *cep.StateEvent) {
		log.Printf("[sequence] matched instance %d at t=%d", se.ID, se.Timestamp)
	})
	if err != nil {
		log.Fatalf("registerSequenceChain: %v", err)
	}
	r.Register(chain)
}

// registerEveryCountChain builds EVERY(A{3} -> B), the sliding-window count
// quantifier scenario.
func registerEveryCountChain(r *router.Router) {
	root := cep.NewEveryPattern(cep.NewSequencePattern(
		cep.NewCountPattern(cep.NewStreamPattern("a", "Deposit", nil), 3, 3),
		cep.NewStreamPattern("b", "Withdrawal", nil),
	))
	chain, err := cep.NewPatternChainBuilder().Build(root, cep.Pattern, nil, nil, func(se *cep.StateEvent) {
		log.Printf("[every-count] matched instance %d, %d deposits then a withdrawal", se.ID, se.CountEventsAt(0))
	})
	if err != nil {
		log.Fatalf("registerEveryCountChain: %v", err)
	}
	r.Register(chain)
}

// registerLogicalAndChain builds `FraudFlag AND HighValueTransfer`,
// independent of arrival order.
func registerLogicalAndChain(r *router.Router) {
	root := cep.NewLogicalPattern(cep.NewStreamPattern("f", "FraudFlag", nil), cep.LogicalAnd, cep.NewStreamPattern("t", "HighValueTransfer", nil))
	chain, err := cep.NewPatternChainBuilder().Build(root, cep.Pattern, nil, nil, func(se *cep.StateEvent) {
		log.Printf("[logical-and] matched instance %d", se.ID)
	})
	if err != nil {
		log.Fatalf("registerLogicalAndChain: %v", err)
	}
	r.Register(chain)
}

// registerWithinChain builds A -> B bounded by a 5-second WITHIN window.
func registerWithinChain(r *router.Router) {
	root := cep.NewSequencePattern(cep.NewStreamPattern("a", "PageView", nil), cep.NewStreamPattern("b", "Purchase", nil))
	within := &cep.WithinConstraint{Kind: cep.WithinTimeKind, Duration: 5 * time.Second}
	chain, err := cep.NewPatternChainBuilder().Build(root, cep.Pattern, within, nil, func(se *cep.StateEvent) {
		log.Printf("[within] matched instance %d within the window", se.ID)
	})
	if err != nil {
		log.Fatalf("registerWithinChain: %v", err)
	}
	r.Register(chain)
}

// runDemoScript feeds a handful of events through the router synchronously,
// sleeping briefly between sends so the dispatch goroutine drains before
// the next one (this demo does not need throughput, only readable log
// output).
func runDemoScript(r *router.Router) {
	send := func(streamID string, ts int64) {
		r.In() <- router.Input{StreamID: streamID, Timestamp: ts}
		time.Sleep(5 * time.Millisecond)
	}

	send("LoginAttempt", 1)
	send("LoginSuccess", 2)

	send("Deposit", 10)
	send("Deposit", 11)
	send("Deposit", 12)
	send("Deposit", 13)
	send("Withdrawal", 14)

	send("HighValueTransfer", 20)
	send("FraudFlag", 21)

	send("PageView", 30)
	send("Purchase", 31)
}
