// Package scenarios is a ginkgo/gomega BDD suite exercising the engine
// end to end through internal/router, the way go-crablet's own ginkgo
// suites drive its public API rather than internal package functions.
package scenarios

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"cepcore/internal/condeval"
	"cepcore/internal/router"
	"cepcore/pkg/cep"
)

func TestScenarios(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "pattern matching scenarios")
}

// collector is a thread-safe cep.Consumer sink, since matches arrive from
// the router's own dispatch goroutine.
type collector struct {
	mu      sync.Mutex
	matches []*cep.StateEvent
}

func (c *collector) consume(se *cep.StateEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.matches = append(c.matches, se)
}

func (c *collector) snapshot() []*cep.StateEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*cep.StateEvent(nil), c.matches...)
}

// harness drives one registered chain's router synchronously: send blocks
// until stabilize for that input has completed, so scenario assertions
// never race the dispatch goroutine.
type harness struct {
	r      *router.Router
	cancel context.CancelFunc
	done   chan struct{}
}

func newHarness(expireInterval time.Duration) *harness {
	r := router.New(expireInterval)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	return &harness{r: r, cancel: cancel, done: done}
}

func (h *harness) send(streamID string, ts int64, data ...cep.AttributeValue) {
	h.r.In() <- router.Input{StreamID: streamID, Timestamp: ts, Data: data}
	time.Sleep(10 * time.Millisecond) // let the dispatch goroutine drain
}

func (h *harness) close() {
	h.r.Close()
	<-h.done
}

func priceAttr(p float64) []cep.AttributeValue {
	return []cep.AttributeValue{map[string]any{"price": p}}
}

var _ = Describe("pattern matching", func() {

	// S1 - Simple sequence in Pattern mode.
	It("matches A->B skipping an unrelated C in Pattern mode", func() {
		root := cep.NewSequencePattern(cep.NewStreamPattern("a", "A", nil), cep.NewStreamPattern("b", "B", nil))
		col := &collector{}
		chain, err := cep.NewPatternChainBuilder().Build(root, cep.Pattern, nil, nil, col.consume)
		Expect(err).NotTo(HaveOccurred())

		h := newHarness(0)
		h.r.Register(chain)
		h.send("A", 1)
		h.send("C", 2)
		h.send("B", 3)
		h.close()

		got := col.snapshot()
		Expect(got).To(HaveLen(1))
		Expect(got[0].GetStreamEvent(0).Timestamp).To(Equal(int64(1)))
		Expect(got[0].GetStreamEvent(1).Timestamp).To(Equal(int64(3)))
	})

	// S2 - Simple sequence in Sequence mode: the unrelated C dissolves the
	// pending instance before B arrives.
	It("dissolves the pending instance on an unrelated event in Sequence mode", func() {
		root := cep.NewSequencePattern(cep.NewStreamPattern("a", "A", nil), cep.NewStreamPattern("b", "B", nil))
		col := &collector{}
		chain, err := cep.NewPatternChainBuilder().Build(root, cep.Sequence, nil, nil, col.consume)
		Expect(err).NotTo(HaveOccurred())

		h := newHarness(0)
		h.r.Register(chain)
		h.send("A", 1)
		h.send("C", 2)
		h.send("B", 3)
		h.close()

		Expect(col.snapshot()).To(BeEmpty())
	})

	// S3 - Exact count quantifier: a fourth A must not extend a maximal
	// instance.
	It("stops extending a count quantifier once max is reached", func() {
		root := cep.NewCountPattern(cep.NewStreamPattern("a", "A", nil), 3, 3)
		col := &collector{}
		chain, err := cep.NewPatternChainBuilder().Build(root, cep.Pattern, nil, nil, col.consume)
		Expect(err).NotTo(HaveOccurred())

		h := newHarness(0)
		h.r.Register(chain)
		h.send("A", 1)
		h.send("A", 2)
		h.send("A", 3)
		h.send("A", 4)
		h.close()

		got := col.snapshot()
		Expect(got).To(HaveLen(1))
		Expect(got[0].CountEventsAt(0)).To(Equal(3))
		chainEvents := got[0].GetEventChain(0)
		Expect(chainEvents).To(HaveLen(3))
		Expect(chainEvents[2].Timestamp).To(Equal(int64(3)))
	})

	// S4 - Cross-stream filter: the middle Trade fails e2.price >
	// e1.price*1.1 and is ignored in Pattern mode.
	It("ignores a candidate that fails the cross-stream filter", func() {
		filter, err := condeval.Compile("e2[last].price > e1[last].price * 1.1", []condeval.AliasBinding{
			{Alias: "e1", Position: 0},
			{Alias: "e2", Position: 1},
		})
		Expect(err).NotTo(HaveOccurred())

		root := cep.NewSequencePattern(
			cep.NewStreamPattern("e1", "Trade", nil),
			cep.NewStreamPattern("e2", "Trade", filter),
		)
		col := &collector{}
		chain, err := cep.NewPatternChainBuilder().Build(root, cep.Pattern, nil, nil, col.consume)
		Expect(err).NotTo(HaveOccurred())

		h := newHarness(0)
		h.r.Register(chain)
		h.send("Trade", 1, priceAttr(100)...)
		h.send("Trade", 2, priceAttr(105)...)
		h.send("Trade", 3, priceAttr(120)...)
		h.close()

		got := col.snapshot()
		Expect(got).To(HaveLen(1))
		e1 := got[0].GetStreamEvent(0).BeforeWindowData[0].(map[string]any)
		e2 := got[0].GetStreamEvent(1).BeforeWindowData[0].(map[string]any)
		Expect(e1["price"]).To(Equal(100.0))
		Expect(e2["price"]).To(Equal(120.0))
	})

	// S5 - EVERY sliding window: three overlapping A{3}->B matches.
	It("produces one overlapping match per slide of the count window", func() {
		root := cep.NewEveryPattern(cep.NewSequencePattern(
			cep.NewCountPattern(cep.NewStreamPattern("a", "A", nil), 3, 3),
			cep.NewStreamPattern("b", "B", nil),
		))
		col := &collector{}
		chain, err := cep.NewPatternChainBuilder().Build(root, cep.Pattern, nil, nil, col.consume)
		Expect(err).NotTo(HaveOccurred())

		h := newHarness(0)
		h.r.Register(chain)
		h.send("A", 1)
		h.send("A", 2)
		h.send("A", 3)
		h.send("A", 4)
		h.send("A", 5)
		h.send("B", 6)
		h.close()

		got := col.snapshot()
		Expect(got).To(HaveLen(3))

		wantFirstA := []int64{1, 2, 3}
		for i, se := range got {
			chainEvents := se.GetEventChain(0)
			Expect(chainEvents).To(HaveLen(3))
			Expect(chainEvents[0].Timestamp).To(Equal(wantFirstA[i]))
			Expect(se.GetStreamEvent(1).Timestamp).To(Equal(int64(6)))
		}
	})

	// S6 - WITHIN expiration: the pending seeded by A(0) expires before
	// B(15) arrives.
	It("expires a pending instance once its WITHIN window has elapsed", func() {
		root := cep.NewSequencePattern(cep.NewStreamPattern("a", "A", nil), cep.NewStreamPattern("b", "B", nil))
		within := &cep.WithinConstraint{Kind: cep.WithinTimeKind, Duration: 10 * time.Millisecond}
		col := &collector{}
		chain, err := cep.NewPatternChainBuilder().Build(root, cep.Pattern, within, nil, col.consume)
		Expect(err).NotTo(HaveOccurred())

		h := newHarness(0)
		h.r.Register(chain)
		h.send("A", 0)
		for _, pre := range chain.PreProcessors() {
			_, _ = pre.ExpireEvents(16)
		}
		h.send("B", 15)
		h.close()

		Expect(col.snapshot()).To(BeEmpty())
	})

	// P10 - no double emission under OR regardless of arrival order.
	It("emits at most one match per pending state under Logical OR", func() {
		root := cep.NewLogicalPattern(cep.NewStreamPattern("f", "Fraud", nil), cep.LogicalOr, cep.NewStreamPattern("t", "HighValue", nil))
		col := &collector{}
		chain, err := cep.NewPatternChainBuilder().Build(root, cep.Pattern, nil, nil, col.consume)
		Expect(err).NotTo(HaveOccurred())

		h := newHarness(0)
		h.r.Register(chain)
		h.send("Fraud", 1)
		h.send("HighValue", 2)
		h.close()

		Expect(col.snapshot()).To(HaveLen(1))
	})

	// P1 - causal ordering: every emitted StateEvent's positions are
	// non-decreasing in timestamp.
	It("never emits a match whose positions regress in time", func() {
		root := cep.NewSequencePattern(cep.NewStreamPattern("a", "A", nil), cep.NewStreamPattern("b", "B", nil))
		col := &collector{}
		chain, err := cep.NewPatternChainBuilder().Build(root, cep.Pattern, nil, nil, col.consume)
		Expect(err).NotTo(HaveOccurred())

		h := newHarness(0)
		h.r.Register(chain)
		h.send("A", 5)
		h.send("B", 9)
		h.close()

		got := col.snapshot()
		Expect(got).To(HaveLen(1))
		Expect(got[0].GetStreamEvent(0).Timestamp).To(BeNumerically("<=", got[0].GetStreamEvent(1).Timestamp))
	})
})
