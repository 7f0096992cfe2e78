package nop_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/skycast/pkg/eventstream"
	"github.com/papercomputeco/skycast/pkg/eventstream/nop"
	"github.com/papercomputeco/skycast/pkg/storage"
)

var _ = Describe("Publisher", func() {
	var p *nop.Publisher

	BeforeEach(func() {
		p = nop.NewPublisher()
	})

	It("satisfies eventstream.Publisher", func() {
		var _ eventstream.Publisher = p
	})

	It("rejects nil events without counting them", func() {
		Expect(p.PublishTurn(context.Background(), nil)).To(MatchError(eventstream.ErrNilTurnEvent))
		Expect(p.Dropped()).To(BeZero())
	})

	It("counts dropped turns", func() {
		for _, id := range []string{"turn-1", "turn-2"} {
			event := eventstream.NewTurnCompletedEvent(&storage.Turn{ID: id}, "")
			Expect(p.PublishTurn(context.Background(), event)).To(Succeed())
		}
		Expect(p.Dropped()).To(Equal(int64(2)))
		Expect(p.Close()).To(Succeed())
	})
})
