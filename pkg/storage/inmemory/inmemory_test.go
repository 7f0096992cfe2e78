package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/skycast/pkg/storage"
	"github.com/papercomputeco/skycast/pkg/storage/inmemory"
	"github.com/papercomputeco/skycast/pkg/storage/storagetest"
)

var _ = Describe("Driver", func() {
	storagetest.DescribeDriver(func() storage.Driver {
		return inmemory.NewDriver()
	})

	It("hands out copies", func() {
		ctx := context.Background()
		d := inmemory.NewDriver()
		turn := storagetest.NewTurn("turn-1", "scripted", 0)
		Expect(d.Put(ctx, turn)).To(Succeed())

		turn.Response = "mutated"
		got, err := d.Get(ctx, "turn-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Response).To(Equal("It's sunny in Paris."))
	})
})
