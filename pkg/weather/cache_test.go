package weather_test

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/papercomputeco/skycast/pkg/weather"
)

var _ = Describe("CacheKey", func() {
	It("normalizes case and whitespace", func() {
		Expect(weather.CacheKey("  New   York ")).To(Equal("new york"))
	})
})

var _ = Describe("MemoryCache", func() {
	It("misses on an unknown key", func() {
		c := weather.NewMemoryCache(time.Minute)
		got, ok, err := c.Get(context.Background(), "paris")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
		Expect(got).To(BeNil())
	})

	It("returns a copy of stored conditions", func() {
		c := weather.NewMemoryCache(time.Minute)
		stored := &weather.Conditions{Location: "Paris", Temperature: 20}
		Expect(c.Set(context.Background(), "paris", stored)).To(Succeed())

		stored.Temperature = 99
		got, ok, err := c.Get(context.Background(), "paris")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(got.Temperature).To(BeNumerically("==", 20))
	})

	It("expires entries after the ttl", func() {
		c := weather.NewMemoryCache(10 * time.Millisecond)
		Expect(c.Set(context.Background(), "paris", &weather.Conditions{})).To(Succeed())

		Eventually(func() bool {
			_, ok, _ := c.Get(context.Background(), "paris")
			return ok
		}).Should(BeFalse())
		Expect(c.Len()).To(BeZero())
	})
})

var _ = Describe("RedisCache", func() {
	var rdb *redis.Client

	BeforeEach(func() {
		addr := os.Getenv("SKYCAST_TEST_REDIS_ADDR")
		if addr == "" {
			Skip("SKYCAST_TEST_REDIS_ADDR not set")
		}
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		DeferCleanup(rdb.Close)
	})

	It("round-trips conditions through redis", func() {
		ctx := context.Background()
		c := weather.NewRedisCache(rdb, time.Minute)
		key := "test-" + time.Now().Format(time.RFC3339Nano)

		_, ok, err := c.Get(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		Expect(c.Set(ctx, key, &weather.Conditions{Location: "Oslo, Norway", Code: 3})).To(Succeed())
		got, ok, err := c.Get(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(got.Location).To(Equal("Oslo, Norway"))
	})
})
