package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/skycast/cmd/skycast/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir  string
		origDir string
		out     *bytes.Buffer
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "skycast-config-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// A local .skycast dir takes precedence over ~/.skycast
		err = os.MkdirAll(filepath.Join(tmpDir, ".skycast"), 0o755)
		Expect(err).NotTo(HaveOccurred())

		err = os.Chdir(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		out = &bytes.Buffer{}
	})

	AfterEach(func() {
		err := os.Chdir(origDir)
		Expect(err).NotTo(HaveOccurred())
		os.RemoveAll(tmpDir)
	})

	execute := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	Describe("set subcommand", func() {
		It("sets a config value successfully", func() {
			Expect(execute("set", "agent.provider", "scripted")).To(Succeed())

			_, err := os.Stat(filepath.Join(tmpDir, ".skycast", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.String()).To(ContainSubstring("Set"))
		})

		It("rejects unknown keys", func() {
			Expect(execute("set", "invalid_key", "value")).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("rejects values outside the allowed set", func() {
			Expect(execute("set", "storage.driver", "tape")).To(HaveOccurred())
		})

		It("rejects a non-positive max steps", func() {
			Expect(execute("set", "agent.max_steps", "0")).To(HaveOccurred())
		})

		It("rejects an invalid duration", func() {
			Expect(execute("set", "weather.cache_ttl", "soon")).To(HaveOccurred())
		})

		It("requires exactly two arguments", func() {
			Expect(execute("set", "agent.provider")).To(HaveOccurred())
		})

		It("rejects zero arguments", func() {
			Expect(execute("set")).To(HaveOccurred())
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			Expect(execute("set", "agent.model", "qwen3")).To(Succeed())

			out.Reset()
			Expect(execute("get", "agent.model")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("qwen3"))
		})

		It("reports defaults when nothing is set", func() {
			Expect(execute("get", "storage.driver")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("sqlite"))
		})

		It("rejects unknown keys", func() {
			Expect(execute("get", "invalid_key")).To(HaveOccurred())
		})

		It("requires exactly one argument", func() {
			Expect(execute("get")).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key", func() {
			Expect(execute("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("server.listen"))
			Expect(out.String()).To(ContainSubstring("client.target"))
		})

		It("shows set values", func() {
			Expect(execute("set", "eventstream.kafka_brokers", "a:9092,b:9092")).To(Succeed())

			out.Reset()
			Expect(execute("list")).To(Succeed())
			Expect(out.String()).To(MatchRegexp(`eventstream\.kafka_brokers\s+= "a:9092,b:9092"`))
		})

		It("rejects any arguments", func() {
			Expect(execute("list", "extra")).To(HaveOccurred())
		})
	})
})
