// Package askcmder provides the ask command, a terminal client for a running
// skycast server.
package askcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/skycast/pkg/cliui"
	"github.com/papercomputeco/skycast/pkg/client"
	"github.com/papercomputeco/skycast/pkg/config"
	"github.com/papercomputeco/skycast/pkg/logger"
)

// answerWidth is the wrap column for rendered answers.
const answerWidth = 80

type askCommander struct {
	target     string
	agent      string
	city       string
	noStream   bool
	structured bool
	form       bool
	debug      bool

	out io.Writer
}

const askLongDesc string = `Ask a running skycast server about the weather.

By default the answer is streamed and printed as it arrives. The question is
taken from the arguments; --city asks about a city instead.

Examples:
  skycast ask "Should I bring an umbrella in Paris today?"
  skycast ask --city Tokyo
  skycast ask --city Tokyo --no-stream
  skycast ask --city Oslo --structured
  skycast ask --city Lima --agent scripted`

const askShortDesc string = "Ask a skycast server about the weather"

func NewAskCmd() *cobra.Command {
	cmder := &askCommander{}

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: askShortDesc,
		Long:  askLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagTarget})

			cmder.target = v.GetString("client.target")
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.out = cmd.OutOrStdout()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return cmder.run(ctx, strings.TrimSpace(strings.Join(args, " ")))
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagTarget, &cmder.target)
	cmd.Flags().StringVar(&cmder.agent, "agent", "", "Agent to ask (default: the server's default agent)")
	cmd.Flags().StringVarP(&cmder.city, "city", "c", "", "City to get the weather for")
	cmd.Flags().BoolVar(&cmder.noStream, "no-stream", false, "Wait for the whole answer instead of streaming it")
	cmd.Flags().BoolVar(&cmder.structured, "structured", false, "Ask for a structured weather report (requires --city)")
	cmd.Flags().BoolVar(&cmder.form, "form", false, "Submit the city as a form (requires --city)")
	cmd.MarkFlagsMutuallyExclusive("structured", "form", "no-stream")

	return cmd
}

func (c *askCommander) run(ctx context.Context, message string) error {
	if message == "" && c.city == "" {
		return errors.New("a question or --city is required")
	}
	if (c.structured || c.form) && c.city == "" {
		return errors.New("--city is required for structured and form requests")
	}

	opts := []client.Option{
		client.WithLogger(logger.New(
			logger.WithDebug(c.debug),
			logger.WithWriter(os.Stderr),
			logger.WithPretty(true),
		)),
	}
	if c.agent != "" {
		opts = append(opts, client.WithAgent(c.agent))
	}
	cl := client.New(c.target, opts...)

	switch {
	case c.structured:
		return c.runStructured(ctx, cl)
	case c.form:
		var answer *client.Answer
		err := c.wait("Submitting forecast form", func() (err error) {
			answer, err = cl.Submit(ctx, c.city)
			return err
		})
		if err != nil {
			return err
		}
		return c.printAnswer(answer)
	case c.noStream:
		var answer *client.Answer
		err := c.wait("Waiting for the agent", func() (err error) {
			answer, err = cl.Ask(ctx, client.Query{Message: message, City: c.city})
			return err
		})
		if err != nil {
			return err
		}
		return c.printAnswer(answer)
	default:
		return c.runStream(ctx, cl, client.Query{Message: message, City: c.city})
	}
}

func (c *askCommander) runStream(ctx context.Context, cl *client.Client, q client.Query) error {
	res, err := cl.Stream(ctx, q, func(fragment, _ string) {
		fmt.Fprint(c.out, fragment)
	})
	if res == nil {
		return err
	}

	fmt.Fprintln(c.out)
	if err != nil {
		fmt.Fprintf(c.out, "\n  %s stream %s after %d chunks: %v\n", cliui.FailMark, res.State, res.Chunks, err)
		return err
	}

	if line := cliui.UsageLine(res.Usage); line != "" {
		fmt.Fprintf(c.out, "\n  %s\n", line)
	}
	if res.Dropped > 0 {
		fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render(fmt.Sprintf("%d malformed records dropped", res.Dropped)))
	}
	return nil
}

func (c *askCommander) printAnswer(answer *client.Answer) error {
	text := answer.Response
	if cliui.IsTerminal(c.out) {
		text = cliui.RenderMarkdown(text, answerWidth)
	}
	fmt.Fprintln(c.out, strings.TrimRight(text, "\n"))

	if line := cliui.UsageLine(answer.Usage); line != "" {
		fmt.Fprintf(c.out, "\n  %s\n", line)
	}
	return nil
}

// wait runs fn behind a spinner on stderr when output goes to a terminal.
func (c *askCommander) wait(msg string, fn func() error) error {
	if !cliui.IsTerminal(c.out) {
		return fn()
	}
	return cliui.Wait(os.Stderr, msg, fn)
}

func (c *askCommander) runStructured(ctx context.Context, cl *client.Client) error {
	var report *client.WeatherReport
	err := c.wait("Building weather report", func() (err error) {
		report, err = cl.Structured(ctx, c.city)
		return err
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n  %s\n\n", cliui.HeaderStyle.Render(report.Location))
	fmt.Fprintf(c.out, "  %s %s\n", cliui.KeyStyle.Render("Temperature:"), cliui.ValueStyle.Render(fmt.Sprintf("%.1f°C", report.Temperature)))
	fmt.Fprintf(c.out, "  %s %s\n", cliui.KeyStyle.Render("Conditions: "), cliui.ValueStyle.Render(report.Conditions))
	fmt.Fprintf(c.out, "\n  %s\n", report.Summary)

	if len(report.Recommendations) > 0 {
		fmt.Fprintf(c.out, "\n  %s\n", cliui.KeyStyle.Render("Recommendations:"))
		for _, r := range report.Recommendations {
			fmt.Fprintf(c.out, "    - %s\n", r)
		}
	}
	fmt.Fprintln(c.out)
	return nil
}
