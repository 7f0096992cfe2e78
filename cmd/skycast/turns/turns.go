// Package turnscmder provides the turns command for inspecting the turns a
// skycast server has recorded.
package turnscmder

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/skycast/pkg/cliui"
	"github.com/papercomputeco/skycast/pkg/client"
	"github.com/papercomputeco/skycast/pkg/config"
	"github.com/papercomputeco/skycast/pkg/storage"
	"github.com/papercomputeco/skycast/pkg/utils"
)

// previewLen caps the query and response columns of the list view.
const previewLen = 48

type turnsCommander struct {
	target string
	agent  string
	limit  int

	out io.Writer
}

const turnsLongDesc string = `List the turns recorded by a skycast server, newest first.

Pass a turn ID to show a single turn in full.

Examples:
  skycast turns
  skycast turns --agent weatherAgent --limit 10
  skycast turns 3f6c1d2e-8a9b-4c1d-9e2f-0a1b2c3d4e5f`

const turnsShortDesc string = "List recorded turns"

func NewTurnsCmd() *cobra.Command {
	cmder := &turnsCommander{}

	cmd := &cobra.Command{
		Use:   "turns [id]",
		Short: turnsShortDesc,
		Long:  turnsLongDesc,
		Args:  cobra.MaximumNArgs(1),
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
			cmder.out = cmd.OutOrStdout()
			if len(args) == 1 {
				return cmder.show(cmd.Context(), args[0])
			}
			return cmder.list(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagTarget, &cmder.target)
	cmd.Flags().StringVar(&cmder.agent, "agent", "", "Only list turns of this agent")
	cmd.Flags().IntVarP(&cmder.limit, "limit", "n", 20, "Maximum number of turns to list")

	return cmd
}

func (c *turnsCommander) list(ctx context.Context) error {
	if c.limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", c.limit)
	}

	turns, err := client.New(c.target).Turns(ctx, c.agent, c.limit)
	if err != nil {
		return err
	}

	if len(turns) == 0 {
		fmt.Fprintf(c.out, "\n  %s\n\n", cliui.DimStyle.Render("No turns recorded yet."))
		return nil
	}

	fmt.Fprintln(c.out)
	for _, t := range turns {
		fmt.Fprintf(c.out, "  %s %s %s %s\n",
			statusMark(t),
			cliui.DimStyle.Render(t.CreatedAt.Local().Format("2006-01-02 15:04:05")),
			cliui.NameStyle.Render(t.Agent),
			cliui.DimStyle.Render(fmt.Sprintf("[%s] %s", t.Mode, t.ID)),
		)
		fmt.Fprintf(c.out, "    %s %s\n", cliui.KeyStyle.Render("Q:"), preview(t.Query))
		fmt.Fprintf(c.out, "    %s %s\n", cliui.KeyStyle.Render("A:"), preview(t.Response))
	}
	fmt.Fprintf(c.out, "\n  %s\n\n", cliui.DimStyle.Render(fmt.Sprintf("%d turns", len(turns))))

	return nil
}

func (c *turnsCommander) show(ctx context.Context, id string) error {
	t, err := client.New(c.target).Turn(ctx, id)
	if err != nil {
		return err
	}

	rows := [][2]string{
		{"ID", t.ID},
		{"Agent", t.Agent},
		{"Mode", string(t.Mode)},
		{"Status", string(t.Status)},
		{"Created", t.CreatedAt.Local().Format("2006-01-02 15:04:05")},
		{"Duration", cliui.FormatDuration(time.Duration(t.DurationMs) * time.Millisecond)},
		{"Chunks", fmt.Sprint(t.Chunks)},
	}
	if t.Error != "" {
		rows = append(rows, [2]string{"Error", t.Error})
	}

	fmt.Fprintf(c.out, "\n  %s turn\n\n", statusMark(t))
	for _, r := range rows {
		fmt.Fprintf(c.out, "  %s %s\n", cliui.KeyStyle.Render(fmt.Sprintf("%-9s", r[0]+":")), cliui.ValueStyle.Render(r[1]))
	}
	fmt.Fprintf(c.out, "\n  %s\n  %s\n", cliui.KeyStyle.Render("Query:"), t.Query)
	fmt.Fprintf(c.out, "\n  %s\n  %s\n", cliui.KeyStyle.Render("Response:"), t.Response)
	fmt.Fprintf(c.out, "\n  %s\n\n", cliui.UsageLine(&t.Usage))

	return nil
}

func statusMark(t *storage.Turn) string {
	return cliui.Mark(t.Status != storage.StatusFailed)
}

// preview flattens s onto one line and truncates it.
func preview(s string) string {
	return utils.Truncate(strings.Join(strings.Fields(s), " "), previewLen)
}
