package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	orchestratorx "github.com/tanpawarit/brain-orchestrator/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
)

var (
	stepStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	toolsStyle = lipgloss.NewStyle().Faint(true)
)

var askQuiet bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question in the terminal",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		question := strings.Join(args, " ")

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		events, err := a.orchestrator.Stream(ctx, contractx.ChatRequest{Message: question})
		if errors.Is(err, orchestratorx.ErrInvalidMessage) {
			return errors.New("question must not be empty")
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for ev := range events {
			switch ev.Type {
			case contractx.EventComplete:
				printAnswer(cmd, ev)
			case contractx.EventError:
				fmt.Fprintln(out, errorStyle.Render("✗ "+ev.Message))
				return errors.New("no answer")
			case contractx.EventSpecialistComplete:
				if !askQuiet {
					style := doneStyle
					if strings.Contains(ev.Message, "unavailable") {
						style = warnStyle
					}
					fmt.Fprintln(out, style.Render("  • "+ev.Message))
				}
			default:
				if !askQuiet {
					fmt.Fprintln(out, stepStyle.Render("› "+ev.Message))
				}
			}
		}
		return ctx.Err()
	},
}

func printAnswer(cmd *cobra.Command, ev contractx.ProgressEvent) {
	out := cmd.OutOrStdout()

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	rendered := ev.Response
	if err == nil {
		if r, rerr := renderer.Render(ev.Response); rerr == nil {
			rendered = r
		}
	}
	fmt.Fprintln(out, rendered)

	if len(ev.ToolsUsed) > 0 {
		line := "tools: " + strings.Join(ev.ToolsUsed, ", ")
		if ev.HasErrors {
			line += " (some were unavailable)"
		}
		fmt.Fprintln(out, toolsStyle.Render(line))
	}
}

func init() {
	askCmd.Flags().BoolVarP(&askQuiet, "quiet", "q", false, "print only the final answer")
}
