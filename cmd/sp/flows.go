package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"safeplate/internal/app"
	"safeplate/internal/engine"
	"safeplate/internal/notify"
	"safeplate/internal/tui"
	"safeplate/internal/wizard"
)

// answerFlag binds a command flag to a flow input key. Repeatable flags
// feed list inputs one entry at a time.
type answerFlag struct {
	name   string
	key    string
	usage  string
	repeat bool
}

type flowCommand struct {
	use    string
	short  string
	kind   string
	answer []answerFlag
}

func recordCmds() []*cobra.Command {
	reception := &cobra.Command{Use: "reception", Short: "Record deliveries"}
	reception.AddCommand(flowCmd(flowCommand{
		use: "new", short: "Record a delivery", kind: engine.FlowReception,
		answer: []answerFlag{
			{name: "reference", key: "reference", usage: "delivery note reference"},
			{name: "date", key: "deliveryDate", usage: "delivery date (YYYY-MM-DD)"},
			{name: "supplier", key: "selectedSupplier", usage: "supplier id or name"},
			{name: "service", key: "selectedService", usage: "service receiving the delivery"},
			{name: "photo", key: "photo", usage: "path to a photo of the delivery note"},
			{name: "product", key: "products", usage: "product as id=quantity (repeatable)", repeat: true},
			{name: "non-conformity", key: "nonConformity", usage: "yes when something was wrong"},
			{name: "non-compliance", key: "nonComplianceReason", usage: "what was wrong"},
			{name: "temperature", key: "temperature", usage: "product temperature in °C"},
		},
	}))

	tracking := &cobra.Command{Use: "tracking", Short: "Record opened products"}
	tracking.AddCommand(flowCmd(flowCommand{
		use: "new", short: "Record a product label", kind: engine.FlowTracking,
		answer: []answerFlag{
			{name: "product", key: "product", usage: "product id or name"},
			{name: "photo", key: "photo", usage: "path to a photo of the label"},
			{name: "opened-at", key: "openedAt", usage: "opening date (YYYY-MM-DD)"},
			{name: "expires-at", key: "expiresAt", usage: "use-by date (YYYY-MM-DD)"},
		},
	}))

	cleaning := &cobra.Command{Use: "cleaning", Short: "Record cleaning"}
	cleaning.AddCommand(flowCmd(flowCommand{
		use: "new", short: "Record a cleaning plan", kind: engine.FlowCleaning,
		answer: []answerFlag{
			{name: "zone", key: "zones", usage: "zone as id or id=comment (repeatable)", repeat: true},
			{name: "date", key: "date", usage: "cleaning date (YYYY-MM-DD)"},
			{name: "performed-by", key: "performedBy", usage: "who cleaned (defaults to you)"},
			{name: "photo", key: "photo", usage: "path to a photo"},
		},
	}))

	tcpFlags := []answerFlag{
		{name: "product", key: "product", usage: "product id or name"},
		{name: "date", key: "date", usage: "date (YYYY-MM-DD)"},
		{name: "started-at", key: "startedAt", usage: "start time (HH:MM)"},
		{name: "ended-at", key: "endedAt", usage: "end time (HH:MM)"},
		{name: "start-temperature", key: "startTemperature", usage: "temperature at start in °C"},
		{name: "end-temperature", key: "endTemperature", usage: "temperature at end in °C"},
	}
	tcp := &cobra.Command{Use: "tcp", Short: "Record cooling and reheating control points"}
	tcp.AddCommand(flowCmd(flowCommand{use: "cooling", short: "Record a cooling", kind: engine.FlowCooling, answer: tcpFlags}))
	tcp.AddCommand(flowCmd(flowCommand{use: "reheating", short: "Record a reheating", kind: engine.FlowReheating, answer: tcpFlags}))

	oil := &cobra.Command{Use: "oil", Short: "Record frying oil controls"}
	oil.AddCommand(flowCmd(flowCommand{
		use: "new", short: "Record an oil control", kind: engine.FlowOil,
		answer: []answerFlag{
			{name: "fryer", key: "fryer", usage: "fryer name"},
			{name: "polarity", key: "polarity", usage: "polar compounds in %"},
			{name: "action", key: "action", usage: "none, filtered or changed"},
			{name: "date", key: "date", usage: "date (YYYY-MM-DD)"},
		},
	}))

	temperature := &cobra.Command{Use: "temperature", Short: "Record equipment temperatures"}
	temperature.AddCommand(flowCmd(flowCommand{
		use: "new", short: "Record a temperature reading", kind: engine.FlowTemperature,
		answer: []answerFlag{
			{name: "equipment", key: "equipment", usage: "equipment name"},
			{name: "temperature", key: "temperature", usage: "reading in °C"},
			{name: "date", key: "date", usage: "date (YYYY-MM-DD)"},
			{name: "time", key: "time", usage: "time (HH:MM)"},
		},
	}))

	return []*cobra.Command{reception, tracking, cleaning, tcp, oil, temperature}
}

// flowCmd runs a flow from flags without prompting.
func flowCmd(fc flowCommand) *cobra.Command {
	single := map[string]*string{}
	multi := map[string]*[]string{}
	cmd := &cobra.Command{
		Use:   fc.use,
		Short: fc.short,
		RunE: func(cmd *cobra.Command, args []string) error {
			answers := engine.Answers{}
			for _, f := range fc.answer {
				if f.repeat {
					if vs := *multi[f.key]; len(vs) > 0 {
						answers[f.key] = vs
					}
					continue
				}
				if cmd.Flags().Changed(f.name) {
					answers[f.key] = []string{*single[f.key]}
				}
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				e := a.Engine
				e.Notifier = notify.Multi{notify.Log{Logger: logger.Named("notify")}, stderrNotifier()}
				r, err := e.Start(ctx, fc.kind)
				if err != nil {
					return err
				}
				return finish(r, engine.Drive(ctx, r, answers))
			})
		},
	}
	for _, f := range fc.answer {
		if f.repeat {
			multi[f.key] = cmd.Flags().StringArray(f.name, nil, f.usage)
			continue
		}
		single[f.key] = cmd.Flags().String(f.name, "", f.usage)
	}
	return cmd
}

// finish reports the outcome of a traversal.
func finish(r *wizard.Runner, err error) error {
	out := map[string]any{"flow": r.Flow().Kind, "status": r.Phase().String()}
	switch r.Phase() {
	case wizard.Done:
		out["landing"] = r.Landing
	case wizard.Failed:
		out["draft_id"] = r.Draft().ID
	}
	if err != nil {
		out["error"] = wizard.UserMessage(err)
	}
	if viper.GetBool("json") {
		if perr := printJSON(out); perr != nil {
			return perr
		}
	} else {
		switch r.Phase() {
		case wizard.Done:
			fmt.Printf("%s saved\n", r.Flow().Title)
		case wizard.Failed:
			fmt.Printf("Submission failed; draft %s kept. Retry with: sp draft retry %s\n", r.Draft().ID, r.Draft().ID)
		}
	}
	return err
}

// stderrNotifier prints notifications for non-interactive runs.
func stderrNotifier() notify.Notifier {
	return notify.Func(func(n notify.Notification) {
		fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", n.Level, n.Title, n.Message)
	})
}

func wizardCmd() *cobra.Command {
	var draftID string
	cmd := &cobra.Command{
		Use:       "wizard <" + strings.Join(engine.Kinds(), "|") + ">",
		Short:     "Fill a flow step by step in the terminal",
		Args:      cobra.RangeArgs(0, 1),
		ValidArgs: engine.Kinds(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if draftID == "" && len(args) == 0 {
				return fmt.Errorf("flow kind or --draft required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				notes := &notify.Recorder{}
				e := a.Engine
				e.Notifier = notify.Multi{notes, notify.Log{Logger: logger.Named("notify")}}
				var r *wizard.Runner
				var err error
				if draftID != "" {
					r, err = e.Resume(ctx, draftID)
				} else {
					r, err = e.Start(ctx, args[0])
				}
				if err != nil {
					return err
				}
				phase, err := tui.Run(ctx, r, notes)
				if err != nil {
					return err
				}
				switch phase {
				case wizard.Done:
					return finish(r, nil)
				case wizard.Failed:
					return finish(r, r.Err())
				}
				fmt.Println("Canceled")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&draftID, "draft", "", "continue a saved draft")
	return cmd
}

func draftCmd() *cobra.Command {
	d := &cobra.Command{
		Use:   "draft",
		Short: "Manage drafts kept after failed submissions",
	}
	d.AddCommand(draftListCmd())
	d.AddCommand(draftRetryCmd())
	d.AddCommand(draftAbandonCmd())
	return d
}

func draftListCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List drafts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				drafts, err := a.Engine.Drafts(ctx, kind)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(drafts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Flow", "Step", "Updated", "Last error"})
				for _, d := range drafts {
					tw.AppendRow(table.Row{d.ID, d.Kind, d.Step + 1, ago(d.UpdatedAt), d.LastError})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "flow filter")
	return cmd
}

func draftRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Send a failed draft again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				e := a.Engine
				e.Notifier = notify.Multi{notify.Log{Logger: logger.Named("notify")}, stderrNotifier()}
				r, err := e.Resume(ctx, args[0])
				if err != nil {
					return err
				}
				start := time.Now()
				if r.Phase() == wizard.Failed {
					err = r.Retry(ctx)
				} else {
					err = engine.Drive(ctx, r, nil)
				}
				logger.Debug("draft retried", zap.String("draft_id", args[0]), zap.Duration("took", time.Since(start)), zap.Error(err))
				return finish(r, err)
			})
		},
	}
}

func draftAbandonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abandon <id>",
		Short: "Discard a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.Abandon(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Draft %s abandoned\n", args[0])
				return nil
			})
		},
	}
}
