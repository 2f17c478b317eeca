package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pbirest/pbirest-go/internal/refresh"
)

func newRefreshCmd() *cobra.Command {
	var (
		flagGroup    string
		flagDataflow bool
		flagForce    bool
		flagWait     bool
		flagType     string
	)

	cmd := &cobra.Command{
		Use:   "refresh <dataset|dataflow>",
		Short: "Trigger a refresh of a dataset or dataflow",
		Long: `Trigger a refresh. When a refresh is already running the command is a
no-op unless --force is given, in which case the running refresh is
canceled first. With --wait the command polls until the refresh reaches
a terminal status; combine with --timeout to bound the wait.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			logger := buildLogger()

			session, err := newSession(logger)
			if err != nil {
				return err
			}
			defer session.Close()

			ctx, stop := cmdContext()
			defer stop()

			target, err := resolveRefreshable(ctx, session, flagGroup, args[0], flagDataflow)
			if err != nil {
				return err
			}

			orchestrator := refresh.New(session, logger)

			result, err := orchestrator.Start(ctx, target, refresh.Options{
				Force:       flagForce,
				Wait:        flagWait,
				RefreshType: flagType,
			})
			if err != nil {
				return err
			}

			switch result.Outcome {
			case refresh.OutcomeSkippedInProgress:
				fmt.Printf("Refresh of %s already in progress, nothing submitted.\n", target.ResourceName())
			case refresh.OutcomeCancelledThenStarted:
				fmt.Printf("Canceled running refresh of %s and submitted a new one.\n", target.ResourceName())
			default:
				fmt.Printf("Submitted refresh of %s.\n", target.ResourceName())
			}

			if result.Final != nil {
				fmt.Printf("Final status: %s", result.Final.Status)

				if d, ok := result.Final.Duration(); ok {
					fmt.Printf(" (took %s)", d.Round(time.Second))
				}

				fmt.Println()
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&flagGroup, "group", "g", "", "workspace containing the resource")
	cmd.Flags().BoolVar(&flagDataflow, "dataflow", false, "treat the argument as a dataflow name")
	cmd.Flags().BoolVar(&flagForce, "force", false, "cancel a running refresh instead of skipping")
	cmd.Flags().BoolVar(&flagWait, "wait", false, "poll until the refresh completes")
	cmd.Flags().StringVar(&flagType, "type", refresh.DefaultRefreshType, "dataset refresh type")
	_ = cmd.MarkFlagRequired("group")

	return cmd
}

func newCancelCmd() *cobra.Command {
	var (
		flagGroup    string
		flagDataflow bool
	)

	cmd := &cobra.Command{
		Use:   "cancel <dataset|dataflow>",
		Short: "Cancel the in-flight refresh of a dataset or dataflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			logger := buildLogger()

			session, err := newSession(logger)
			if err != nil {
				return err
			}
			defer session.Close()

			ctx, stop := cmdContext()
			defer stop()

			target, err := resolveRefreshable(ctx, session, flagGroup, args[0], flagDataflow)
			if err != nil {
				return err
			}

			orchestrator := refresh.New(session, logger)

			return orchestrator.Cancel(ctx, target)
		},
	}

	cmd.Flags().StringVarP(&flagGroup, "group", "g", "", "workspace containing the resource")
	cmd.Flags().BoolVar(&flagDataflow, "dataflow", false, "treat the argument as a dataflow name")
	_ = cmd.MarkFlagRequired("group")

	return cmd
}
