package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/pbirest/pbirest-go/internal/powerbi"
	"github.com/pbirest/pbirest-go/internal/tabular"
)

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show or change a dataset's refresh schedule",
	}

	cmd.AddCommand(newScheduleShowCmd())
	cmd.AddCommand(newScheduleEnableCmd(true))
	cmd.AddCommand(newScheduleEnableCmd(false))

	return cmd
}

// resolveDataset finds the named dataset inside the named group.
func resolveDataset(ctx context.Context, session *powerbi.Session, groupName, name string) (*powerbi.Dataset, error) {
	group, err := session.GroupByName(ctx, groupName)
	if err != nil {
		return nil, err
	}

	return session.DatasetByName(ctx, *group, name)
}

func newScheduleShowCmd() *cobra.Command {
	var flagGroup string

	cmd := &cobra.Command{
		Use:   "show <dataset>",
		Short: "Show the dataset's refresh schedule",
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

			dataset, err := resolveDataset(ctx, session, flagGroup, args[0])
			if err != nil {
				return err
			}

			schedule, err := session.GetSchedule(ctx, *dataset)
			if err != nil {
				return err
			}

			return emit(schedule, tabular.Schedules([]powerbi.Schedule{*schedule}))
		},
	}

	cmd.Flags().StringVarP(&flagGroup, "group", "g", "", "workspace containing the dataset")
	_ = cmd.MarkFlagRequired("group")

	return cmd
}

func newScheduleEnableCmd(enable bool) *cobra.Command {
	var flagGroup string

	use := "enable <dataset>"
	short := "Enable the dataset's refresh schedule"

	if !enable {
		use = "disable <dataset>"
		short = "Disable the dataset's refresh schedule"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
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

			dataset, err := resolveDataset(ctx, session, flagGroup, args[0])
			if err != nil {
				return err
			}

			enabled := enable

			return session.UpdateSchedule(ctx, *dataset, powerbi.SchedulePatch{Enabled: &enabled})
		},
	}

	cmd.Flags().StringVarP(&flagGroup, "group", "g", "", "workspace containing the dataset")
	_ = cmd.MarkFlagRequired("group")

	return cmd
}
