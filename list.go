package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/pbirest/pbirest-go/internal/powerbi"
	"github.com/pbirest/pbirest-go/internal/tabular"
)

// resolveGroups returns the named group, or every visible group when name
// is empty.
func resolveGroups(ctx context.Context, session *powerbi.Session, name string) ([]powerbi.Group, error) {
	if name == "" {
		return session.ListGroups(ctx)
	}

	group, err := session.GroupByName(ctx, name)
	if err != nil {
		return nil, err
	}

	return []powerbi.Group{*group}, nil
}

func newGroupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List workspaces",
		RunE: func(_ *cobra.Command, _ []string) error {
			logger := buildLogger()

			session, err := newSession(logger)
			if err != nil {
				return err
			}
			defer session.Close()

			ctx, stop := cmdContext()
			defer stop()

			groups, err := session.ListGroups(ctx)
			if err != nil {
				return err
			}

			return emit(groups, tabular.Groups(groups))
		},
	}
}

func newDatasetsCmd() *cobra.Command {
	var flagGroup string

	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "List datasets, across all workspaces or one",
		RunE: func(_ *cobra.Command, _ []string) error {
			logger := buildLogger()

			session, err := newSession(logger)
			if err != nil {
				return err
			}
			defer session.Close()

			ctx, stop := cmdContext()
			defer stop()

			groups, err := resolveGroups(ctx, session, flagGroup)
			if err != nil {
				return err
			}

			datasets, err := session.ListDatasets(ctx, groups...)
			if err != nil {
				return err
			}

			return emit(datasets, tabular.Datasets(datasets))
		},
	}

	cmd.Flags().StringVarP(&flagGroup, "group", "g", "", "restrict to one workspace by name")

	return cmd
}

func newDataflowsCmd() *cobra.Command {
	var flagGroup string

	cmd := &cobra.Command{
		Use:   "dataflows",
		Short: "List dataflows, across all workspaces or one",
		RunE: func(_ *cobra.Command, _ []string) error {
			logger := buildLogger()

			session, err := newSession(logger)
			if err != nil {
				return err
			}
			defer session.Close()

			ctx, stop := cmdContext()
			defer stop()

			groups, err := resolveGroups(ctx, session, flagGroup)
			if err != nil {
				return err
			}

			flows, err := session.ListDataflows(ctx, groups...)
			if err != nil {
				return err
			}

			return emit(flows, tabular.Dataflows(flows))
		},
	}

	cmd.Flags().StringVarP(&flagGroup, "group", "g", "", "restrict to one workspace by name")

	return cmd
}

func newReportsCmd() *cobra.Command {
	var flagGroup string

	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List reports, across all workspaces or one",
		RunE: func(_ *cobra.Command, _ []string) error {
			logger := buildLogger()

			session, err := newSession(logger)
			if err != nil {
				return err
			}
			defer session.Close()

			ctx, stop := cmdContext()
			defer stop()

			groups, err := resolveGroups(ctx, session, flagGroup)
			if err != nil {
				return err
			}

			reports, err := session.ListReports(ctx, groups...)
			if err != nil {
				return err
			}

			return emit(reports, tabular.Reports(reports))
		},
	}

	cmd.Flags().StringVarP(&flagGroup, "group", "g", "", "restrict to one workspace by name")

	return cmd
}

func newPagesCmd() *cobra.Command {
	var flagGroup string

	cmd := &cobra.Command{
		Use:   "pages <report>",
		Short: "List the pages of a report",
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

			group, err := session.GroupByName(ctx, flagGroup)
			if err != nil {
				return err
			}

			report, err := session.ReportByName(ctx, *group, args[0])
			if err != nil {
				return err
			}

			pages, err := session.ListPages(ctx, *report)
			if err != nil {
				return err
			}

			return emit(pages, tabular.Pages(pages))
		},
	}

	cmd.Flags().StringVarP(&flagGroup, "group", "g", "", "workspace containing the report")
	_ = cmd.MarkFlagRequired("group")

	return cmd
}

// resolveRefreshable finds the named dataset, or dataflow when asFlow is
// set, inside the named group.
func resolveRefreshable(ctx context.Context, session *powerbi.Session, groupName, name string, asFlow bool) (powerbi.Refreshable, error) {
	group, err := session.GroupByName(ctx, groupName)
	if err != nil {
		return nil, err
	}

	if asFlow {
		flow, err := session.DataflowByName(ctx, *group, name)
		if err != nil {
			return nil, err
		}

		return *flow, nil
	}

	dataset, err := session.DatasetByName(ctx, *group, name)
	if err != nil {
		return nil, err
	}

	return *dataset, nil
}

func newHistoryCmd() *cobra.Command {
	var (
		flagGroup    string
		flagDataflow bool
	)

	cmd := &cobra.Command{
		Use:   "history <dataset|dataflow>",
		Short: "Show the refresh history of a dataset or dataflow",
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

			records, err := session.History(ctx, target)
			if err != nil {
				return err
			}

			if len(records) == 0 {
				statusf("No refresh history for %s.\n", target.ResourceName())
			}

			return emit(records, tabular.Records(records))
		},
	}

	cmd.Flags().StringVarP(&flagGroup, "group", "g", "", "workspace containing the resource")
	cmd.Flags().BoolVar(&flagDataflow, "dataflow", false, "treat the argument as a dataflow name")
	_ = cmd.MarkFlagRequired("group")

	return cmd
}
