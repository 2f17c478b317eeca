package main

import (
	"github.com/spf13/cobra"

	"github.com/pbirest/pbirest-go/internal/tabular"
)

func newQueryCmd() *cobra.Command {
	var flagGroup string

	cmd := &cobra.Command{
		Use:   "query <dataset> <dax-query>...",
		Short: "Run DAX queries against a dataset",
		Args:  cobra.MinimumNArgs(2),
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

			results, err := session.ExecuteQueries(ctx, *dataset, args[1:]...)
			if err != nil {
				return err
			}

			for _, result := range results {
				if err := emit(result.Rows, tabular.QueryResult(result)); err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&flagGroup, "group", "g", "", "workspace containing the dataset")
	_ = cmd.MarkFlagRequired("group")

	return cmd
}
