package powerbi

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// ListGroups returns all workspaces visible to the authenticated principal.
func (s *Session) ListGroups(ctx context.Context) ([]Group, error) {
	raw, err := listOf[groupResponse](ctx, s, "/groups")
	if err != nil {
		return nil, err
	}

	groups := make([]Group, 0, len(raw))
	for i := range raw {
		groups = append(groups, raw[i].toGroup())
	}

	s.logger.Debug("listed groups", slog.Int("count", len(groups)))

	return groups, nil
}

// GroupByName returns the group with the given name, or *NotFoundError when
// no group matches.
func (s *Session) GroupByName(ctx context.Context, name string) (*Group, error) {
	groups, err := s.ListGroups(ctx)
	if err != nil {
		return nil, err
	}

	for i := range groups {
		if groups[i].Name == name {
			return &groups[i], nil
		}
	}

	return nil, &NotFoundError{Kind: "group", Name: name}
}

// ListDatasets lists datasets across the given groups, one request per
// group in parallel. Results preserve the input order of groups, then the
// service's listing order within each group. Every dataset carries its
// owning group's ID and name.
func (s *Session) ListDatasets(ctx context.Context, groups ...Group) ([]Dataset, error) {
	perGroup := make([][]Dataset, len(groups))
	eg, ctx := errgroup.WithContext(ctx)

	for i, group := range groups {
		eg.Go(func() error {
			raw, err := listOf[datasetResponse](ctx, s, group.datasetsPath())
			if err != nil {
				return err
			}

			datasets := make([]Dataset, 0, len(raw))
			for j := range raw {
				datasets = append(datasets, raw[j].toDataset(group))
			}

			perGroup[i] = datasets

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var datasets []Dataset
	for i := range perGroup {
		datasets = append(datasets, perGroup[i]...)
	}

	s.logger.Debug("listed datasets",
		slog.Int("groups", len(groups)),
		slog.Int("count", len(datasets)),
	)

	return datasets, nil
}

// ListDataflows lists dataflows across the given groups, preserving group
// order the same way ListDatasets does.
func (s *Session) ListDataflows(ctx context.Context, groups ...Group) ([]Dataflow, error) {
	perGroup := make([][]Dataflow, len(groups))
	eg, ctx := errgroup.WithContext(ctx)

	for i, group := range groups {
		eg.Go(func() error {
			raw, err := listOf[dataflowResponse](ctx, s, group.dataflowsPath())
			if err != nil {
				return err
			}

			flows := make([]Dataflow, 0, len(raw))
			for j := range raw {
				flows = append(flows, raw[j].toDataflow(group))
			}

			perGroup[i] = flows

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var flows []Dataflow
	for i := range perGroup {
		flows = append(flows, perGroup[i]...)
	}

	return flows, nil
}

// ListReports lists reports across the given groups, preserving group order.
func (s *Session) ListReports(ctx context.Context, groups ...Group) ([]Report, error) {
	perGroup := make([][]Report, len(groups))
	eg, ctx := errgroup.WithContext(ctx)

	for i, group := range groups {
		eg.Go(func() error {
			raw, err := listOf[reportResponse](ctx, s, group.reportsPath())
			if err != nil {
				return err
			}

			reports := make([]Report, 0, len(raw))
			for j := range raw {
				reports = append(reports, raw[j].toReport(group))
			}

			perGroup[i] = reports

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var reports []Report
	for i := range perGroup {
		reports = append(reports, perGroup[i]...)
	}

	return reports, nil
}

// ListPages lists the pages of a report in the service's page order.
func (s *Session) ListPages(ctx context.Context, report Report) ([]Page, error) {
	raw, err := listOf[pageResponse](ctx, s, report.pagesPath())
	if err != nil {
		return nil, err
	}

	pages := make([]Page, 0, len(raw))
	for i := range raw {
		pages = append(pages, raw[i].toPage(report))
	}

	return pages, nil
}

// DatasetByName finds a dataset by name within a group.
func (s *Session) DatasetByName(ctx context.Context, group Group, name string) (*Dataset, error) {
	datasets, err := s.ListDatasets(ctx, group)
	if err != nil {
		return nil, err
	}

	for i := range datasets {
		if datasets[i].Name == name {
			return &datasets[i], nil
		}
	}

	return nil, &NotFoundError{Kind: "dataset", Name: name}
}

// DataflowByName finds a dataflow by name within a group.
func (s *Session) DataflowByName(ctx context.Context, group Group, name string) (*Dataflow, error) {
	flows, err := s.ListDataflows(ctx, group)
	if err != nil {
		return nil, err
	}

	for i := range flows {
		if flows[i].Name == name {
			return &flows[i], nil
		}
	}

	return nil, &NotFoundError{Kind: "dataflow", Name: name}
}

// ReportByName finds a report by name within a group.
func (s *Session) ReportByName(ctx context.Context, group Group, name string) (*Report, error) {
	reports, err := s.ListReports(ctx, group)
	if err != nil {
		return nil, err
	}

	for i := range reports {
		if reports[i].Name == name {
			return &reports[i], nil
		}
	}

	return nil, &NotFoundError{Kind: "report", Name: name}
}
