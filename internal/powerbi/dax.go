package powerbi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"

	"golang.org/x/sync/errgroup"
)

// executeQueriesRequest is the body of a DAX execution call.
type executeQueriesRequest struct {
	Queries []daxQuery `json:"queries"`
}

type daxQuery struct {
	Query string `json:"query"`
}

// executeQueriesResponse mirrors the nested result envelope the service
// returns: results -> tables -> rows.
type executeQueriesResponse struct {
	Results []struct {
		Tables []struct {
			Rows []map[string]any `json:"rows"`
		} `json:"tables"`
	} `json:"results"`
}

// QueryResult holds the rows of one executed DAX query with column names
// normalized from the service's Table[Column] form to bare Column.
type QueryResult struct {
	Rows []map[string]any
}

// daxColumnPattern strips the leading "Table[" and trailing "]" from the
// service's fully qualified column names.
var daxColumnPattern = regexp.MustCompile(`^.*?\[|\]$`)

func normalizeDaxColumn(name string) string {
	return daxColumnPattern.ReplaceAllString(name, "")
}

// ExecuteQueries runs one or more DAX queries against the dataset, one
// request per query in parallel. Results preserve query order.
func (s *Session) ExecuteQueries(ctx context.Context, dataset Dataset, queries ...string) ([]QueryResult, error) {
	results := make([]QueryResult, len(queries))
	eg, ctx := errgroup.WithContext(ctx)

	for i, query := range queries {
		eg.Go(func() error {
			result, err := s.executeQuery(ctx, dataset, query)
			if err != nil {
				return err
			}

			results[i] = *result

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	s.logger.Debug("executed queries",
		slog.String("dataset", dataset.Name),
		slog.Int("count", len(queries)),
	)

	return results, nil
}

func (s *Session) executeQuery(ctx context.Context, dataset Dataset, query string) (*QueryResult, error) {
	body := executeQueriesRequest{Queries: []daxQuery{{Query: query}}}

	resp, err := s.Post(ctx, dataset.ExecuteQueriesPath(), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded executeQueriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("powerbi: decoding query response: %w", err)
	}

	result := &QueryResult{}

	if len(decoded.Results) == 0 || len(decoded.Results[0].Tables) == 0 {
		return result, nil
	}

	raw := decoded.Results[0].Tables[0].Rows
	result.Rows = make([]map[string]any, 0, len(raw))

	for _, row := range raw {
		normalized := make(map[string]any, len(row))
		for column, value := range row {
			normalized[normalizeDaxColumn(column)] = value
		}

		result.Rows = append(result.Rows, normalized)
	}

	return result, nil
}
