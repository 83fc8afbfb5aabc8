package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tidetrawler/tidetrawler/pkg/aggregate"
	tterrors "github.com/tidetrawler/tidetrawler/pkg/errors"
	"github.com/tidetrawler/tidetrawler/pkg/registry"
)

// searchCommand creates the search command.
func (c *CLI) searchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>...",
		Short: "Search registries and print matching packages as JSON",
		Long: `Search every configured registry that supports search and print the
merged results as a JSON array. Registries that fail are reported on stderr
and do not hide the results of the others.`,
		Example: `  tidetrawler search serde
  tidetrawler search --registry npm left pad`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSearch(cmd, args)
		},
	}
}

// runSearch joins args into one query and searches all registries.
func (c *CLI) runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	if err := tterrors.ValidateQuery(query); err != nil {
		return err
	}

	e, err := c.setup()
	if err != nil {
		return err
	}

	return report(cmd, e.agg, e.agg.Search(cmd.Context(), query))
}

// report writes the packages of res to stdout and logs its failures.
// It fails only when every registry agg queried failed.
func report(cmd *cobra.Command, agg *aggregate.Aggregator, res aggregate.Result) error {
	logger := loggerFromContext(cmd.Context())
	for _, f := range res.Failures {
		logger.Warn("registry failed", "registry", f.Source.Slug(), "err", tterrors.UserMessage(f.Err))
	}
	for _, k := range res.Skipped {
		logger.Debug("registry skipped", "registry", k.Slug())
	}

	queried := len(agg.Registries()) - len(res.Skipped)
	if queried > 0 && len(res.Failures) == queried {
		return res.Err()
	}
	return writePackages(cmd.OutOrStdout(), res.Packages)
}

// writePackages prints pkgs as an indented JSON array. A nil slice prints [].
func writePackages(w io.Writer, pkgs []registry.Package) error {
	if pkgs == nil {
		pkgs = []registry.Package{}
	}
	data, err := json.MarshalIndent(pkgs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
