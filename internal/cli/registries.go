package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/tidetrawler/tidetrawler/pkg/registry"
)

// registriesCommand creates the registries command.
func (c *CLI) registriesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "registries",
		Short: "List configured registries and what they support",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			// Capabilities do not depend on the store.
			regs, err := c.newRegistries(cfg, nil)
			if err != nil {
				return err
			}
			for _, r := range regs {
				printKeyValue(r.Kind().Slug(), capabilityList(r.Capabilities()))
			}
			return nil
		},
	}
}

// capabilityList renders caps as a comma-separated list.
func capabilityList(caps registry.Capabilities) string {
	var parts []string
	if caps.Search {
		parts = append(parts, "search")
	}
	if caps.Package {
		parts = append(parts, "package")
	}
	if caps.UpdateCache {
		parts = append(parts, "update-cache")
	}
	if caps.Cacheable {
		parts = append(parts, "cached")
	}
	if len(parts) == 0 {
		return StyleDim.Render("none")
	}
	return strings.Join(parts, ", ")
}
