package commands

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/pulse/internal/resources"
)

type resourceRow struct {
	Path      string `yaml:"path"`
	Method    string `yaml:"method"`
	TTL       string `yaml:"ttl,omitempty"`
	Cacheable bool   `yaml:"cacheable"`
}

// newResourcesCmd prints the effective descriptor table, overrides applied.
// Useful to check a resources file before deploying it.
func (c *CLI) newResourcesCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "resources",
		Short: "Print the upstream resource table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := resources.LoadRegistry(file)
			if err != nil {
				return err
			}

			table := make(map[string]resourceRow)
			for _, d := range reg.Descriptors() {
				row := resourceRow{Path: d.Path, Method: d.Method, Cacheable: d.Cacheable}
				if d.Cacheable {
					row.TTL = d.TTL.String()
				}
				table[string(d.Kind)] = row
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(map[string]any{"resources": table}); err != nil {
				_ = enc.Close()
				return err
			}
			return enc.Close()
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", os.Getenv("PULSE_RESOURCES_FILE"), "YAML overrides to apply")
	return cmd
}
