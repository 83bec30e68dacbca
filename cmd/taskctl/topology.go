package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MGabrielaGuerrero/devops/infra/topology"
)

const (
	formatYAML   = "yaml"
	formatJSON   = "json"
	formatTFVars = "tfvars"
)

func (c *cli) topologyCmd() *cobra.Command {
	var dbName, format, file string
	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Render or validate the deployment topology",
		Long: `Render the reference topology for --db-name, or validate and re-render
a topology file passed with --file. The database name has no default.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			topo, err := loadTopology(file, dbName)
			if err != nil {
				return err
			}
			if err := topo.Validate(); err != nil {
				return &exitError{code: 1, msg: fmt.Sprintf("invalid topology:\n%v", err)}
			}

			var out []byte
			switch format {
			case formatYAML:
				out, err = topo.YAML()
			case formatJSON:
				out, err = topo.JSON()
			case formatTFVars:
				out, err = topo.TerraformVarsJSON()
			default:
				return fmt.Errorf("unknown format %q (yaml, json, tfvars)", format)
			}
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVar(&dbName, "db-name", "", "database name (required unless --file is given)")
	cmd.Flags().StringVar(&format, "format", formatYAML, "yaml, json or tfvars")
	cmd.Flags().StringVar(&file, "file", "", "topology YAML/JSON to validate instead of the reference one")
	return cmd
}

func loadTopology(file, dbName string) (topology.Topology, error) {
	if file == "" {
		if dbName == "" {
			return topology.Topology{}, topology.ErrDatabaseNameRequired
		}
		return topology.Default(dbName), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return topology.Topology{}, fmt.Errorf("read topology: %w", err)
	}
	topo, err := topology.Parse(data)
	if err != nil {
		return topology.Topology{}, err
	}
	if dbName != "" {
		topo.Database.Name = dbName
	}
	return topo, nil
}
