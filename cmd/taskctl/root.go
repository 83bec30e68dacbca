package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cli is shared by every subcommand; cfg is resolved in PersistentPreRunE.
type cli struct {
	configFile string
	v          *viper.Viper
	cfg        Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "taskctl",
		Short:         "Operate a task-api deployment",
		Long:          `taskctl checks a task-api deployment, generates synthetic load and renders its topology.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newViper(c.configFile)
			if err != nil {
				return err
			}
			for _, name := range []string{"api-url", "database-url", "timeout", "human"} {
				if err := v.BindPFlag(name, cmd.Root().PersistentFlags().Lookup(name)); err != nil {
					return err
				}
			}
			cfg, err := configFrom(v)
			if err != nil {
				return err
			}
			c.v, c.cfg = v, cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "config file (default ~/.taskctl/config.yaml)")
	flags.String("api-url", "", "base URL of the task API")
	flags.String("database-url", "", "Postgres URL checked by status (optional)")
	flags.String("timeout", "", "per-request timeout")
	flags.Bool("human", false, "human-readable output instead of JSON")

	root.AddCommand(c.statusCmd(), c.loadCmd(), c.holCmd(), c.topologyCmd())
	return root
}
