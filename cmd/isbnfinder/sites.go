package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSitesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "Check which sources are reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, site := range a.orchestrator.SiteStatus(ctx) {
				line := fmt.Sprintf("%-14s %-9s %s", site.Name, site.Status, site.LastChecked.Format("15:04:05"))
				if site.Error != "" {
					line += "  " + site.Error
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}
