package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aluiziolira/isbn-finder/models"
	"github.com/spf13/cobra"
)

func newSearchCmd(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <isbn>",
		Short: "Look up a single ISBN",
		Args:  cobra.ExactArgs(1),
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

			res, err := a.service().SearchSingle(ctx, args[0])
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res.Result)
			}
			printRecord(res.Result)
			if !res.Found {
				return fmt.Errorf("%s: %s", res.Result.ISBN, res.Result.ErrorMessage)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func printRecord(r models.SearchResultRecord) {
	fmt.Printf("ISBN:       %s\n", r.ISBN)
	fmt.Printf("Status:     %s\n", r.Status)
	if r.Status != models.ResultFound {
		return
	}
	fmt.Printf("Title:      %s\n", r.Title)
	fmt.Printf("Author:     %s\n", r.Author)
	fmt.Printf("Publisher:  %s\n", r.Publisher)
	if r.Price != "" {
		fmt.Printf("Price:      %s\n", r.Price)
	}
	fmt.Printf("Source:     %s\n", r.Site)
	if r.URL != "" {
		fmt.Printf("URL:        %s\n", r.URL)
	}
}
