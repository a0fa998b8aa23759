package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"handleprobe/internal/model"
	"handleprobe/internal/service"
	"handleprobe/internal/tui"
)

var flagListCategories bool

func init() {
	sitesCmd.Flags().StringVar(&flagCategory, "category", "", "Only list sites in this category")
	sitesCmd.Flags().StringVarP(&flagQuery, "query", "q", "", "Search site names and categories")
	sitesCmd.Flags().BoolVar(&flagListCategories, "categories", false, "List categories instead of sites")

	rootCmd.AddCommand(sitesCmd)
}

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List the sites in the registry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := setup(cmd.Context(), false, nil)
		if err != nil {
			return err
		}
		defer cleanup()

		out := cmd.OutOrStdout()
		if flagListCategories {
			fmt.Fprintln(out, strings.Join(a.Sites.Categories(), "\n"))
			return nil
		}

		// A bare query lists best matches first; otherwise keep registry order.
		var sites []model.SiteRule
		if q := strings.TrimSpace(flagQuery); q != "" && flagCategory == "" {
			sites = a.Sites.Search(q)
		} else {
			sites, err = a.Sites.Select(service.Selection{Category: flagCategory, Query: flagQuery})
			if err != nil {
				return err
			}
		}
		fmt.Fprint(out, tui.RenderSites(sites))
		return nil
	},
}
