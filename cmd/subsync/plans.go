package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mihaimyh/subsync/internal/config"
	"github.com/mihaimyh/subsync/pkg/subsync"
)

var plansJSON bool

// planRow is one catalog entry in plans output
type planRow struct {
	PriceID string `json:"price_id"`
	Plan    string `json:"plan"`
	Credits int    `json:"credits"`
}

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List the price catalog and the default plan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		plans, err := flagOrEnv(cmd, "plans", "SUBSYNC_PLANS", config.DefaultPlans)
		if err != nil {
			return err
		}
		catalog, err := subsync.ParseCatalog(plans)
		if err != nil {
			return err
		}

		def := subsync.DefaultPlan()
		rows := make([]planRow, 0, catalog.Len()+1)
		for _, priceID := range catalog.PriceIDs() {
			p := catalog.Lookup(priceID)
			rows = append(rows, planRow{PriceID: priceID, Plan: p.Name, Credits: p.Credits})
		}
		rows = append(rows, planRow{PriceID: "(default)", Plan: def.Name, Credits: def.Credits})

		if plansJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PRICE ID\tPLAN\tCREDITS")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%d\n", r.PriceID, r.Plan, r.Credits)
		}
		return w.Flush()
	},
}

func init() {
	plansCmd.Flags().BoolVar(&plansJSON, "json", false, "print JSON instead of a table")
}
