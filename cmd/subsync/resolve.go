package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mihaimyh/subsync/internal/config"
	"github.com/mihaimyh/subsync/pkg/billing/stripe"
	"github.com/mihaimyh/subsync/pkg/subsync"
)

var (
	plansFlag           string
	customerIDMatchFlag string
)

// resolveOutput is the dry-run report printed by resolve
type resolveOutput struct {
	EventID   string                       `json:"event_id"`
	EventType string                       `json:"event_type"`
	Ignored   bool                         `json:"ignored,omitempty"`
	Mutation  *subsync.EntitlementMutation `json:"mutation,omitempty"`
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <event.json|->",
	Short: "Print the entitlement change a Stripe event would apply, without touching any store",
	Long: `Reads a Stripe event document (as exported from the dashboard or the Stripe CLI)
and prints the resulting entitlement mutation. The signature is not checked and
the Stripe API is not called: checkout sessions resolve from embedded line items only.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}

		plans, err := flagOrEnv(cmd, "plans", "SUBSYNC_PLANS", config.DefaultPlans)
		if err != nil {
			return err
		}
		catalog, err := subsync.ParseCatalog(plans)
		if err != nil {
			return err
		}
		match, err := flagOrEnv(cmd, "customer-id-match", "SUBSYNC_CUSTOMER_ID_MATCH", string(subsync.MatchExact))
		if err != nil {
			return err
		}
		resolver, err := subsync.NewResolver(subsync.ResolverConfig{
			Catalog:         catalog,
			CustomerIDMatch: subsync.MatchMode(match),
		})
		if err != nil {
			return err
		}

		payload, err := stripe.ParseUnverified(body)
		if err != nil {
			return err
		}
		out := resolveOutput{EventID: payload.EventID, EventType: string(payload.Type)}

		ev, err := stripe.NewNormalizer(nil).Normalize(cmd.Context(), payload)
		switch {
		case errors.Is(err, subsync.ErrUnrecognizedEventType):
			out.Ignored = true
		case err != nil:
			return err
		default:
			m, err := resolver.Resolve(ev)
			if err != nil {
				return err
			}
			out.Mutation = &m
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{resolveCmd, plansCmd} {
		cmd.Flags().StringVar(&plansFlag, "plans", config.DefaultPlans, "plan catalog as price_id=name:credits,... (env SUBSYNC_PLANS)")
	}
	resolveCmd.Flags().StringVar(&customerIDMatchFlag, "customer-id-match", string(subsync.MatchExact),
		"match mode for subscription updates, exact or case_insensitive (env SUBSYNC_CUSTOMER_ID_MATCH)")
}

// flagOrEnv returns the flag value when it was given on the command line.
// Otherwise the dotenv files named by --env-file are loaded and the
// environment variable wins over the built-in default.
func flagOrEnv(cmd *cobra.Command, flag, key, def string) (string, error) {
	if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
		return f.Value.String(), nil
	}
	if err := config.LoadEnvFiles(envFiles()...); err != nil {
		return "", err
	}
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v, nil
	}
	return def, nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event: %w", err)
	}
	return body, nil
}
