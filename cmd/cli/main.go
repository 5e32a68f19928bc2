package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/marcelsud/priorauth-notify/config"
	"github.com/marcelsud/priorauth-notify/decision"
	"github.com/marcelsud/priorauth-notify/dispatch"
	"github.com/marcelsud/priorauth-notify/internal/app"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

/* cli - operator commands against the configured store
 * Usage: cli subscribe <subscription.json> | cli notify <claim-response.json> [--org <id>] | cli migrate
 */

func main() {
	rootCmd := &cobra.Command{
		Use:           "cli",
		Short:         "Prior-authorization notification operator tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(subscribeCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withApp wires the components, runs fn and releases them
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		ctxClose, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a.Close(ctxClose)
	}()
	return fn(a)
}

func subscribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe <subscription.json>",
		Short: "Register a FHIR Subscription and run its handshake",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading subscription: %w", err)
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				sub, err := a.Hooks.OnSubscriptionRequest(cmd.Context(), raw)
				if err != nil {
					return err
				}
				fmt.Printf("Subscription %s registered for organization %s: %s\n", sub.ID, sub.OrganizationID, sub.Status)
				return nil
			})
		},
	}
}

func notifyCmd() *cobra.Command {
	var organizationID string
	cmd := &cobra.Command{
		Use:   "notify <claim-response.json>",
		Short: "Store a ClaimResponse and notify the organization's subscribers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading claim response: %w", err)
			}
			d, err := decision.Parse(raw)
			if err != nil {
				return err
			}
			if organizationID != "" && organizationID != d.OrganizationID {
				return fmt.Errorf("--org %s does not match requestor organization %s", organizationID, d.OrganizationID)
			}

			return withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Decisions.Put(cmd.Context(), d); err != nil {
					return err
				}

				results := a.Hooks.OnDecisionUpdatedSync(cmd.Context(), d.ID, d.OrganizationID, d.Resource)
				for _, r := range results {
					mark := "✓"
					if !r.Success {
						mark = "✗"
					}
					fmt.Printf("%s %s %s status=%d attempts=%d %s\n", mark, r.SubscriptionID, r.Endpoint, r.HTTPStatus, r.Attempts, r.Error)
				}
				succeeded, failed := dispatch.Summary(results)
				fmt.Printf("\n%d delivered, %d failed\n", succeeded, failed)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&organizationID, "org", "", "expected requestor organization identifier")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the store tables (postgres only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Migrate(cmd.Context()); err != nil {
					return err
				}
				fmt.Printf("Store %q is ready\n", a.Config.StoreDriver)
				return nil
			})
		},
	}
}
