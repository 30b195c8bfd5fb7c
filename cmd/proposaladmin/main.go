// proposaladmin is the operator CLI for out-of-band document administration:
// resetting an approved document back to draft and inspecting the audit trail.
// It talks to the database directly with the same repositories as the server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-sales-proposals/internal/client"
	"github.com/pesio-ai/be-sales-proposals/internal/config"
	"github.com/pesio-ai/be-sales-proposals/internal/database"
	"github.com/pesio-ai/be-sales-proposals/internal/domain"
	"github.com/pesio-ai/be-sales-proposals/internal/logger"
	"github.com/pesio-ai/be-sales-proposals/internal/repository"
	"github.com/pesio-ai/be-sales-proposals/internal/service"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "proposaladmin",
		Short:         "Operator tooling for the sales proposals service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newResetApprovalCommand())
	cmd.AddCommand(newAuditCommand())
	return cmd
}

func newResetApprovalCommand() *cobra.Command {
	var (
		kind  string
		id    string
		actor string
		note  string
	)

	cmd := &cobra.Command{
		Use:   "reset-approval",
		Short: "Reset an approved document back to draft",
		Long: `Reset an approved document back to draft status.

The reset is refused when the document already has a child revision,
an execution record or a follow-up change order; delete those first.
The full approval history is preserved and the reset is audited.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			k := domain.Kind(kind)
			if !k.Valid() {
				return fmt.Errorf("invalid --kind %q", kind)
			}
			if id == "" || actor == "" {
				return fmt.Errorf("--id and --actor are required")
			}

			ctx := cmd.Context()
			svc, cleanup, err := wire(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			admin := domain.Actor{ID: actor, Roles: []string{domain.RoleAdmin}}
			doc, err := svc.AdminResetApproval(ctx, k, id, admin, note)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s reset to %s\n",
				doc.Reference, doc.ID, doc.Approval.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "document kind (base_document|amendment|change_order)")
	cmd.Flags().StringVar(&id, "id", "", "document ID")
	cmd.Flags().StringVar(&actor, "actor", "", "operator user ID, recorded in the audit trail")
	cmd.Flags().StringVar(&note, "note", "", "reason for the reset")
	return cmd
}

func newAuditCommand() *cobra.Command {
	var (
		kind       string
		documentID string
		actor      string
		action     string
		since      string
		limit      int
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := domain.AuditFilter{Limit: limit}
			if kind != "" {
				k := domain.Kind(kind)
				if !k.Valid() {
					return fmt.Errorf("invalid --kind %q", kind)
				}
				filter.Kind = &k
			}
			if documentID != "" {
				filter.DocumentID = &documentID
			}
			if actor != "" {
				filter.Actor = &actor
			}
			if action != "" {
				a := domain.AuditAction(action)
				filter.Action = &a
			}
			if since != "" {
				from, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since %q: expected YYYY-MM-DD", since)
				}
				filter.From = &from
			}

			ctx := cmd.Context()
			svc, cleanup, err := wire(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			events, err := svc.ListAuditEvents(ctx, filter)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}

			for _, e := range events {
				ref, _ := e.Snapshot["reference"].(string)
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-18s %-16s %-10s %s\n",
					e.CreatedAt.Format(time.RFC3339), e.Action, e.Kind, ref, e.Actor)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d event(s)\n", len(events))
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "filter by document kind")
	cmd.Flags().StringVar(&documentID, "document-id", "", "filter by document ID")
	cmd.Flags().StringVar(&actor, "actor", "", "filter by acting user ID")
	cmd.Flags().StringVar(&action, "action", "", "filter by action (created|updated|deleted|approval_requested|approved|rejected|approval_reset)")
	cmd.Flags().StringVar(&since, "since", "", "only events on or after this date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of events")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON instead of a table")
	return cmd
}

// wire builds a fully wired ProposalService from the service configuration.
func wire(ctx context.Context) (*service.ProposalService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	log := logger.New(logger.Config{
		Level:       "warn",
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name + "-admin",
		Version:     cfg.Service.Version,
	})

	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: 2,
		MinConns: 1,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	cleanup := func() { db.Close() }

	var notifier service.NotificationPublisherInterface
	if cfg.NATS.Enabled {
		publisher, err := client.NewNotificationPublisher(cfg.NATS.URL, log.Logger)
		if err != nil {
			// Admin operations still work without notifications.
			log.Warn().Err(err).Msg("NATS unavailable, notifications skipped")
		} else {
			notifier = publisher
			prev := cleanup
			cleanup = func() {
				publisher.Close()
				prev()
			}
		}
	}

	svc := service.NewProposalService(
		repository.NewDocumentRepository(db),
		repository.NewAuditRepository(db),
		nil, nil, nil,
		notifier,
		log,
	)
	return svc, cleanup, nil
}
