package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Work the dead letter queue",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, _ := cmd.Flags().GetString("tenant")
		kind, _ := cmd.Flags().GetString("kind")

		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		entries, err := c.ListDLQ(tenantID, kind)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("Dead letter queue is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTENANT\tKIND\tATTEMPTS\tLAST ERROR")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				e.ID, e.TenantID, e.Kind, e.Attempts, truncate(e.LastError, 60))
		}
		return w.Flush()
	},
}

var dlqRequeueCmd = &cobra.Command{
	Use:   "requeue ID",
	Short: "Put a dead-lettered job back on the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		if err := c.RequeueDLQ(args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Job requeued: %s\n", args[0])
		return nil
	},
}

var dlqPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Drop dead-lettered jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, _ := cmd.Flags().GetString("tenant")
		kind, _ := cmd.Flags().GetString("kind")

		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		n, err := c.PurgeDLQ(tenantID, kind)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Purged %d job(s)\n", n)
		return nil
	},
}

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Manage rate limit buckets",
}

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset rate limit buckets",
	Long: `Reset one bucket when --client and --scope are both given, every
bucket otherwise.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		clientID, _ := cmd.Flags().GetString("client")
		scope, _ := cmd.Flags().GetString("scope")

		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		if err := c.ResetRateLimits(clientID, scope); err != nil {
			return err
		}
		if clientID != "" && scope != "" {
			fmt.Printf("✓ Rate limit reset: %s/%s\n", clientID, scope)
		} else {
			fmt.Println("✓ All rate limit buckets reset")
		}
		return nil
	},
}

var impersonateCmd = &cobra.Command{
	Use:   "impersonate",
	Short: "Manage support impersonation sessions",
}

var impersonateIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Mint a token for acting as a tenant",
	Long: `Mint a short-lived token letting a platform operator act as a tenant.
Every action taken under the session lands in the tenant's audit trail
marked with the session id.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		actorID, _ := cmd.Flags().GetString("actor")
		tenantID, _ := cmd.Flags().GetString("tenant")
		reason, _ := cmd.Flags().GetString("reason")

		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		it, err := c.IssueImpersonation(actorID, tenantID, reason)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Session issued (expires %s)\n", it.ExpiresAt.Format("2006-01-02 15:04 MST"))
		fmt.Println()
		fmt.Println("Send this header with storefront requests:")
		fmt.Printf("  X-Impersonation-Token: %s\n", it.Token)
		return nil
	},
}

var impersonateRevokeCmd = &cobra.Command{
	Use:   "revoke TOKEN",
	Short: "Kill a support session immediately",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		if err := c.RevokeImpersonation(args[0]); err != nil {
			return err
		}
		fmt.Println("✓ Session revoked")
		return nil
	},
}

func init() {
	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqRequeueCmd)
	dlqCmd.AddCommand(dlqPurgeCmd)

	dlqListCmd.Flags().String("tenant", "", "Filter by tenant id")
	dlqListCmd.Flags().String("kind", "", "Filter by job kind")
	dlqPurgeCmd.Flags().String("tenant", "", "Filter by tenant id")
	dlqPurgeCmd.Flags().String("kind", "", "Filter by job kind")

	rateLimitCmd.AddCommand(rateLimitResetCmd)
	rateLimitResetCmd.Flags().String("client", "", "Bucket client id (tenant id for the storefront scope)")
	rateLimitResetCmd.Flags().String("scope", "", "Bucket scope name")

	impersonateCmd.AddCommand(impersonateIssueCmd)
	impersonateCmd.AddCommand(impersonateRevokeCmd)

	impersonateIssueCmd.Flags().String("actor", "", "Platform operator id (required)")
	impersonateIssueCmd.Flags().String("tenant", "", "Tenant to act as (required)")
	impersonateIssueCmd.Flags().String("reason", "", "Why the session is needed (required, audited)")
	impersonateIssueCmd.MarkFlagRequired("actor")
	impersonateIssueCmd.MarkFlagRequired("tenant")
	impersonateIssueCmd.MarkFlagRequired("reason")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
