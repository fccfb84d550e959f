package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cuemby/agora/pkg/security"
	"github.com/cuemby/agora/pkg/types"
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants",
}

var tenantCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Provision a new store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subdomain, _ := cmd.Flags().GetString("subdomain")
		quota, _ := cmd.Flags().GetInt64("media-quota")

		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		tnt, err := c.CreateTenant(args[0], subdomain, types.TenantQuotas{MediaStorageBytes: quota})
		if err != nil {
			return err
		}

		fmt.Printf("✓ Tenant created: %s\n", tnt.Name)
		fmt.Printf("  ID:        %s\n", tnt.ID)
		fmt.Printf("  Subdomain: %s\n", tnt.Subdomain)
		return nil
	},
}

var tenantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tenants",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		tenants, err := c.ListTenants()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSUBDOMAIN\tSTATUS\tCREATED")
		for _, t := range tenants {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				t.ID, t.Name, t.Subdomain, t.Status, t.CreatedAt.Format("2006-01-02"))
		}
		return w.Flush()
	},
}

var tenantGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		t, err := c.GetTenant(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("ID:          %s\n", t.ID)
		fmt.Printf("Name:        %s\n", t.Name)
		fmt.Printf("Subdomain:   %s\n", t.Subdomain)
		fmt.Printf("Status:      %s\n", t.Status)
		fmt.Printf("Media quota: %d bytes (%d used)\n", t.Quotas.MediaStorageBytes, t.Quotas.MediaUsedBytes)
		if len(t.CustomDomains) > 0 {
			fmt.Println("Domains:")
			for _, d := range t.CustomDomains {
				state := "pending verification"
				if d.Verified {
					state = "verified"
				}
				fmt.Printf("  %s (%s)\n", d.Domain, state)
			}
		}
		return nil
	},
}

var tenantSuspendCmd = &cobra.Command{
	Use:   "suspend ID",
	Short: "Block all storefront traffic for a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		if reason == "" {
			return fmt.Errorf("--reason is required")
		}

		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		t, err := c.SuspendTenant(args[0], reason)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Tenant suspended: %s (%s)\n", t.Name, reason)
		return nil
	},
}

var tenantActivateCmd = &cobra.Command{
	Use:   "activate ID",
	Short: "Restore a suspended tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		t, err := c.ActivateTenant(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("✓ Tenant active: %s\n", t.Name)
		return nil
	},
}

var tenantDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Tear a tenant down",
	Long: `Mark the tenant deleted. Its hosts stop resolving immediately; data
removal runs asynchronously through the job queue.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		if err := c.DeleteTenant(args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Tenant deletion started: %s\n", args[0])
		return nil
	},
}

var tenantQuotasCmd = &cobra.Command{
	Use:   "quotas ID",
	Short: "Update a tenant's resource quotas",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quota, _ := cmd.Flags().GetInt64("media-quota")

		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		t, err := c.GetTenant(args[0])
		if err != nil {
			return err
		}
		// Usage is tracked server-side; only the ceiling moves here.
		updated, err := c.UpdateQuotas(args[0], types.TenantQuotas{
			MediaStorageBytes: quota,
			MediaUsedBytes:    t.Quotas.MediaUsedBytes,
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Media quota for %s: %d bytes\n", updated.Name, updated.Quotas.MediaStorageBytes)
		return nil
	},
}

var tenantDomainCmd = &cobra.Command{
	Use:   "domain",
	Short: "Manage custom domains",
}

var tenantDomainAddCmd = &cobra.Command{
	Use:   "add ID DOMAIN",
	Short: "Attach a custom domain (pending DNS verification)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		if _, err := c.AttachDomain(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("✓ Domain attached: %s (verify DNS, then run 'agora tenant domain verify')\n", args[1])
		return nil
	},
}

var tenantDomainVerifyCmd = &cobra.Command{
	Use:   "verify ID DOMAIN",
	Short: "Mark a custom domain as DNS-verified",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		if _, err := c.VerifyDomain(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("✓ Domain verified: %s\n", args[1])
		return nil
	},
}

var tenantDomainRemoveCmd = &cobra.Command{
	Use:   "remove ID DOMAIN",
	Short: "Detach a custom domain",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		if _, err := c.RemoveDomain(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("✓ Domain removed: %s\n", args[1])
		return nil
	},
}

var tenantFlagCmd = &cobra.Command{
	Use:   "flag",
	Short: "Manage feature flags",
}

var tenantFlagSetCmd = &cobra.Command{
	Use:   "set ID KEY",
	Short: "Set a feature flag",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		enabled, _ := cmd.Flags().GetBool("enabled")

		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		if err := c.SetFlag(args[0], args[1], enabled); err != nil {
			return err
		}
		fmt.Printf("✓ Flag %s = %v\n", args[1], enabled)
		return nil
	},
}

var tenantFlagListCmd = &cobra.Command{
	Use:   "list ID",
	Short: "List a tenant's feature flags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		flags, err := c.ListFlags(args[0])
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tENABLED\tUPDATED")
		for _, f := range flags {
			fmt.Fprintf(w, "%s\t%v\t%s\n", f.Key, f.Enabled, f.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var tenantCredentialsCmd = &cobra.Command{
	Use:   "credentials ID",
	Short: "Store a tenant's payment provider credentials",
	Long: `Store the tenant's payment provider secrets. They are sealed at rest
and never readable back through the API; re-run this command to rotate.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("provider")
		apiKey, _ := cmd.Flags().GetString("api-key")
		webhookSecret, _ := cmd.Flags().GetString("webhook-secret")

		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		err = c.PutPaymentCredentials(args[0], security.PaymentCredentials{
			Provider:      provider,
			APIKey:        apiKey,
			WebhookSecret: webhookSecret,
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Payment credentials stored for %s\n", args[0])
		return nil
	},
}

func init() {
	tenantCmd.AddCommand(tenantCreateCmd)
	tenantCmd.AddCommand(tenantListCmd)
	tenantCmd.AddCommand(tenantGetCmd)
	tenantCmd.AddCommand(tenantSuspendCmd)
	tenantCmd.AddCommand(tenantActivateCmd)
	tenantCmd.AddCommand(tenantDeleteCmd)
	tenantCmd.AddCommand(tenantQuotasCmd)
	tenantCmd.AddCommand(tenantDomainCmd)
	tenantCmd.AddCommand(tenantFlagCmd)
	tenantCmd.AddCommand(tenantCredentialsCmd)

	tenantDomainCmd.AddCommand(tenantDomainAddCmd)
	tenantDomainCmd.AddCommand(tenantDomainVerifyCmd)
	tenantDomainCmd.AddCommand(tenantDomainRemoveCmd)

	tenantFlagCmd.AddCommand(tenantFlagSetCmd)
	tenantFlagCmd.AddCommand(tenantFlagListCmd)

	tenantCreateCmd.Flags().String("subdomain", "", "Subdomain under the base domain")
	tenantCreateCmd.Flags().Int64("media-quota", 5<<30, "Media storage quota in bytes")
	tenantCreateCmd.MarkFlagRequired("subdomain")

	tenantSuspendCmd.Flags().String("reason", "", "Why the tenant is being suspended (required)")

	tenantQuotasCmd.Flags().Int64("media-quota", 5<<30, "Media storage quota in bytes")

	tenantFlagSetCmd.Flags().Bool("enabled", true, "Flag value")

	tenantCredentialsCmd.Flags().String("provider", "", "Payment provider name")
	tenantCredentialsCmd.Flags().String("api-key", "", "Provider API key")
	tenantCredentialsCmd.Flags().String("webhook-secret", "", "Provider webhook signing secret")
	tenantCredentialsCmd.MarkFlagRequired("provider")
	tenantCredentialsCmd.MarkFlagRequired("api-key")
	tenantCredentialsCmd.MarkFlagRequired("webhook-secret")
}
