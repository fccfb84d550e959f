package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/agora/pkg/client"
	"github.com/cuemby/agora/pkg/security"
	"github.com/cuemby/agora/pkg/types"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a configuration file",
	Long: `Apply Agora resources from a YAML file. Existing resources are
updated in place, new ones are created.

Examples:
  # Provision a tenant
  agora apply -f tenant.yaml

  # Apply several resources from one file (--- separated)
  agora apply -f stores.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
}

// resource is the generic manifest envelope. Spec decoding is deferred
// until the kind is known.
type resource struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   resourceMetadata `yaml:"metadata"`
	Spec       yaml.Node        `yaml:"spec"`
}

type resourceMetadata struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

// tenantSpec is the spec body for kind: Tenant.
type tenantSpec struct {
	Subdomain         string          `yaml:"subdomain"`
	MediaStorageBytes int64           `yaml:"mediaStorageBytes"`
	Flags             map[string]bool `yaml:"flags,omitempty"`
	Domains           []string        `yaml:"domains,omitempty"`
	PaymentProvider   struct {
		Name          string `yaml:"name"`
		APIKey        string `yaml:"apiKey"`
		WebhookSecret string `yaml:"webhookSecret"`
	} `yaml:"paymentProvider,omitempty"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	c, err := adminClient(cmd)
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(f)
	for {
		var res resource
		if err := dec.Decode(&res); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("parse %s: %w", filename, err)
		}
		if res.Kind == "" {
			continue
		}

		switch res.Kind {
		case "Tenant":
			err = applyTenant(c, &res)
		default:
			err = fmt.Errorf("unsupported resource kind: %s", res.Kind)
		}
		if err != nil {
			return err
		}
	}
}

// applyTenant creates the tenant on first apply and converges quotas,
// flags, domains, and credentials on every apply after that.
func applyTenant(c *client.Client, res *resource) error {
	var spec tenantSpec
	if err := res.Spec.Decode(&spec); err != nil {
		return fmt.Errorf("decode tenant spec for %q: %w", res.Metadata.Name, err)
	}
	if spec.Subdomain == "" {
		return fmt.Errorf("tenant %q needs a subdomain", res.Metadata.Name)
	}
	if spec.MediaStorageBytes == 0 {
		spec.MediaStorageBytes = 5 << 30
	}

	tnt := findTenant(c, spec.Subdomain)
	if tnt == nil {
		created, err := c.CreateTenant(res.Metadata.Name, spec.Subdomain, types.TenantQuotas{
			MediaStorageBytes: spec.MediaStorageBytes,
		})
		if err != nil {
			return fmt.Errorf("create tenant %q: %w", res.Metadata.Name, err)
		}
		tnt = created
		fmt.Printf("✓ Tenant created: %s (ID: %s)\n", tnt.Name, tnt.ID)
	} else {
		updated, err := c.UpdateQuotas(tnt.ID, types.TenantQuotas{
			MediaStorageBytes: spec.MediaStorageBytes,
			MediaUsedBytes:    tnt.Quotas.MediaUsedBytes,
		})
		if err != nil {
			return fmt.Errorf("update tenant %q: %w", res.Metadata.Name, err)
		}
		tnt = updated
		fmt.Printf("✓ Tenant updated: %s\n", tnt.Name)
	}

	for key, enabled := range spec.Flags {
		if err := c.SetFlag(tnt.ID, key, enabled); err != nil {
			return fmt.Errorf("set flag %s on %q: %w", key, tnt.Name, err)
		}
		fmt.Printf("  flag %s = %v\n", key, enabled)
	}

	attached := make(map[string]bool, len(tnt.CustomDomains))
	for _, d := range tnt.CustomDomains {
		attached[d.Domain] = true
	}
	for _, domain := range spec.Domains {
		if attached[domain] {
			continue
		}
		if _, err := c.AttachDomain(tnt.ID, domain); err != nil {
			return fmt.Errorf("attach domain %s to %q: %w", domain, tnt.Name, err)
		}
		fmt.Printf("  domain %s attached (pending verification)\n", domain)
	}

	if spec.PaymentProvider.Name != "" {
		err := c.PutPaymentCredentials(tnt.ID, security.PaymentCredentials{
			Provider:      spec.PaymentProvider.Name,
			APIKey:        spec.PaymentProvider.APIKey,
			WebhookSecret: spec.PaymentProvider.WebhookSecret,
		})
		if err != nil {
			return fmt.Errorf("store credentials for %q: %w", tnt.Name, err)
		}
		fmt.Printf("  payment credentials stored (%s)\n", spec.PaymentProvider.Name)
	}

	return nil
}

// findTenant looks a tenant up by subdomain, nil when it does not exist.
func findTenant(c *client.Client, subdomain string) *types.Tenant {
	tenants, err := c.ListTenants()
	if err != nil {
		return nil
	}
	for _, t := range tenants {
		if t.Subdomain == subdomain {
			return t
		}
	}
	return nil
}
