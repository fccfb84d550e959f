/*
Package client provides a Go client library for the Agora admin API.

The client wraps the operator HTTP surface with typed methods so CLI
commands and platform tooling never hand-build requests. It handles the
bearer token, request timeouts, the list envelope, and turns RFC 7807
problem documents into Go errors.

# Architecture

	┌──────────────────── APPLICATION CODE ─────────────────────┐
	│                                                             │
	│  import "github.com/cuemby/agora/pkg/client"                │
	│                                                             │
	│  c, err := client.New("manager:8080", token)                │
	│  tnt, err := c.CreateTenant("Maple Vintage", "maple", q)    │
	│                                                             │
	└──────────────────┬──────────────────────────────────────┘
	                   │
	┌──────────────────▼──── pkg/client ────────────────────────┐
	│                                                             │
	│  Typed methods over /admin/v1:                              │
	│    tenants, quotas, domains, flags, credentials,            │
	│    DLQ, rate limits, impersonation sessions                 │
	│                                                             │
	│  - Authorization: Bearer <operator token>                   │
	│  - 10s timeout per call                                     │
	│  - list envelope unwrapping                                 │
	│  - problem documents -> *ProblemError                       │
	└──────────────────┬──────────────────────────────────────┘
	                   │ HTTP (port 8080)
	                   ▼
	           Manager admin surface

# Usage

Creating a client:

	c, err := client.New("http://127.0.0.1:8080", os.Getenv("AGORA_ADMIN_TOKEN"))
	if err != nil {
		log.Fatal(err)
	}

Provisioning a store:

	tnt, err := c.CreateTenant("Maple Vintage", "maple", types.TenantQuotas{
		MediaStorageBytes: 5 << 30,
	})

Suspending and reactivating:

	_, err = c.SuspendTenant(tnt.ID, "billing hold")
	_, err = c.ActivateTenant(tnt.ID)

Working the dead letter queue:

	entries, err := c.ListDLQ("", "media_transcode")
	for _, e := range entries {
		if err := c.RequeueDLQ(e.ID); err != nil {
			log.Printf("requeue %s: %v", e.ID, err)
		}
	}

# Error Handling

Every non-2xx answer decodes into *ProblemError carrying the status, title,
detail, and the server's remediation hint when it has one:

	_, err := c.GetTenant("nope")
	var pe *client.ProblemError
	if errors.As(err, &pe) && pe.Status == http.StatusNotFound {
		// unknown tenant
	}

Transport failures (connection refused, timeout) come back as wrapped
net/http errors, so reachability problems and API rejections stay
distinguishable.

The client is safe for concurrent use.
*/
package client
