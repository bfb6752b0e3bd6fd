// Package services defines the clients the engine uses to reach external
// cloud-resource services. Implementations are synchronous; timeouts and
// cancellation are the adapter's concern and are driven by the passed context.
//
// Hosts compose the clients they hand to the engine with NewClients. Quota
// clients talking to flaky endpoints can be wrapped with WithRetries first.
package services

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("resource not found")

// Service names a quota-bearing service. The set is open so deployments can
// add services without touching the engine.
type Service string

const (
	Compute      = Service("compute")
	Network      = Service("network")
	BlockStorage = Service("block-storage")
	LoadBalancer = Service("load-balancer")
)

// Quota maps a service's resource names to limits.
type Quota map[string]int64

func (q Quota) Clone() Quota {
	c := make(Quota, len(q))
	for k, v := range q {
		c[k] = v
	}
	return c
}

type NetworkSpec struct {
	Name      string
	ProjectID string
}

type SubnetSpec struct {
	Name           string
	ProjectID      string
	NetworkID      string
	CIDR           string
	DNSNameservers []string
}

type RouterSpec struct {
	Name            string
	ProjectID       string
	ExternalNetwork string
}

type Resource struct {
	ID        string
	Name      string
	ProjectID string
}

// NetworkClient manages network resources in one or more regions.
type NetworkClient interface {
	CreateNetwork(ctx context.Context, region string, spec NetworkSpec) (string, error)
	GetNetwork(ctx context.Context, region, id string) (*Resource, error)

	CreateSubnet(ctx context.Context, region string, spec SubnetSpec) (string, error)
	GetSubnet(ctx context.Context, region, id string) (*Resource, error)

	CreateRouter(ctx context.Context, region string, spec RouterSpec) (string, error)
	GetRouter(ctx context.Context, region, id string) (*Resource, error)

	// AddRouterInterface attaches the router to the subnet and returns the id
	// of the port created for it.
	AddRouterInterface(ctx context.Context, region, routerID, subnetID string) (string, error)
	GetPort(ctx context.Context, region, id string) (*Resource, error)
}

// QuotaClient reads and writes the quota of one service.
type QuotaClient interface {
	Service() Service
	GetQuota(ctx context.Context, region, projectID string) (Quota, error)
	SetQuota(ctx context.Context, region, projectID string, quota Quota) error
}

// UsageReporter is implemented by quota clients whose service exposes a
// meterable current-usage count. Only those services take part in usage-floor
// checks.
type UsageReporter interface {
	GetUsage(ctx context.Context, region, projectID string) (Quota, error)
}

// MailingListClient manages the membership of mailing lists.
type MailingListClient interface {
	Members(ctx context.Context, list string) ([]string, error)
	Subscribe(ctx context.Context, list, address string) error
}

// Clients bundles the service clients handed to actions. MailingList is
// optional.
type Clients struct {
	Network     NetworkClient
	Quotas      map[Service]QuotaClient
	MailingList MailingListClient
}

func (c *Clients) Quota(s Service) (QuotaClient, error) {
	if c == nil || c.Quotas == nil {
		return nil, fmt.Errorf("no quota client for service %q", s)
	}

	qc, ok := c.Quotas[s]
	if !ok {
		return nil, fmt.Errorf("no quota client for service %q", s)
	}

	return qc, nil
}

func NewClients(network NetworkClient, quotas ...QuotaClient) *Clients {
	c := &Clients{
		Network: network,
		Quotas:  make(map[Service]QuotaClient, len(quotas)),
	}

	for _, q := range quotas {
		c.Quotas[q.Service()] = q
	}

	return c
}
