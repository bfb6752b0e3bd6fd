// Package fake provides in-memory service clients for tests and local
// composition. Faults can be injected per operation.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/adjutant-go/adjutant/services"
)

type resourceKind string

const (
	Networks = resourceKind("networks")
	Subnets  = resourceKind("subnets")
	Routers  = resourceKind("routers")
	Ports    = resourceKind("ports")
)

var idPrefix = map[resourceKind]string{
	Networks: "net_id",
	Subnets:  "subnet_id",
	Routers:  "router_id",
	Ports:    "port_id",
}

// Operations that can be made to fail.
const (
	OpCreateNetwork      = "CreateNetwork"
	OpCreateSubnet       = "CreateSubnet"
	OpCreateRouter       = "CreateRouter"
	OpAddRouterInterface = "AddRouterInterface"
	OpGetQuota           = "GetQuota"
	OpSetQuota           = "SetQuota"
	OpGetUsage           = "GetUsage"
)

type faults struct {
	mu  sync.Mutex
	ops map[string]error
}

func (f *faults) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ops == nil {
		f.ops = map[string]error{}
	}
	f.ops[op] = err
}

func (f *faults) Clear(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.ops, op)
}

func (f *faults) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.ops[op]
}

// Network is an in-memory services.NetworkClient. Identifiers are allocated
// from one counter shared by all resource kinds.
type Network struct {
	faults

	mu        sync.Mutex
	next      int
	resources map[string]map[resourceKind]map[string]*services.Resource
	calls     map[string]int
}

var _ services.NetworkClient = (*Network)(nil)

func NewNetwork() *Network {
	return &Network{
		resources: map[string]map[resourceKind]map[string]*services.Resource{},
		calls:     map[string]int{},
	}
}

func (n *Network) create(op string, region string, kind resourceKind, name, projectID string) (string, error) {
	if err := n.check(op); err != nil {
		return "", err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.calls[op]++

	id := fmt.Sprintf("%s_%d", idPrefix[kind], n.next)
	n.next++

	byKind, ok := n.resources[region]
	if !ok {
		byKind = map[resourceKind]map[string]*services.Resource{}
		n.resources[region] = byKind
	}
	if byKind[kind] == nil {
		byKind[kind] = map[string]*services.Resource{}
	}

	byKind[kind][id] = &services.Resource{ID: id, Name: name, ProjectID: projectID}

	return id, nil
}

func (n *Network) get(region string, kind resourceKind, id string) (*services.Resource, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	r, ok := n.resources[region][kind][id]
	if !ok {
		return nil, fmt.Errorf("%s %q: %w", kind, id, services.ErrNotFound)
	}

	c := *r
	return &c, nil
}

func (n *Network) CreateNetwork(ctx context.Context, region string, spec services.NetworkSpec) (string, error) {
	return n.create(OpCreateNetwork, region, Networks, spec.Name, spec.ProjectID)
}

func (n *Network) GetNetwork(ctx context.Context, region, id string) (*services.Resource, error) {
	return n.get(region, Networks, id)
}

func (n *Network) CreateSubnet(ctx context.Context, region string, spec services.SubnetSpec) (string, error) {
	if _, err := n.get(region, Networks, spec.NetworkID); err != nil {
		return "", err
	}

	return n.create(OpCreateSubnet, region, Subnets, spec.Name, spec.ProjectID)
}

func (n *Network) GetSubnet(ctx context.Context, region, id string) (*services.Resource, error) {
	return n.get(region, Subnets, id)
}

func (n *Network) CreateRouter(ctx context.Context, region string, spec services.RouterSpec) (string, error) {
	return n.create(OpCreateRouter, region, Routers, spec.Name, spec.ProjectID)
}

func (n *Network) GetRouter(ctx context.Context, region, id string) (*services.Resource, error) {
	return n.get(region, Routers, id)
}

func (n *Network) AddRouterInterface(ctx context.Context, region, routerID, subnetID string) (string, error) {
	router, err := n.get(region, Routers, routerID)
	if err != nil {
		return "", err
	}
	if _, err := n.get(region, Subnets, subnetID); err != nil {
		return "", err
	}

	return n.create(OpAddRouterInterface, region, Ports, "", router.ProjectID)
}

func (n *Network) GetPort(ctx context.Context, region, id string) (*services.Resource, error) {
	return n.get(region, Ports, id)
}

// Count returns the number of resources of the given kind a project owns in a
// region.
func (n *Network) Count(region, projectID string, kind resourceKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	c := 0
	for _, r := range n.resources[region][kind] {
		if r.ProjectID == projectID {
			c++
		}
	}

	return c
}

// Calls returns how often a create operation succeeded.
func (n *Network) Calls(op string) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.calls[op]
}

// Remove deletes a resource as if it was removed out of band.
func (n *Network) Remove(region string, kind resourceKind, id string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.resources[region][kind], id)
}
