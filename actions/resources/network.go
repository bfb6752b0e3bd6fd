// Package resources holds the actions that provision cloud resources for a
// project: its default network and its quota.
package resources

import (
	"context"
	"errors"
	"fmt"

	"github.com/adjutant-go/adjutant/action"
	"github.com/adjutant-go/adjutant/core"
	"github.com/adjutant-go/adjutant/identity"
	"github.com/adjutant-go/adjutant/log"
	"github.com/adjutant-go/adjutant/services"
)

const (
	KindNewDefaultNetwork        = action.Kind("new_default_network")
	KindNewProjectDefaultNetwork = action.Kind("new_project_default_network")
)

type NetworkRegionSettings struct {
	NetworkName    string   `json:"network_name" yaml:"network_name"`
	SubnetName     string   `json:"subnet_name" yaml:"subnet_name"`
	RouterName     string   `json:"router_name" yaml:"router_name"`
	PublicNetwork  string   `json:"public_network" yaml:"public_network"`
	SubnetCIDR     string   `json:"subnet_cidr" yaml:"subnet_cidr"`
	DNSNameservers []string `json:"dns_nameservers" yaml:"dns_nameservers"`
}

type NetworkSettings struct {
	Regions map[string]NetworkRegionSettings `json:"regions" yaml:"regions"`
}

var DefaultNetworkSettings = NetworkSettings{
	Regions: map[string]NetworkRegionSettings{
		"RegionOne": {
			NetworkName:    "default_network",
			SubnetName:     "default_subnet",
			RouterName:     "default_router",
			PublicNetwork:  "external",
			SubnetCIDR:     "192.168.1.0/24",
			DNSNameservers: []string{"193.168.1.2", "193.168.1.3"},
		},
	},
}

type NetworkInput struct {
	SetupNetwork bool   `json:"setup_network"`
	ProjectID    string `json:"project_id,omitempty"`
	Region       string `json:"region" validate:"required"`
}

// NetworkCache records the identifier of every resource created so far.
type NetworkCache struct {
	NetworkID string `json:"network_id,omitempty"`
	SubnetID  string `json:"subnet_id,omitempty"`
	RouterID  string `json:"router_id,omitempty"`
	PortID    string `json:"port_id,omitempty"`
}

func NewDefaultNetworkDefinition() action.Definition {
	return action.Define(KindNewDefaultNetwork, DefaultNetworkSettings,
		func(d action.Deps, s NetworkSettings, in NetworkInput) action.Action {
			return &defaultNetwork{deps: d, settings: s, input: in}
		},
		// Only this kind needs an explicit project.
		func(in *NetworkInput) action.ValidationErrors {
			errs := action.ValidationErrors{}
			if in.ProjectID == "" {
				errs.Add("project_id", "This field is required.")
			}
			return errs
		},
	)
}

func NewProjectDefaultNetworkDefinition() action.Definition {
	return action.Define(KindNewProjectDefaultNetwork, DefaultNetworkSettings,
		func(d action.Deps, s NetworkSettings, in NetworkInput) action.Action {
			return &defaultNetwork{deps: d, settings: s, input: in, fromScratch: true}
		},
		nil,
	)
}

// defaultNetwork sets up a network, subnet and router for a project and
// attaches the router to the subnet. With fromScratch the project is the one
// an earlier action of the task created.
type defaultNetwork struct {
	deps        action.Deps
	settings    NetworkSettings
	input       NetworkInput
	fromScratch bool
}

func (a *defaultNetwork) PreApprove(ctx context.Context, s *action.State) (action.Result, error) {
	if _, ok := a.settings.Regions[a.input.Region]; !ok {
		return action.Invalid(fmt.Sprintf("Region %q has no network settings.", a.input.Region)), nil
	}

	if a.fromScratch {
		return action.Valid(), nil
	}

	if _, err := a.deps.Identity.GetProject(ctx, a.input.ProjectID); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return action.Invalid(fmt.Sprintf("Project %q does not exist.", a.input.ProjectID)), nil
		}
		return action.Result{}, err
	}

	return action.Valid(), nil
}

func (a *defaultNetwork) PostApprove(ctx context.Context, s *action.State) (action.Result, error) {
	projectID := a.input.ProjectID
	if a.fromScratch {
		projectID = s.Scratch(core.ScratchProjectID)
		if projectID == "" {
			return action.Invalid("No project id available to set up the network for."), nil
		}
	}

	if !a.input.SetupNetwork {
		return action.Valid(), nil
	}

	if err := a.createNetwork(ctx, s, projectID); err != nil {
		return action.Result{}, err
	}

	return action.Valid(), nil
}

func (a *defaultNetwork) Submit(ctx context.Context, s *action.State, fields map[string]string) (action.Result, error) {
	return action.Valid(), nil
}

// createNetwork runs the four creation steps. A step is skipped when its cached
// resource still exists. A step whose parent was recreated runs again.
func (a *defaultNetwork) createNetwork(ctx context.Context, s *action.State, projectID string) error {
	region := a.input.Region
	rs := a.settings.Regions[region]
	nc := a.deps.Services.Network
	logger := s.Logger().With(log.RegionKey, region, log.ProjectKey, projectID)

	cache, err := action.LoadCache[NetworkCache](s)
	if err != nil {
		return err
	}

	networkFresh, err := ensure(ctx, s, cache.NetworkID, false,
		func() error {
			_, err := nc.GetNetwork(ctx, region, cache.NetworkID)
			return err
		},
		func() (NetworkCache, error) {
			id, err := nc.CreateNetwork(ctx, region, services.NetworkSpec{Name: rs.NetworkName, ProjectID: projectID})
			if err != nil {
				return NetworkCache{}, fmt.Errorf("creating network: %w", err)
			}
			logger.Info("Created network", log.ResourceKey, id)
			cache.NetworkID = id
			return NetworkCache{NetworkID: id}, nil
		})
	if err != nil {
		return err
	}

	subnetFresh, err := ensure(ctx, s, cache.SubnetID, networkFresh,
		func() error {
			_, err := nc.GetSubnet(ctx, region, cache.SubnetID)
			return err
		},
		func() (NetworkCache, error) {
			id, err := nc.CreateSubnet(ctx, region, services.SubnetSpec{
				Name:           rs.SubnetName,
				ProjectID:      projectID,
				NetworkID:      cache.NetworkID,
				CIDR:           rs.SubnetCIDR,
				DNSNameservers: rs.DNSNameservers,
			})
			if err != nil {
				return NetworkCache{}, fmt.Errorf("creating subnet: %w", err)
			}
			logger.Info("Created subnet", log.ResourceKey, id)
			cache.SubnetID = id
			return NetworkCache{SubnetID: id}, nil
		})
	if err != nil {
		return err
	}

	routerFresh, err := ensure(ctx, s, cache.RouterID, false,
		func() error {
			_, err := nc.GetRouter(ctx, region, cache.RouterID)
			return err
		},
		func() (NetworkCache, error) {
			id, err := nc.CreateRouter(ctx, region, services.RouterSpec{
				Name:            rs.RouterName,
				ProjectID:       projectID,
				ExternalNetwork: rs.PublicNetwork,
			})
			if err != nil {
				return NetworkCache{}, fmt.Errorf("creating router: %w", err)
			}
			logger.Info("Created router", log.ResourceKey, id)
			cache.RouterID = id
			return NetworkCache{RouterID: id}, nil
		})
	if err != nil {
		return err
	}

	_, err = ensure(ctx, s, cache.PortID, subnetFresh || routerFresh,
		func() error {
			_, err := nc.GetPort(ctx, region, cache.PortID)
			return err
		},
		func() (NetworkCache, error) {
			id, err := nc.AddRouterInterface(ctx, region, cache.RouterID, cache.SubnetID)
			if err != nil {
				return NetworkCache{}, fmt.Errorf("attaching router to subnet: %w", err)
			}
			logger.Info("Attached router to subnet", log.ResourceKey, id)
			cache.PortID = id
			return NetworkCache{PortID: id}, nil
		})

	return err
}

// ensure creates a resource unless its cached id still resolves. It reports
// whether a new resource was created.
func ensure(
	ctx context.Context,
	s *action.State,
	cachedID string,
	force bool,
	lookup func() error,
	create func() (NetworkCache, error),
) (bool, error) {
	if cachedID != "" && !force {
		err := lookup()
		if err == nil {
			return false, nil
		}
		if !errors.Is(err, services.ErrNotFound) {
			return false, fmt.Errorf("looking up %s: %w", cachedID, err)
		}
		s.Logger().Warn("Cached resource is gone, recreating", log.ResourceKey, cachedID)
	}

	update, err := create()
	if err != nil {
		return false, err
	}

	if err := action.StoreCache(ctx, s, update); err != nil {
		return true, err
	}

	return true, nil
}
