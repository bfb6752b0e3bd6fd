package resources

import (
	"context"
	"errors"
	"testing"

	"github.com/adjutant-go/adjutant/action"
	"github.com/adjutant-go/adjutant/core"
	"github.com/adjutant-go/adjutant/services/fake"
	"github.com/stretchr/testify/require"
)

const (
	region    = "RegionOne"
	projectID = "test_project_id"
)

func Test_DefaultNetwork(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		f    func(t *testing.T, e *env)
	}{
		{
			name: "creates all resources",
			f: func(t *testing.T, e *env) {
				a, _, s := e.build(t, NewDefaultNetworkDefinition(), NetworkInput{SetupNetwork: true, Region: region, ProjectID: projectID})

				res, err := a.PreApprove(ctx, s)
				require.NoError(t, err)
				require.True(t, res.Valid)

				res, err = a.PostApprove(ctx, s)
				require.NoError(t, err)
				require.True(t, res.Valid)

				require.Equal(t, NetworkCache{
					NetworkID: "net_id_0",
					SubnetID:  "subnet_id_1",
					RouterID:  "router_id_2",
					PortID:    "port_id_3",
				}, cacheOf(t, s))

				require.Equal(t, 1, e.network.Count(region, projectID, fake.Networks))
				require.Equal(t, 1, e.network.Count(region, projectID, fake.Subnets))
				require.Equal(t, 1, e.network.Count(region, projectID, fake.Routers))
			},
		},
		{
			name: "setup disabled does nothing",
			f: func(t *testing.T, e *env) {
				a, _, s := e.build(t, NewDefaultNetworkDefinition(), NetworkInput{SetupNetwork: false, Region: region, ProjectID: projectID})

				res, err := a.PreApprove(ctx, s)
				require.NoError(t, err)
				require.True(t, res.Valid)

				res, err = a.PostApprove(ctx, s)
				require.NoError(t, err)
				require.True(t, res.Valid)

				require.Empty(t, s.Record().Cache)
				require.Zero(t, e.network.Count(region, projectID, fake.Networks))
			},
		},
		{
			name: "resumes after router failure",
			f: func(t *testing.T, e *env) {
				a, _, s := e.build(t, NewDefaultNetworkDefinition(), NetworkInput{SetupNetwork: true, Region: region, ProjectID: projectID})

				res, err := a.PreApprove(ctx, s)
				require.NoError(t, err)
				require.True(t, res.Valid)

				e.network.Fail(fake.OpCreateRouter, errors.New("neutron unavailable"))

				_, err = a.PostApprove(ctx, s)
				require.Error(t, err)
				require.Equal(t, NetworkCache{NetworkID: "net_id_0", SubnetID: "subnet_id_1"}, cacheOf(t, s))
				require.Zero(t, e.network.Count(region, projectID, fake.Routers))

				e.network.Clear(fake.OpCreateRouter)

				res, err = a.PostApprove(ctx, s)
				require.NoError(t, err)
				require.True(t, res.Valid)
				require.Equal(t, NetworkCache{
					NetworkID: "net_id_0",
					SubnetID:  "subnet_id_1",
					RouterID:  "router_id_2",
					PortID:    "port_id_3",
				}, cacheOf(t, s))

				require.Equal(t, 1, e.network.Calls(fake.OpCreateNetwork))
				require.Equal(t, 1, e.network.Calls(fake.OpCreateSubnet))
				require.Equal(t, 1, e.network.Calls(fake.OpCreateRouter))
				require.Equal(t, 1, e.network.Calls(fake.OpAddRouterInterface))
			},
		},
		{
			name: "repeated post approve creates nothing new",
			f: func(t *testing.T, e *env) {
				a, _, s := e.build(t, NewDefaultNetworkDefinition(), NetworkInput{SetupNetwork: true, Region: region, ProjectID: projectID})

				_, err := a.PostApprove(ctx, s)
				require.NoError(t, err)
				_, err = a.PostApprove(ctx, s)
				require.NoError(t, err)

				require.Equal(t, 1, e.network.Count(region, projectID, fake.Networks))
				require.Equal(t, 1, e.network.Calls(fake.OpAddRouterInterface))
			},
		},
		{
			name: "recreates resource removed upstream",
			f: func(t *testing.T, e *env) {
				a, _, s := e.build(t, NewDefaultNetworkDefinition(), NetworkInput{SetupNetwork: true, Region: region, ProjectID: projectID})

				e.network.Fail(fake.OpCreateRouter, errors.New("neutron unavailable"))
				_, err := a.PostApprove(ctx, s)
				require.Error(t, err)
				e.network.Clear(fake.OpCreateRouter)

				e.network.Remove(region, fake.Subnets, "subnet_id_1")

				res, err := a.PostApprove(ctx, s)
				require.NoError(t, err)
				require.True(t, res.Valid)

				c := cacheOf(t, s)
				require.Equal(t, "net_id_0", c.NetworkID)
				require.Equal(t, "subnet_id_2", c.SubnetID)
				require.Equal(t, "router_id_3", c.RouterID)
				require.Equal(t, "port_id_4", c.PortID)
				require.Equal(t, 1, e.network.Calls(fake.OpCreateNetwork))
			},
		},
		{
			name: "unknown region is invalid",
			f: func(t *testing.T, e *env) {
				a, _, s := e.build(t, NewDefaultNetworkDefinition(), NetworkInput{SetupNetwork: true, Region: "RegionNine", ProjectID: projectID})

				res, err := a.PreApprove(ctx, s)
				require.NoError(t, err)
				require.False(t, res.Valid)
				require.NotEmpty(t, res.Notes)
			},
		},
		{
			name: "unknown project is invalid",
			f: func(t *testing.T, e *env) {
				a, _, s := e.build(t, NewDefaultNetworkDefinition(), NetworkInput{SetupNetwork: true, Region: region, ProjectID: "missing"})

				res, err := a.PreApprove(ctx, s)
				require.NoError(t, err)
				require.False(t, res.Valid)
			},
		},
		{
			name: "pre approve is repeatable without side effects",
			f: func(t *testing.T, e *env) {
				a, _, s := e.build(t, NewDefaultNetworkDefinition(), NetworkInput{SetupNetwork: true, Region: region, ProjectID: projectID})

				first, err := a.PreApprove(ctx, s)
				require.NoError(t, err)
				second, err := a.PreApprove(ctx, s)
				require.NoError(t, err)

				require.Equal(t, first, second)
				require.Zero(t, e.network.Calls(fake.OpCreateNetwork))
				require.Empty(t, s.Record().Cache)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.f(t, newEnv(t))
		})
	}
}

func Test_ProjectDefaultNetwork(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		f    func(t *testing.T, e *env)
	}{
		{
			name: "uses project from scratch",
			f: func(t *testing.T, e *env) {
				a, task, s := e.build(t, NewProjectDefaultNetworkDefinition(), NetworkInput{SetupNetwork: true, Region: region})

				res, err := a.PreApprove(ctx, s)
				require.NoError(t, err)
				require.True(t, res.Valid)

				task.SetScratch(core.ScratchProjectID, projectID)

				res, err = a.PostApprove(ctx, s)
				require.NoError(t, err)
				require.True(t, res.Valid)

				require.Equal(t, NetworkCache{
					NetworkID: "net_id_0",
					SubnetID:  "subnet_id_1",
					RouterID:  "router_id_2",
					PortID:    "port_id_3",
				}, cacheOf(t, s))
				require.Equal(t, 1, e.network.Count(region, projectID, fake.Routers))
			},
		},
		{
			name: "missing project id is invalid",
			f: func(t *testing.T, e *env) {
				a, _, s := e.build(t, NewProjectDefaultNetworkDefinition(), NetworkInput{SetupNetwork: true, Region: region})

				res, err := a.PreApprove(ctx, s)
				require.NoError(t, err)
				require.True(t, res.Valid)

				res, err = a.PostApprove(ctx, s)
				require.NoError(t, err)
				require.False(t, res.Valid)
				require.Empty(t, s.Record().Cache)
				require.Zero(t, e.network.Count(region, projectID, fake.Networks))
			},
		},
		{
			name: "setup disabled does nothing",
			f: func(t *testing.T, e *env) {
				a, task, s := e.build(t, NewProjectDefaultNetworkDefinition(), NetworkInput{SetupNetwork: false, Region: region})
				task.SetScratch(core.ScratchProjectID, projectID)

				res, err := a.PostApprove(ctx, s)
				require.NoError(t, err)
				require.True(t, res.Valid)
				require.Empty(t, s.Record().Cache)
			},
		},
		{
			name: "resumes after router failure",
			f: func(t *testing.T, e *env) {
				a, task, s := e.build(t, NewProjectDefaultNetworkDefinition(), NetworkInput{SetupNetwork: true, Region: region})
				task.SetScratch(core.ScratchProjectID, projectID)

				e.network.Fail(fake.OpCreateRouter, errors.New("neutron unavailable"))
				_, err := a.PostApprove(ctx, s)
				require.Error(t, err)
				require.Equal(t, NetworkCache{NetworkID: "net_id_0", SubnetID: "subnet_id_1"}, cacheOf(t, s))

				e.network.Clear(fake.OpCreateRouter)
				res, err := a.PostApprove(ctx, s)
				require.NoError(t, err)
				require.True(t, res.Valid)
				require.Equal(t, "port_id_3", cacheOf(t, s).PortID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.f(t, newEnv(t))
		})
	}
}

func Test_NetworkInputValidation(t *testing.T) {
	err := NewDefaultNetworkDefinition().Validate([]byte(`{"setup_network":true}`))

	var verr *action.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "region")
	require.Contains(t, verr.Fields, "project_id")

	require.NoError(t, NewProjectDefaultNetworkDefinition().Validate([]byte(`{"region":"RegionOne"}`)))
}
