package quota

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/adjutant-go/adjutant/internal/metrics"
	"github.com/adjutant-go/adjutant/services"
	"github.com/adjutant-go/adjutant/services/fake"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Sizes: map[string]map[services.Service]services.Quota{
			"small": {
				services.BlockStorage: {"gigabytes": 5000},
				services.Compute:      {"ram": 65536},
				services.Network:      {"network": 3},
				services.LoadBalancer: {"load_balancer": 1},
			},
			"medium": {
				services.BlockStorage: {"gigabytes": 10000},
				services.Compute:      {"ram": 327680},
				services.Network:      {"network": 5},
				services.LoadBalancer: {"load_balancer": 5},
			},
			"large": {
				services.BlockStorage: {"gigabytes": 50000},
				services.Compute:      {"ram": 655360},
				services.Network:      {"network": 10},
				services.LoadBalancer: {"load_balancer": 10},
			},
			"zero": {
				services.BlockStorage: {"gigabytes": 0},
				services.Compute:      {"ram": 0},
				services.Network:      {"network": 0},
				services.LoadBalancer: {"load_balancer": 0},
			},
		},
		SizesAscending: []string{"small", "medium", "large"},
		Services: map[string][]services.Service{
			AllRegions: {services.Compute, services.Network, services.BlockStorage, services.LoadBalancer},
		},
		RegionOverrides: map[string]map[services.Service]services.Quota{
			"RegionThree": {
				services.BlockStorage: {"gigabytes": 50001, "snapshots": 600, "volumes": 200},
			},
		},
	}
}

type testClients struct {
	compute, network, storage *fake.Quota
	lb                        *fake.MeteredQuota
	clients                   *services.Clients
}

func newTestClients() *testClients {
	tc := &testClients{
		compute: fake.NewQuota(services.Compute),
		network: fake.NewQuota(services.Network),
		storage: fake.NewQuota(services.BlockStorage),
		lb:      fake.NewMeteredQuota(services.LoadBalancer),
	}
	tc.clients = services.NewClients(fake.NewNetwork(), tc.compute, tc.network, tc.storage, tc.lb)

	return tc
}

func newReconciler(tc *testClients) *Reconciler {
	return NewReconciler(testConfig(), tc.clients, slog.Default(), metrics.NewNoopMetricsClient())
}

func Test_Reconciler_Plan(t *testing.T) {
	r := newReconciler(newTestClients())

	plan, err := r.Plan("medium", []string{"RegionOne", "RegionThree"})
	require.NoError(t, err)

	require.Equal(t, int64(10000), plan["RegionOne"][services.BlockStorage]["gigabytes"])
	require.Equal(t, int64(50001), plan["RegionThree"][services.BlockStorage]["gigabytes"])
	require.Equal(t, int64(600), plan["RegionThree"][services.BlockStorage]["snapshots"])
	require.Equal(t, int64(327680), plan["RegionThree"][services.Compute]["ram"])

	_, err = r.Plan("huge", []string{"RegionOne"})
	require.True(t, errors.Is(err, ErrUnknownSize))
}

func Test_Reconciler_Plan_DoesNotMutateTable(t *testing.T) {
	r := newReconciler(newTestClients())

	_, err := r.Plan("medium", []string{"RegionThree"})
	require.NoError(t, err)

	require.Equal(t, int64(10000), r.Config().Sizes["medium"][services.BlockStorage]["gigabytes"])
}

func Test_Reconciler_Reconcile(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		f    func(t *testing.T, tc *testClients, r *Reconciler)
	}{
		{
			name: "applies same values to all regions",
			f: func(t *testing.T, tc *testClients, r *Reconciler) {
				violations, err := r.Reconcile(ctx, "p1", "large", []string{"RegionOne", "RegionTwo"})
				require.NoError(t, err)
				require.Empty(t, violations)

				for _, region := range []string{"RegionOne", "RegionTwo"} {
					v, _ := tc.storage.Value(region, "p1", "gigabytes")
					require.Equal(t, int64(50000), v)
					v, _ = tc.compute.Value(region, "p1", "ram")
					require.Equal(t, int64(655360), v)
					v, _ = tc.network.Value(region, "p1", "network")
					require.Equal(t, int64(10), v)
				}
			},
		},
		{
			name: "usage above limit rejects the whole batch",
			f: func(t *testing.T, tc *testClients, r *Reconciler) {
				tc.lb.Seed("RegionOne", "p1", services.Quota{"load_balancer": 1})
				tc.lb.SetUsage("RegionTwo", "p1", services.Quota{"load_balancer": 2})

				violations, err := r.Reconcile(ctx, "p1", "small", []string{"RegionOne", "RegionTwo"})
				require.NoError(t, err)
				require.Len(t, violations, 1)
				require.Equal(t, "RegionTwo", violations[0].Region)
				require.Equal(t, services.LoadBalancer, violations[0].Service)

				require.Zero(t, tc.compute.Sets())
				require.Zero(t, tc.network.Sets())
				require.Zero(t, tc.storage.Sets())
				require.Zero(t, tc.lb.Sets())

				v, _ := tc.lb.Value("RegionOne", "p1", "load_balancer")
				require.Equal(t, int64(1), v)
			},
		},
		{
			name: "size missing from ordering still applies",
			f: func(t *testing.T, tc *testClients, r *Reconciler) {
				violations, err := r.Reconcile(ctx, "p1", "zero", []string{"RegionOne"})
				require.NoError(t, err)
				require.Empty(t, violations)

				v, ok := tc.compute.Value("RegionOne", "p1", "ram")
				require.True(t, ok)
				require.Zero(t, v)
			},
		},
		{
			name: "usage lookup failure is returned",
			f: func(t *testing.T, tc *testClients, r *Reconciler) {
				tc.lb.Fail(fake.OpGetUsage, errors.New("octavia down"))

				_, err := r.Reconcile(ctx, "p1", "small", []string{"RegionOne"})
				require.Error(t, err)
				require.Zero(t, tc.compute.Sets())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestClients()
			tt.f(t, tc, newReconciler(tc))
		})
	}
}

func Test_Reconciler_CurrentSize(t *testing.T) {
	ctx := context.Background()
	tc := newTestClients()
	r := newReconciler(tc)

	size, err := r.CurrentSize(ctx, "p1", "RegionOne")
	require.NoError(t, err)
	require.Equal(t, "", size)

	_, err = r.Reconcile(ctx, "p1", "medium", []string{"RegionOne"})
	require.NoError(t, err)

	size, err = r.CurrentSize(ctx, "p1", "RegionOne")
	require.NoError(t, err)
	require.Equal(t, "medium", size)
}

func Test_Reconciler_StepDistance(t *testing.T) {
	r := newReconciler(newTestClients())

	d, ok := r.StepDistance("small", "large")
	require.True(t, ok)
	require.Equal(t, 2, d)

	d, ok = r.StepDistance("large", "medium")
	require.True(t, ok)
	require.Equal(t, 1, d)

	_, ok = r.StepDistance("small", "zero")
	require.False(t, ok)
}
