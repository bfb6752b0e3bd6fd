package resources

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/adjutant-go/adjutant/action"
	"github.com/adjutant-go/adjutant/core"
	"github.com/adjutant-go/adjutant/identity"
	idfake "github.com/adjutant-go/adjutant/identity/fake"
	"github.com/adjutant-go/adjutant/internal/metrics"
	"github.com/adjutant-go/adjutant/quota"
	"github.com/adjutant-go/adjutant/services"
	"github.com/adjutant-go/adjutant/services/fake"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

type env struct {
	ids     *idfake.Manager
	network *fake.Network
	compute *fake.Quota
	netq    *fake.Quota
	storage *fake.Quota
	lb      *fake.MeteredQuota
	deps    action.Deps
}

func quotaConfig() *quota.Config {
	return &quota.Config{
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
		},
		SizesAscending: []string{"small", "medium", "large"},
		Services: map[string][]services.Service{
			quota.AllRegions: {services.Compute, services.Network, services.BlockStorage, services.LoadBalancer},
			"RegionThree":    {services.BlockStorage},
		},
		RegionOverrides: map[string]map[services.Service]services.Quota{
			"RegionThree": {
				services.BlockStorage: {"gigabytes": 50001, "snapshots": 600, "volumes": 200},
			},
		},
	}
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		ids:     idfake.NewManager(),
		network: fake.NewNetwork(),
		compute: fake.NewQuota(services.Compute),
		netq:    fake.NewQuota(services.Network),
		storage: fake.NewQuota(services.BlockStorage),
		lb:      fake.NewMeteredQuota(services.LoadBalancer),
	}

	clients := services.NewClients(e.network, e.compute, e.netq, e.storage, e.lb)
	e.deps = action.Deps{
		Identity: e.ids,
		Services: clients,
		Quotas:   quota.NewReconciler(quotaConfig(), clients, slog.Default(), metrics.NewNoopMetricsClient()),
		Clock:    clock.NewMock(),
	}

	e.ids.AddProject(identity.Project{ID: "test_project_id", Name: "test_project"})

	return e
}

// build builds the action through its definition and returns it with a state
// attached to a fresh task.
func (e *env) build(t *testing.T, def action.Definition, input any) (action.Action, *core.Task, *action.State) {
	t.Helper()

	raw, err := json.Marshal(input)
	require.NoError(t, err)
	require.NoError(t, def.Validate(raw))

	settings, err := def.Configure(nil)
	require.NoError(t, err)

	a, err := def.Build(e.deps, settings, raw)
	require.NoError(t, err)

	task := core.NewTask("t1", "create_project", core.Identity{Roles: []string{core.RoleAdmin}}, time.Now())
	rec := core.NewActionRecord(def.Kind(), 1, raw)
	task.Actions = append(task.Actions, rec)

	return a, task, action.NewState(task, rec, slog.Default(), nil)
}

func cacheOf(t *testing.T, s *action.State) NetworkCache {
	t.Helper()

	c, err := action.LoadCache[NetworkCache](s)
	require.NoError(t, err)
	return c
}
