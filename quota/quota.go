// Package quota resolves named quota sizes to per-service limits and applies
// them across regions. A batch is rejected as a whole when any metered usage
// already exceeds its target, so no region is ever left half-updated.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/adjutant-go/adjutant/internal/metrickeys"
	"github.com/adjutant-go/adjutant/log"
	"github.com/adjutant-go/adjutant/metrics"
	"github.com/adjutant-go/adjutant/services"
)

var ErrUnknownSize = errors.New("unknown quota size")

// Plan holds the resolved limits per region and service.
type Plan map[string]map[services.Service]services.Quota

// Violation is one metered resource whose usage exceeds its target.
type Violation struct {
	Region   string
	Service  services.Service
	Resource string
	Usage    int64
	Limit    int64
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s %s: usage %d exceeds limit %d", v.Region, v.Service, v.Resource, v.Usage, v.Limit)
}

type Reconciler struct {
	cfg     *Config
	clients *services.Clients
	logger  *slog.Logger
	mc      metrics.Client
}

func NewReconciler(cfg *Config, clients *services.Clients, logger *slog.Logger, mc metrics.Client) *Reconciler {
	return &Reconciler{
		cfg:     cfg,
		clients: clients,
		logger:  logger,
		mc:      mc,
	}
}

func (r *Reconciler) Config() *Config {
	return r.cfg
}

// Plan resolves size for every region. Sizes missing from SizesAscending are
// resolved like any other.
func (r *Reconciler) Plan(size string, regions []string) (Plan, error) {
	table, ok := r.cfg.Sizes[size]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSize, size)
	}

	plan := Plan{}
	for _, region := range regions {
		perService := map[services.Service]services.Quota{}
		for _, svc := range r.cfg.ServicesFor(region) {
			q := table[svc].Clone()
			for res, limit := range r.cfg.RegionOverrides[region][svc] {
				q[res] = limit
			}
			perService[svc] = q
		}
		plan[region] = perService
	}

	return plan, nil
}

// CheckUsage compares current usage of every metered service against the plan.
// Services whose client does not report usage are not checked.
func (r *Reconciler) CheckUsage(ctx context.Context, projectID string, plan Plan) ([]Violation, error) {
	var violations []Violation

	for _, region := range sortedRegions(plan) {
		for svc, target := range plan[region] {
			qc, err := r.clients.Quota(svc)
			if err != nil {
				return nil, err
			}

			ur, ok := qc.(services.UsageReporter)
			if !ok {
				continue
			}

			usage, err := ur.GetUsage(ctx, region, projectID)
			if err != nil {
				return nil, fmt.Errorf("getting %s usage in %s: %w", svc, region, err)
			}

			for res, limit := range target {
				if used, ok := usage[res]; ok && used > limit {
					violations = append(violations, Violation{
						Region:   region,
						Service:  svc,
						Resource: res,
						Usage:    used,
						Limit:    limit,
					})
				}
			}
		}
	}

	sort.Slice(violations, func(i, j int) bool {
		return violations[i].String() < violations[j].String()
	})

	return violations, nil
}

// Apply writes every planned quota. Callers check usage first.
func (r *Reconciler) Apply(ctx context.Context, projectID string, plan Plan) error {
	for _, region := range sortedRegions(plan) {
		for _, svc := range sortedServices(plan[region]) {
			qc, err := r.clients.Quota(svc)
			if err != nil {
				return err
			}

			if err := qc.SetQuota(ctx, region, projectID, plan[region][svc]); err != nil {
				return fmt.Errorf("setting %s quota in %s: %w", svc, region, err)
			}

			r.mc.Counter(metrickeys.QuotaApplied, metrics.Tags{metrickeys.Service: string(svc)}, 1)
			r.logger.Debug("Applied quota",
				log.ProjectKey, projectID,
				log.RegionKey, region,
				log.ServiceKey, string(svc))
		}
	}

	return nil
}

// Reconcile checks usage in every region before touching any quota and only
// applies the plan when nothing is violated.
func (r *Reconciler) Reconcile(ctx context.Context, projectID, size string, regions []string) ([]Violation, error) {
	plan, err := r.Plan(size, regions)
	if err != nil {
		return nil, err
	}

	violations, err := r.CheckUsage(ctx, projectID, plan)
	if err != nil {
		return nil, err
	}

	if len(violations) > 0 {
		r.mc.Counter(metrickeys.QuotaRejected, metrics.Tags{}, 1)
		r.logger.Info("Quota change rejected by usage",
			log.ProjectKey, projectID,
			"size", size,
			"violations", len(violations))

		return violations, nil
	}

	return nil, r.Apply(ctx, projectID, plan)
}

// CurrentSize returns the configured size matching the project's quota in the
// region, or "" when the quota matches none.
func (r *Reconciler) CurrentSize(ctx context.Context, projectID, region string) (string, error) {
	current := map[services.Service]services.Quota{}
	for _, svc := range r.cfg.ServicesFor(region) {
		qc, err := r.clients.Quota(svc)
		if err != nil {
			return "", err
		}

		q, err := qc.GetQuota(ctx, region, projectID)
		if err != nil {
			return "", fmt.Errorf("getting %s quota in %s: %w", svc, region, err)
		}
		current[svc] = q
	}

	for _, size := range r.cfg.SizeNames() {
		plan, err := r.Plan(size, []string{region})
		if err != nil {
			return "", err
		}

		if matches(plan[region], current) {
			return size, nil
		}
	}

	return "", nil
}

// StepDistance returns how many positions apart two sizes are in
// SizesAscending. ok is false if either size is not listed.
func (r *Reconciler) StepDistance(from, to string) (distance int, ok bool) {
	fi, ti := -1, -1
	for i, s := range r.cfg.SizesAscending {
		if s == from {
			fi = i
		}
		if s == to {
			ti = i
		}
	}

	if fi < 0 || ti < 0 {
		return 0, false
	}

	d := ti - fi
	if d < 0 {
		d = -d
	}

	return d, true
}

func matches(want, have map[services.Service]services.Quota) bool {
	for svc, q := range want {
		for res, limit := range q {
			if v, ok := have[svc][res]; !ok || v != limit {
				return false
			}
		}
	}

	return true
}

func sortedRegions(p Plan) []string {
	regions := make([]string, 0, len(p))
	for r := range p {
		regions = append(regions, r)
	}
	sort.Strings(regions)

	return regions
}

func sortedServices(m map[services.Service]services.Quota) []services.Service {
	svcs := make([]services.Service, 0, len(m))
	for s := range m {
		svcs = append(svcs, s)
	}
	sort.Slice(svcs, func(i, j int) bool { return svcs[i] < svcs[j] })

	return svcs
}
