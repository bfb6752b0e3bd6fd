package resources

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/adjutant-go/adjutant/action"
	"github.com/adjutant-go/adjutant/core"
	"github.com/adjutant-go/adjutant/identity"
	"github.com/adjutant-go/adjutant/quota"
)

const (
	KindSetProjectQuota     = action.Kind("set_project_quota")
	KindUpdateProjectQuotas = action.Kind("update_project_quotas")
)

type QuotaRegionSettings struct {
	QuotaSize string `json:"quota_size" yaml:"quota_size"`
}

type SetQuotaSettings struct {
	Regions map[string]QuotaRegionSettings `json:"regions" yaml:"regions"`
}

var DefaultSetQuotaSettings = SetQuotaSettings{
	Regions: map[string]QuotaRegionSettings{
		"RegionOne": {QuotaSize: "small"},
	},
}

type SetQuotaInput struct {
	// ProjectID defaults to the project an earlier action created.
	ProjectID string `json:"project_id,omitempty"`
}

type QuotaCache struct {
	Applied bool `json:"applied,omitempty"`
}

func NewSetProjectQuotaDefinition() action.Definition {
	return action.Define(KindSetProjectQuota, DefaultSetQuotaSettings,
		func(d action.Deps, s SetQuotaSettings, in SetQuotaInput) action.Action {
			return &setProjectQuota{deps: d, settings: s, input: in}
		},
		nil,
	)
}

// setProjectQuota applies each configured region's default size to a project.
type setProjectQuota struct {
	deps     action.Deps
	settings SetQuotaSettings
	input    SetQuotaInput
}

func (a *setProjectQuota) PreApprove(ctx context.Context, s *action.State) (action.Result, error) {
	for _, region := range sortedRegionKeys(a.settings.Regions) {
		size := a.settings.Regions[region].QuotaSize
		if _, ok := a.deps.Quotas.Config().Sizes[size]; !ok {
			return action.Invalid(fmt.Sprintf("Region %q uses unknown quota size %q.", region, size)), nil
		}
	}

	return action.Valid(), nil
}

func (a *setProjectQuota) PostApprove(ctx context.Context, s *action.State) (action.Result, error) {
	projectID := a.input.ProjectID
	if projectID == "" {
		projectID = s.Scratch(core.ScratchProjectID)
	}
	if projectID == "" {
		return action.Invalid("No project id available to set the quota for."), nil
	}

	cache, err := action.LoadCache[QuotaCache](s)
	if err != nil {
		return action.Result{}, err
	}
	if cache.Applied {
		return action.Valid(), nil
	}

	plan := quota.Plan{}
	for _, region := range sortedRegionKeys(a.settings.Regions) {
		p, err := a.deps.Quotas.Plan(a.settings.Regions[region].QuotaSize, []string{region})
		if err != nil {
			return action.Result{}, err
		}
		plan[region] = p[region]
	}

	violations, err := a.deps.Quotas.CheckUsage(ctx, projectID, plan)
	if err != nil {
		return action.Result{}, err
	}
	if len(violations) > 0 {
		return action.Invalid(violationNotes(violations)...), nil
	}

	if err := a.deps.Quotas.Apply(ctx, projectID, plan); err != nil {
		return action.Result{}, err
	}

	if err := action.StoreCache(ctx, s, QuotaCache{Applied: true}); err != nil {
		return action.Result{}, err
	}

	return action.Valid(), nil
}

func (a *setProjectQuota) Submit(ctx context.Context, s *action.State, fields map[string]string) (action.Result, error) {
	return action.Valid(), nil
}

type UpdateQuotaSettings struct {
	// DefaultRegions are used when the input names none.
	DefaultRegions []string `json:"default_regions" yaml:"default_regions"`
}

var DefaultUpdateQuotaSettings = UpdateQuotaSettings{
	DefaultRegions: []string{"RegionOne"},
}

type UpdateQuotaInput struct {
	ProjectID string   `json:"project_id" validate:"required"`
	Size      string   `json:"size" validate:"required"`
	Regions   []string `json:"regions,omitempty"`
}

func NewUpdateProjectQuotasDefinition() action.Definition {
	return action.Define(KindUpdateProjectQuotas, DefaultUpdateQuotaSettings,
		func(d action.Deps, s UpdateQuotaSettings, in UpdateQuotaInput) action.Action {
			return &updateProjectQuotas{deps: d, settings: s, input: in}
		},
		nil,
	)
}

// updateProjectQuotas moves a project to a named size in one or more regions.
type updateProjectQuotas struct {
	deps     action.Deps
	settings UpdateQuotaSettings
	input    UpdateQuotaInput
}

func (a *updateProjectQuotas) regions() []string {
	if len(a.input.Regions) > 0 {
		return a.input.Regions
	}

	return a.settings.DefaultRegions
}

func (a *updateProjectQuotas) PreApprove(ctx context.Context, s *action.State) (action.Result, error) {
	res, _, err := a.check(ctx)
	if err != nil || !res.Valid {
		return res, err
	}

	vote, err := a.smallStep(ctx)
	if err != nil {
		return action.Result{}, err
	}

	return res.WithAutoApprove(vote), nil
}

func (a *updateProjectQuotas) PostApprove(ctx context.Context, s *action.State) (action.Result, error) {
	cache, err := action.LoadCache[QuotaCache](s)
	if err != nil {
		return action.Result{}, err
	}
	if cache.Applied {
		return action.Valid(), nil
	}

	res, plan, err := a.check(ctx)
	if err != nil || !res.Valid {
		return res, err
	}

	if err := a.deps.Quotas.Apply(ctx, a.input.ProjectID, plan); err != nil {
		return action.Result{}, err
	}

	if err := action.StoreCache(ctx, s, QuotaCache{Applied: true}); err != nil {
		return action.Result{}, err
	}

	return action.Valid(), nil
}

func (a *updateProjectQuotas) Submit(ctx context.Context, s *action.State, fields map[string]string) (action.Result, error) {
	return action.Valid(), nil
}

// check resolves the plan and rejects it when the project is unknown or usage
// in any region exceeds the new limits.
func (a *updateProjectQuotas) check(ctx context.Context) (action.Result, quota.Plan, error) {
	if _, err := a.deps.Identity.GetProject(ctx, a.input.ProjectID); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return action.Invalid(fmt.Sprintf("Project %q does not exist.", a.input.ProjectID)), nil, nil
		}
		return action.Result{}, nil, err
	}

	plan, err := a.deps.Quotas.Plan(a.input.Size, a.regions())
	if err != nil {
		if errors.Is(err, quota.ErrUnknownSize) {
			return action.Invalid(fmt.Sprintf("Quota size %q does not exist.", a.input.Size)), nil, nil
		}
		return action.Result{}, nil, err
	}

	violations, err := a.deps.Quotas.CheckUsage(ctx, a.input.ProjectID, plan)
	if err != nil {
		return action.Result{}, nil, err
	}
	if len(violations) > 0 {
		return action.Invalid(violationNotes(violations)...), nil, nil
	}

	return action.Valid(), plan, nil
}

// smallStep is true when every region moves at most one size along the
// configured ordering. Regions whose current quota matches no size never
// qualify.
func (a *updateProjectQuotas) smallStep(ctx context.Context) (bool, error) {
	for _, region := range a.regions() {
		current, err := a.deps.Quotas.CurrentSize(ctx, a.input.ProjectID, region)
		if err != nil {
			return false, err
		}
		if current == "" {
			return false, nil
		}

		d, ok := a.deps.Quotas.StepDistance(current, a.input.Size)
		if !ok || d > 1 {
			return false, nil
		}
	}

	return true, nil
}

func violationNotes(vs []quota.Violation) []string {
	notes := make([]string, 0, len(vs))
	for _, v := range vs {
		notes = append(notes, fmt.Sprintf("Quota too low for current usage: %s.", v))
	}

	return notes
}

func sortedRegionKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
