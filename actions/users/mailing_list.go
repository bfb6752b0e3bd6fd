package users

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/adjutant-go/adjutant/action"
	"github.com/adjutant-go/adjutant/log"
	"github.com/adjutant-go/adjutant/services"
)

const KindMailingListSubscribe = action.Kind("mailing_list_subscribe")

type MailingListSettings struct {
	List string `json:"list" yaml:"list"`
}

type MailingListInput struct {
	// Email defaults to the requester's username.
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

type mailingListCache struct {
	Subscribed bool `json:"subscribed,omitempty"`
}

func MailingListSubscribeDefinition() action.Definition {
	return action.Define(KindMailingListSubscribe, MailingListSettings{},
		func(d action.Deps, s MailingListSettings, in MailingListInput) action.Action {
			return &mailingListSubscribe{deps: d, settings: s, input: in}
		},
		nil,
	)
}

// mailingListSubscribe adds the user to the configured list unless they are
// already a member.
type mailingListSubscribe struct {
	deps     action.Deps
	settings MailingListSettings
	input    MailingListInput
}

func (a *mailingListSubscribe) address(s *action.State) string {
	return orDefault(a.input.Email, s.Requester().Username)
}

func (a *mailingListSubscribe) client() (services.MailingListClient, error) {
	if a.deps.Services == nil || a.deps.Services.MailingList == nil {
		return nil, errors.New("no mailing list client configured")
	}

	return a.deps.Services.MailingList, nil
}

func (a *mailingListSubscribe) PreApprove(ctx context.Context, s *action.State) (action.Result, error) {
	if a.settings.List == "" {
		return action.Invalid("No mailing list is configured."), nil
	}

	if a.address(s) == "" {
		return action.Invalid("No address to subscribe."), nil
	}

	return action.Valid(), nil
}

func (a *mailingListSubscribe) PostApprove(ctx context.Context, s *action.State) (action.Result, error) {
	cache, err := action.LoadCache[mailingListCache](s)
	if err != nil || cache.Subscribed {
		return action.Valid(), err
	}

	ml, err := a.client()
	if err != nil {
		return action.Result{}, err
	}

	address := a.address(s)

	members, err := ml.Members(ctx, a.settings.List)
	if err != nil {
		return action.Result{}, fmt.Errorf("listing members of %s: %w", a.settings.List, err)
	}

	if slices.ContainsFunc(members, func(m string) bool { return strings.EqualFold(m, address) }) {
		s.Logger().Info("Already subscribed", log.ResourceKey, a.settings.List)
	} else {
		if err := ml.Subscribe(ctx, a.settings.List, address); err != nil {
			return action.Result{}, fmt.Errorf("subscribing to %s: %w", a.settings.List, err)
		}
		s.Logger().Info("Subscribed", log.ResourceKey, a.settings.List)
	}

	if err := action.StoreCache(ctx, s, mailingListCache{Subscribed: true}); err != nil {
		return action.Result{}, err
	}

	return action.Valid(), nil
}

func (a *mailingListSubscribe) Submit(ctx context.Context, s *action.State, fields map[string]string) (action.Result, error) {
	return action.Valid(), nil
}
