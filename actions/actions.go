// Package actions lists the built-in action kinds.
package actions

import (
	"github.com/adjutant-go/adjutant/action"
	"github.com/adjutant-go/adjutant/actions/resources"
	"github.com/adjutant-go/adjutant/actions/users"
	"github.com/adjutant-go/adjutant/registry"
)

func Definitions() []action.Definition {
	return []action.Definition{
		resources.NewDefaultNetworkDefinition(),
		resources.NewProjectDefaultNetworkDefinition(),
		resources.NewSetProjectQuotaDefinition(),
		resources.NewUpdateProjectQuotasDefinition(),
		users.NewUserDefinition(),
		users.NewProjectWithUserDefinition(),
		users.ResetUserPasswordDefinition(),
		users.MailingListSubscribeDefinition(),
	}
}

// Register adds every built-in kind to r.
func Register(r *registry.Registry) error {
	for _, def := range Definitions() {
		if err := r.Register(def); err != nil {
			return err
		}
	}

	return nil
}
