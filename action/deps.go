package action

import (
	"github.com/adjutant-go/adjutant/identity"
	"github.com/adjutant-go/adjutant/quota"
	"github.com/adjutant-go/adjutant/services"
	"github.com/benbjohnson/clock"
)

// Deps are the collaborators handed to every action constructor.
type Deps struct {
	Identity identity.Manager
	Services *services.Clients
	Quotas   *quota.Reconciler
	Clock    clock.Clock
}
