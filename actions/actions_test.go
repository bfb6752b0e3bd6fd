package actions

import (
	"testing"

	"github.com/adjutant-go/adjutant/action"
	"github.com/adjutant-go/adjutant/registry"
	"github.com/stretchr/testify/require"
)

func Test_Register(t *testing.T) {
	r := registry.New()
	require.NoError(t, Register(r))

	require.Equal(t, []action.Kind{
		"mailing_list_subscribe",
		"new_default_network",
		"new_project_default_network",
		"new_project_with_user",
		"new_user",
		"reset_user_password",
		"set_project_quota",
		"update_project_quotas",
	}, r.Kinds())

	// Registering twice is rejected.
	require.Error(t, Register(r))
}
