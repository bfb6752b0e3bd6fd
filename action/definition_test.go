package action

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type echoInput struct {
	Name    string `json:"name" validate:"required"`
	Contact string `json:"contact,omitempty" validate:"omitempty,email"`
}

type echoRegion struct {
	NetworkName string `json:"network_name"`
	CIDR        string `json:"cidr"`
}

type echoSettings struct {
	Greeting string                `json:"greeting"`
	Loud     bool                  `json:"loud"`
	Regions  map[string]echoRegion `json:"regions"`
}

type echoAction struct {
	settings echoSettings
	input    echoInput
}

func (a *echoAction) PreApprove(ctx context.Context, s *State) (Result, error) {
	return Valid(), nil
}

func (a *echoAction) PostApprove(ctx context.Context, s *State) (Result, error) {
	return Valid(), nil
}

func (a *echoAction) Submit(ctx context.Context, s *State, fields map[string]string) (Result, error) {
	return Valid(), nil
}

func echoDefinition() Definition {
	return Define("echo_action",
		echoSettings{
			Greeting: "hello",
			Loud:     true,
			Regions: map[string]echoRegion{
				"RegionOne": {NetworkName: "default_network", CIDR: "192.168.1.0/24"},
			},
		},
		func(d Deps, s echoSettings, in echoInput) Action {
			return &echoAction{settings: s, input: in}
		},
		func(in *echoInput) ValidationErrors {
			errs := ValidationErrors{}
			if in.Name == "admin" {
				errs.Add("name", "This name is reserved.")
			}
			return errs
		},
	)
}

func Test_Definition_Validate(t *testing.T) {
	def := echoDefinition()

	tests := []struct {
		name  string
		input string
		want  ValidationErrors
	}{
		{
			name:  "valid",
			input: `{"name":"x","contact":"x@example.com"}`,
		},
		{
			name:  "required tag",
			input: `{}`,
			want:  ValidationErrors{"name": {"This field is required."}},
		},
		{
			name:  "email tag",
			input: `{"name":"x","contact":"not-an-address"}`,
			want:  ValidationErrors{"contact": {"Enter a valid email address."}},
		},
		{
			name:  "custom rule",
			input: `{"name":"admin"}`,
			want:  ValidationErrors{"name": {"This name is reserved."}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := def.Validate(json.RawMessage(tt.input))
			if tt.want == nil {
				require.NoError(t, err)
				return
			}

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			require.Equal(t, Kind("echo_action"), verr.Kind)
			require.Equal(t, tt.want, verr.Fields)
		})
	}

	err := def.Validate(json.RawMessage(`{"name":1}`))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, "input")
}

func Test_Definition_Configure(t *testing.T) {
	def := echoDefinition()

	tests := []struct {
		name     string
		override map[string]any
		want     echoSettings
		wantErr  bool
	}{
		{
			name: "defaults",
			want: echoSettings{
				Greeting: "hello",
				Loud:     true,
				Regions: map[string]echoRegion{
					"RegionOne": {NetworkName: "default_network", CIDR: "192.168.1.0/24"},
				},
			},
		},
		{
			name: "override and extend",
			override: map[string]any{
				"greeting": "hi",
				"regions": map[string]any{
					"RegionTwo": map[string]any{"network_name": "other", "cidr": "10.0.0.0/24"},
				},
			},
			want: echoSettings{
				Greeting: "hi",
				Loud:     true,
				Regions: map[string]echoRegion{
					"RegionOne": {NetworkName: "default_network", CIDR: "192.168.1.0/24"},
					"RegionTwo": {NetworkName: "other", CIDR: "10.0.0.0/24"},
				},
			},
		},
		{
			name:     "explicit zero values win",
			override: map[string]any{"greeting": "", "loud": false},
			want: echoSettings{
				Regions: map[string]echoRegion{
					"RegionOne": {NetworkName: "default_network", CIDR: "192.168.1.0/24"},
				},
			},
		},
		{
			name:     "unknown key",
			override: map[string]any{"greting": "hi"},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := def.Configure(tt.override)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func Test_Definition_ConfigureDoesNotShareDefaults(t *testing.T) {
	def := echoDefinition()

	first, err := def.Configure(nil)
	require.NoError(t, err)
	first.(echoSettings).Regions["RegionOne"] = echoRegion{NetworkName: "mutated"}

	second, err := def.Configure(nil)
	require.NoError(t, err)
	require.Equal(t, "default_network", second.(echoSettings).Regions["RegionOne"].NetworkName)
}

func Test_Definition_Build(t *testing.T) {
	def := echoDefinition()

	settings, err := def.Configure(nil)
	require.NoError(t, err)

	a, err := def.Build(Deps{}, settings, json.RawMessage(`{"name":"x"}`))
	require.NoError(t, err)
	require.Equal(t, "x", a.(*echoAction).input.Name)

	_, err = def.Build(Deps{}, "wrong", nil)
	require.Error(t, err)
}
