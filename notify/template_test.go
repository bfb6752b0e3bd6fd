package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Deliver(ctx context.Context, to []string, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

var templates = map[string]Template{
	TemplateToken: {
		Subject: "Your {{.TaskType}} request",
		Body:    "Finish at https://example.com/token/{{.token}}",
	},
}

func Test_TemplateDispatcher_Send(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		setup   func(s *mockSender)
		tmpl    string
		wantErr error
	}{
		{
			name: "renders and delivers",
			setup: func(s *mockSender) {
				s.On("Deliver", []string{"admin@example.com"}, "Your invite_user request", "Finish at https://example.com/token/abc").
					Return(nil).Once()
			},
			tmpl: TemplateToken,
		},
		{
			name: "retries failed delivery",
			setup: func(s *mockSender) {
				s.On("Deliver", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()
				s.On("Deliver", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
			},
			tmpl: TemplateToken,
		},
		{
			name:    "unknown template",
			setup:   func(s *mockSender) {},
			tmpl:    TemplateCompleted,
			wantErr: ErrUnknownTemplate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &mockSender{}
			tt.setup(s)

			d, err := NewTemplateDispatcher(templates, s,
				WithDefaultRecipients("admin@example.com"),
				WithRetries(3, time.Millisecond))
			require.NoError(t, err)

			err = d.Send(ctx, tt.tmpl, Message{
				TaskID:   "t1",
				TaskType: "invite_user",
				Data:     map[string]any{"token": "abc"},
			})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			s.AssertExpectations(t)
		})
	}
}

func Test_TemplateDispatcher_GivesUp(t *testing.T) {
	s := &mockSender{}
	s.On("Deliver", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down")).Times(2)

	d, err := NewTemplateDispatcher(templates, s, WithRetries(2, time.Millisecond))
	require.NoError(t, err)

	err = d.Send(context.Background(), TemplateToken, Message{TaskID: "t1"})
	require.Error(t, err)
	s.AssertExpectations(t)
}

func Test_NewTemplateDispatcher_InvalidTemplate(t *testing.T) {
	_, err := NewTemplateDispatcher(map[string]Template{
		"broken": {Subject: "{{.TaskID", Body: ""},
	}, &mockSender{})
	require.Error(t, err)
}
