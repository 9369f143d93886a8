package middlewarectx_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/stablecoin-gateway/internal/http/middlewarectx"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/models"
)

type TokenValidatorMock struct {
	mock.Mock
}

func (m *TokenValidatorMock) ValidateToken(ctx context.Context, token string) (*models.User, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func TestJWTMiddleware(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name        string
		authHeader  string
		setupMocks  func(v *TokenValidatorMock)
		wantStatus  int
		wantUserUID string
	}{
		{
			name:       "валидный токен",
			authHeader: "Bearer good-token",
			setupMocks: func(v *TokenValidatorMock) {
				v.On("ValidateToken", mock.Anything, "good-token").
					Return(&models.User{Username: "testuser", UID: "uid-1"}, nil).Once()
			},
			wantStatus:  http.StatusOK,
			wantUserUID: "uid-1",
		},
		{
			name:       "отсутствует заголовок",
			authHeader: "",
			setupMocks: func(_ *TokenValidatorMock) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "невалидный токен",
			authHeader: "Bearer bad-token",
			setupMocks: func(v *TokenValidatorMock) {
				v.On("ValidateToken", mock.Anything, "bad-token").
					Return(nil, errors.New("invalid token")).Once()
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := new(TokenValidatorMock)
			tt.setupMocks(validator)

			var gotUID string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUID, _ = r.Context().Value(middlewarectx.UserUID).(string)
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()

			middlewarectx.JWTMiddleware(validator, log)(next).ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantUserUID != "" {
				assert.Equal(t, tt.wantUserUID, gotUID)
			}
			validator.AssertExpectations(t)
		})
	}
}
