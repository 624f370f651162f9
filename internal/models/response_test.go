package models

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternalErrorDetailExposure(t *testing.T) {
	app := fiber.New()
	app.Get("/boom", func(c *fiber.Ctx) error {
		return RespondWithError(c, NewInternalError(errors.New("pq: connection refused")))
	})

	prev := ExposeInternalDetails
	t.Cleanup(func() { ExposeInternalDetails = prev })

	tests := []struct {
		name   string
		expose bool
	}{
		{"development surfaces the cause", true},
		{"production hides the cause", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ExposeInternalDetails = tt.expose

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil), -1)
			require.NoError(t, err)
			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			var body Response
			require.NoError(t, json.Unmarshal(raw, &body))

			assert.False(t, body.Success)
			if tt.expose {
				assert.Contains(t, body.Details, "pq: connection refused")
			} else {
				assert.Empty(t, body.Details)
			}
		})
	}
}
