package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/lostfound/internal/common"
	"github.com/dmitrijs2005/lostfound/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authed(req *http.Request) *http.Request {
	req.Header.Set(common.AccessTokenHeaderName, validToken)
	return req
}

func TestCreateItem_MultipartWithImage(t *testing.T) {
	env := newTestEnv(t, defaultOptions())

	body, ct := multipartBody(t, map[string]string{
		"type":            "Lost",
		"title":           "Wallet",
		"description":     "Brown",
		"location":        "Park",
		"dateLostOrFound": "2025-05-01",
	}, "image", pngBytes())
	req := authed(httptest.NewRequest(http.MethodPost, "/items", body))
	req.Header.Set("Content-Type", ct)
	rec := env.do(req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	got := env.items.created
	require.NotNil(t, got)
	assert.Equal(t, models.ItemLost, *got.Type)
	assert.Equal(t, "Wallet", *got.Title)
	assert.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), *got.DateLostOrFound)
	require.NotNil(t, got.Image)
	assert.Equal(t, "image/png", got.Image.ContentType)
	assert.Equal(t, pngBytes(), got.Image.Data)

	var item models.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, "acc-1", item.OwnerID)
}

func TestCreateItem_RequiresToken(t *testing.T) {
	env := newTestEnv(t, defaultOptions())

	rec := env.do(httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, env.items.created)
}

func TestCreateItem_RejectsUploads(t *testing.T) {
	tests := []struct {
		name    string
		file    []byte
		message string
	}{
		{"not an image", []byte("%PDF-1.4 plain document text"), "Only image files are allowed"},
		{"too large", append(pngBytes(), bytes.Repeat([]byte{1}, 2<<10)...), "File is too large (max 1024 bytes)"},
		{"empty", []byte{}, "Uploaded file is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, defaultOptions())

			body, ct := multipartBody(t, map[string]string{"title": "x"}, "image", tt.file)
			req := authed(httptest.NewRequest(http.MethodPost, "/items", body))
			req.Header.Set("Content-Type", ct)
			rec := env.do(req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.message, decodeError(t, rec).Message)
			assert.Nil(t, env.items.created, "nothing reaches the service")
		})
	}
}

func TestCreateItem_BadDate(t *testing.T) {
	env := newTestEnv(t, defaultOptions())

	req := authed(httptest.NewRequest(http.MethodPost, "/items",
		strings.NewReader(`{"type":"found","dateLostOrFound":"yesterday"}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please add a valid date the item was lost or found", decodeError(t, rec).Message)
}

func TestUpdateItem_PartialURLEncoded(t *testing.T) {
	env := newTestEnv(t, defaultOptions())

	req := authed(httptest.NewRequest(http.MethodPut, "/items/item-9",
		strings.NewReader("title=Black+wallet&dateLostOrFound=2025-05-01T10:00:00Z")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := env.items.updated
	require.NotNil(t, got)
	assert.Equal(t, "Black wallet", *got.Title)
	assert.Nil(t, got.Type)
	assert.Nil(t, got.Description)
	assert.Nil(t, got.Image)
	assert.Equal(t, time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC), *got.DateLostOrFound)
}

func TestItemErrors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		err    error
		status int
	}{
		{"update forbidden", http.MethodPut, "/items/item-1", common.ErrForbidden, http.StatusForbidden},
		{"delete forbidden", http.MethodDelete, "/items/item-1", common.ErrForbidden, http.StatusForbidden},
		{"get missing", http.MethodGet, "/items/nope", common.ErrorNotFound, http.StatusNotFound},
		{"update missing", http.MethodPut, "/items/item-1", common.ErrorNotFound, http.StatusNotFound},
		{"storage rejects", http.MethodPut, "/items/item-1", common.NewValidationError("title", "Title cannot be more than 100 characters"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, defaultOptions())
			env.items.err = tt.err

			rec := env.do(authed(httptest.NewRequest(tt.method, tt.path, strings.NewReader(""))))

			require.Equal(t, tt.status, rec.Code)
			assert.False(t, decodeError(t, rec).Success)
		})
	}
}

func TestDeleteItem(t *testing.T) {
	env := newTestEnv(t, defaultOptions())

	rec := env.do(authed(httptest.NewRequest(http.MethodDelete, "/items/item-7", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "item-7", env.items.deletedID)
	assert.JSONEq(t, `{"success":true,"message":"Item removed"}`, rec.Body.String())
}

func TestListItems_PublicWithFilter(t *testing.T) {
	env := newTestEnv(t, defaultOptions())

	rec := env.do(httptest.NewRequest(http.MethodGet, "/items?type=found&q=wallet&limit=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ItemFilter{Type: models.ItemFound, Query: "wallet", Limit: 5}, env.items.filter)

	var items []models.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Len(t, items, 2)

	env.do(httptest.NewRequest(http.MethodGet, "/items?limit=abc", nil))
	assert.Zero(t, env.items.filter.Limit)
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t, defaultOptions())

	body, ct := multipartBody(t, map[string]string{
		"displayName": " Alice ",
		"city":        "Riga",
	}, "photo", pngBytes())
	req := authed(httptest.NewRequest(http.MethodPut, "/users/profile", body))
	req.Header.Set("Content-Type", ct)
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := env.profiles.got
	assert.Equal(t, "Alice", got.DisplayName)
	assert.Equal(t, models.Address{City: "Riga"}, got.Address)
	require.NotNil(t, got.Photo)
	assert.NotContains(t, rec.Body.String(), "argon2id")
}

func TestUpdateProfile_ServiceFailure(t *testing.T) {
	env := newTestEnv(t, defaultOptions())
	env.profiles.err = common.ErrorNotFound

	req := authed(httptest.NewRequest(http.MethodPut, "/users/profile", strings.NewReader(`{"displayName":"x"}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2025-05-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), d)

	d, err = parseDate(" 2025-05-01T12:30:00+02:00 ")
	require.NoError(t, err)
	assert.True(t, d.Equal(time.Date(2025, 5, 1, 10, 30, 0, 0, time.UTC)))

	_, err = parseDate("01/05/2025")
	assert.Error(t, err)
}
