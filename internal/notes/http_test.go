package notes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/technotes/internal/logging"
	"github.com/yourusername/technotes/internal/notes"
	"github.com/yourusername/technotes/internal/storage"
	"github.com/yourusername/technotes/internal/users"
	"github.com/yourusername/technotes/internal/web"
)

type httpFixture struct {
	router *gin.Engine
	repo   notes.Repository
	alice  *users.User
}

func newHTTPFixture(t *testing.T) *httpFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := storage.NewMemory()
	alice := &users.User{Username: "alice", Roles: users.DefaultRoles(), Active: true}
	require.NoError(t, mem.Users().Create(context.Background(), alice))

	logger := logging.NewWithWriter(&bytes.Buffer{}, "error")
	router := gin.New()
	router.Use(web.ErrorHandler(logger, logging.NewEventLog(t.TempDir(), logger), false))
	notes.NewHandler(notes.NewService(mem.Notes(), mem.Users())).Register(router.Group("/notes"))

	return &httpFixture{router: router, repo: mem.Notes(), alice: alice}
}

func (f *httpFixture) do(method, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/notes", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestNotesHTTPLifecycle(t *testing.T) {
	f := newHTTPFixture(t)

	rec := f.do(http.MethodGet, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"code":"NOT_FOUND","message":"No notes found"}`, rec.Body.String())

	rec = f.do(http.MethodPost, fmt.Sprintf(`{"user":"%s","title":"Printer","text":"jammed"}`, f.alice.ID))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"message":"New note created"}`, rec.Body.String())

	rec = f.do(http.MethodPost, fmt.Sprintf(`{"user":"%s","title":"PRINTER","text":"again"}`, f.alice.ID))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"code":"CONFLICT","message":"Duplicate note title"}`, rec.Body.String())

	rec = f.do(http.MethodPost, `{"user":"nobody","title":"Router","text":"blinking"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"code":"NOT_FOUND","message":"User not found"}`, rec.Body.String())

	rec = f.do(http.MethodGet, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []notes.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "alice", list[0].Username)
	assert.Equal(t, notes.FirstTicket, list[0].Ticket)
	id := list[0].ID

	rec = f.do(http.MethodPatch, fmt.Sprintf(`{"id":"%s","user":"%s","title":"Printer","text":"fixed"}`, id, f.alice.ID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"code":"INVALID_INPUT","message":"All fields are required"}`, rec.Body.String())

	rec = f.do(http.MethodPatch, fmt.Sprintf(`{"id":"%s","user":"%s","title":"Printer","text":"fixed","completed":true}`, id, f.alice.ID))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"'Printer' updated"}`, rec.Body.String())

	rec = f.do(http.MethodPatch, fmt.Sprintf(`{"id":"missing","user":"%s","title":"x","text":"y","completed":false}`, f.alice.ID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"code":"NOT_FOUND","message":"Note not found"}`, rec.Body.String())

	rec = f.do(http.MethodDelete, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"code":"INVALID_INPUT","message":"Note ID required"}`, rec.Body.String())

	rec = f.do(http.MethodDelete, fmt.Sprintf(`{"id":"%s"}`, id))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`"Note 'Printer' with ID %s deleted"`, id), rec.Body.String())

	rec = f.do(http.MethodDelete, fmt.Sprintf(`{"id":"%s"}`, id))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"code":"NOT_FOUND","message":"Note not found"}`, rec.Body.String())
}
