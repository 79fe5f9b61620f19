package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"taskmesh/internal/config"
	"taskmesh/internal/conductor"
	"taskmesh/internal/model"
	"taskmesh/internal/persistence/databases"
	"taskmesh/internal/router"
)

type fakeDispatcher struct {
	text string
	err  error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, req router.Request) (router.Response, error) {
	if f.err != nil {
		return router.Response{}, f.err
	}
	return router.Response{Text: f.text, ModelUsed: "fake", SourceUsed: "fast"}, nil
}

type fakeBoard struct{}

func (fakeBoard) Save(ctx context.Context, d model.BoardDecision) error { return nil }
func (fakeBoard) Get(ctx context.Context, id string) (model.BoardDecision, bool, error) {
	return model.BoardDecision{}, false, nil
}
func (fakeBoard) Close() {}

func newTestServer() *Server {
	dispatcher := &fakeDispatcher{text: "hello there"}
	understander := conductor.NewUnderstander(config.ConductorConfig{}, dispatcher)
	planner := conductor.NewPlanner(dispatcher)
	cond := conductor.New(config.ConductorConfig{}, understander, planner, dispatcher, nil, nil, nil, nil)
	return NewServer(cond, nil, fakeBoard{}, "secret", nil)
}

func TestHandleRunGreeting(t *testing.T) {
	srv := newTestServer()

	body, err := json.Marshal(runRequestBody{Goal: "hello"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "success", resp["status"])
}

func TestHandleBoardConsultRequiresAPIKey(t *testing.T) {
	srv := newTestServer()

	body, _ := json.Marshal(boardConsultRequest{Question: "what happened?"})
	req := httptest.NewRequest(http.MethodPost, "/api/board/consult", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleBoardConsultWithAPIKey(t *testing.T) {
	srv := newTestServer()

	body, _ := json.Marshal(boardConsultRequest{Question: "what happened?"})
	req := httptest.NewRequest(http.MethodPost, "/api/board/consult", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

var _ databases.BoardStore = fakeBoard{}
