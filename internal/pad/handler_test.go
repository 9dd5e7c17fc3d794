package pad_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"scratchpad/internal/pad/model"
	"scratchpad/internal/pad/repository"
	"scratchpad/internal/pad/service"
	"scratchpad/router"
	"scratchpad/socket"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.MatchExpectationsInOrder(false)

	mock.ExpectQuery("SELECT id, content, created_at, last_modified FROM pads").
		WillReturnRows(sqlmock.NewRows([]string{"id", "content", "created_at", "last_modified"}))

	store, err := service.NewPadStore(repository.NewPadRepository(db))
	require.NoError(t, err)

	server := httptest.NewServer(router.Setup(store, socket.NewHub(store)))
	t.Cleanup(server.Close)
	return server, mock
}

func doJSON(t *testing.T, method, url string, body []byte, out any) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestGetCreatesUnknownPad(t *testing.T) {
	server, mock := newTestServer(t)
	mock.ExpectExec("INSERT INTO pads").WillReturnResult(sqlmock.NewResult(0, 1))

	var got model.PadResponse
	resp := doJSON(t, http.MethodGet, server.URL+"/pad/brand-new", nil, &got)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "brand-new", got.ID)
	assert.Equal(t, "", got.Content)
	assert.False(t, got.LastModified.IsZero())
}

func TestSavePad(t *testing.T) {
	server, mock := newTestServer(t)
	mock.ExpectExec("INSERT INTO pads").WillReturnResult(sqlmock.NewResult(0, 1))

	var got model.SavePadResponse
	resp := doJSON(t, http.MethodPost, server.URL+"/pad/notes", []byte(`{"content":"hello"}`), &got)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, got.Success)
	assert.Equal(t, "notes", got.ID)
	assert.False(t, got.LastModified.IsZero())
}

func TestSaveRejectsNonStringContent(t *testing.T) {
	server, _ := newTestServer(t)

	var got model.ErrorResponse
	resp := doJSON(t, http.MethodPost, server.URL+"/pad/notes", []byte(`{"content":123}`), &got)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Content must be of string type", got.Error)

	// Missing content field is the same rejection.
	resp = doJSON(t, http.MethodPost, server.URL+"/pad/notes", []byte(`{}`), &got)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// JSON null is not a string either.
	resp = doJSON(t, http.MethodPost, server.URL+"/pad/notes", []byte(`{"content":null}`), &got)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Content must be of string type", got.Error)

	// None of the rejected saves may have created or mutated a pad.
	var list model.ListPadsResponse
	doJSON(t, http.MethodGet, server.URL+"/pads", nil, &list)
	assert.Empty(t, list.Pads, "rejected saves must not change state")
}

func TestListAndDelete(t *testing.T) {
	server, mock := newTestServer(t)
	mock.ExpectExec("INSERT INTO pads").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO pads").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM pads").WillReturnResult(sqlmock.NewResult(0, 1))

	doJSON(t, http.MethodPost, server.URL+"/pad/a", []byte(`{"content":"alpha"}`), nil)
	doJSON(t, http.MethodPost, server.URL+"/pad/b", []byte(`{"content":"beta"}`), nil)

	var list model.ListPadsResponse
	doJSON(t, http.MethodGet, server.URL+"/pads", nil, &list)
	assert.True(t, list.Success)
	assert.Len(t, list.Pads, 2)

	var deleted model.DeletePadResponse
	resp := doJSON(t, http.MethodDelete, server.URL+"/pad/a", nil, &deleted)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, deleted.Success)
	assert.Equal(t, "Pad Deleted", deleted.Message)

	list = model.ListPadsResponse{}
	doJSON(t, http.MethodGet, server.URL+"/pads", nil, &list)
	require.Len(t, list.Pads, 1)
	assert.Equal(t, "b", list.Pads[0].ID)
}

func TestDeleteUnknownPad(t *testing.T) {
	server, _ := newTestServer(t)

	var got model.ErrorResponse
	resp := doJSON(t, http.MethodDelete, server.URL+"/pad/ghost", nil, &got)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Pad not found", got.Error)
}
