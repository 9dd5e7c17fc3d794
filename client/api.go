// Package client implements the editing side of the sync protocol:
// a snapshot API consumer, a websocket relay transport, and the
// reconciliation state machine that arbitrates between local typing
// and remote updates.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// API talks to the snapshot endpoint. It is deliberately dumb: the
// Editor decides when to call it.
type API struct {
	BaseURL string
	HTTP    *http.Client
}

func NewAPI(baseURL string) *API {
	return &API{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

type PadSnapshot struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	LastModified time.Time `json:"lastModified"`
}

type SaveResult struct {
	Success      bool      `json:"success"`
	ID           string    `json:"id"`
	LastModified time.Time `json:"lastModified"`
}

type PadInfo struct {
	ID           string    `json:"id"`
	LastModified time.Time `json:"lastModified"`
	CreatedAt    time.Time `json:"createdAt"`
}

type listPadsResult struct {
	Success bool      `json:"success"`
	Pads    []PadInfo `json:"pads"`
}

type apiError struct {
	Error string `json:"error"`
}

// GetPad fetches the current snapshot; the server creates an empty pad
// for ids it has never seen.
func (a *API) GetPad(ctx context.Context, id string) (PadSnapshot, error) {
	var snap PadSnapshot
	err := a.do(ctx, http.MethodGet, "/pad/"+id, nil, &snap)
	return snap, err
}

func (a *API) SavePad(ctx context.Context, id, content string) (SaveResult, error) {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return SaveResult{}, err
	}
	var res SaveResult
	err = a.do(ctx, http.MethodPost, "/pad/"+id, body, &res)
	return res, err
}

func (a *API) ListPads(ctx context.Context) ([]PadInfo, error) {
	var res listPadsResult
	if err := a.do(ctx, http.MethodGet, "/pads", nil, &res); err != nil {
		return nil, err
	}
	return res.Pads, nil
}

func (a *API) DeletePad(ctx context.Context, id string) error {
	return a.do(ctx, http.MethodDelete, "/pad/"+id, nil, nil)
}

func (a *API) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
