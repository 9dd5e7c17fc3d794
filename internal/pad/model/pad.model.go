package model

import (
	"encoding/json"
	"time"
)

// Pad is the canonical stored form of one document: a whole-content
// snapshot plus its timestamps. There is no operation history.
type Pad struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"createdAt"`
	LastModified time.Time `json:"lastModified"`
}

// PadMetadata is the listing shape. Content is deliberately omitted.
type PadMetadata struct {
	ID           string    `json:"id"`
	LastModified time.Time `json:"lastModified"`
	CreatedAt    time.Time `json:"createdAt"`
}

type PadResponse struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	LastModified time.Time `json:"lastModified"`
}

// SavePadRequest keeps content as a raw message so the handler can
// reject non-string payloads instead of silently coercing them.
type SavePadRequest struct {
	Content json.RawMessage `json:"content"`
}

type SavePadResponse struct {
	Success      bool      `json:"success"`
	ID           string    `json:"id"`
	LastModified time.Time `json:"lastModified"`
}

type ListPadsResponse struct {
	Success bool          `json:"success"`
	Pads    []PadMetadata `json:"pads"`
}

type DeletePadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
