// Package converter translates between the HTTP JSON contract and engine types.
package converter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	apperrors "github.com/devrev/dispatchboard/internal/errors"
	"github.com/devrev/dispatchboard/internal/model"
)

// MaxBodyBytes bounds every decoded request body.
const MaxBodyBytes = 1 << 20

// HTTPToModel handles conversion of HTTP requests to engine inputs.
type HTTPToModel struct{}

// NewHTTPToModel creates a new HTTPToModel converter.
func NewHTTPToModel() *HTTPToModel {
	return &HTTPToModel{}
}

// CreateTechnicianHTTPRequest represents the body of POST /technicians.
type CreateTechnicianHTTPRequest struct {
	TechnicianID string `json:"technicianID"`
	FullName     string `json:"fullName"`
}

// UpdateTechnicianHTTPRequest represents the body of PATCH /technicians/{technicianID}.
type UpdateTechnicianHTTPRequest struct {
	FullName string `json:"fullName"`
}

// CreateRequestHTTPRequest represents the body of POST /requests.
type CreateRequestHTTPRequest struct {
	RequestID    string `json:"requestID"`
	Address      string `json:"address"`
	Complexity   int    `json:"complexity"`
	TechnicianID string `json:"technicianID"`
}

// UpdateRequestHTTPRequest represents the body of PATCH /requests/{requestID}.
type UpdateRequestHTTPRequest struct {
	Address    string `json:"address"`
	Complexity int    `json:"complexity"`
}

// MoveRequestHTTPRequest represents the body of PATCH /technicians.
type MoveRequestHTTPRequest struct {
	RequestID        string `json:"requestID"`
	SrcTechnicianID  string `json:"srcTechnicianID"`
	DestTechnicianID string `json:"destTechnicianID"`
}

// CreateTechnicianRequest decodes a technician creation body.
func (c *HTTPToModel) CreateTechnicianRequest(w http.ResponseWriter, r *http.Request) (*CreateTechnicianHTTPRequest, error) {
	var req CreateTechnicianHTTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// UpdateTechnicianRequest decodes a technician rename body.
func (c *HTTPToModel) UpdateTechnicianRequest(w http.ResponseWriter, r *http.Request) (*UpdateTechnicianHTTPRequest, error) {
	var req UpdateTechnicianHTTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// CreateRequestRequest decodes a request creation body into a model.Request.
func (c *HTTPToModel) CreateRequestRequest(w http.ResponseWriter, r *http.Request) (model.Request, error) {
	var req CreateRequestHTTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return model.Request{}, err
	}
	return model.Request{
		ID:           req.RequestID,
		Address:      req.Address,
		Complexity:   req.Complexity,
		TechnicianID: req.TechnicianID,
	}, nil
}

// UpdateRequestRequest decodes a request edit body.
func (c *HTTPToModel) UpdateRequestRequest(w http.ResponseWriter, r *http.Request) (*UpdateRequestHTTPRequest, error) {
	var req UpdateRequestHTTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// MoveRequestRequest decodes a move body.
func (c *HTTPToModel) MoveRequestRequest(w http.ResponseWriter, r *http.Request) (*MoveRequestHTTPRequest, error) {
	var req MoveRequestHTTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// AdditionalComplexity reads the optional ?additional= query parameter.
func (c *HTTPToModel) AdditionalComplexity(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("additional")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Validation("additional", fmt.Sprintf("must be an integer, got %q", raw))
	}
	return n, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	defer r.Body.Close()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperrors.Validation("", "request body is required")
		case errors.As(err, &typeErr):
			return apperrors.Validation(typeErr.Field, fmt.Sprintf("must be of type %s", typeErr.Type))
		case errors.As(err, &maxErr):
			return apperrors.Validation("", "request body too large")
		default:
			return apperrors.Validation("", fmt.Sprintf("malformed JSON body: %v", err))
		}
	}
	return nil
}
