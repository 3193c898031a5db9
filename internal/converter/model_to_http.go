package converter

import (
	"github.com/devrev/dispatchboard/internal/model"
)

// ModelToHTTP handles conversion of engine results to HTTP responses.
type ModelToHTTP struct{}

// NewModelToHTTP creates a new ModelToHTTP converter.
func NewModelToHTTP() *ModelToHTTP {
	return &ModelToHTTP{}
}

// RequestHTTPResponse is one request inside a technician's column.
type RequestHTTPResponse struct {
	RequestID  string `json:"requestID"`
	Address    string `json:"address"`
	Complexity int    `json:"complexity"`
}

// TechnicianHTTPResponse is one technician column of the board.
type TechnicianHTTPResponse struct {
	TechnicianID string                `json:"technicianID"`
	FullName     string                `json:"fullName"`
	Requests     []RequestHTTPResponse `json:"requests"`
}

// BoardHTTPResponse represents the body of GET /technicians.
type BoardHTTPResponse struct {
	Technicians []TechnicianHTTPResponse `json:"technicians"`
}

// MessageHTTPResponse carries a human-readable confirmation.
type MessageHTTPResponse struct {
	Message string `json:"message"`
}

// CapacityHTTPResponse represents the body of GET /technicians/{technicianID}/capacity.
type CapacityHTTPResponse struct {
	TechnicianID string `json:"technicianID"`
	CurrentTotal int    `json:"currentTotal"`
	Limit        int    `json:"limit"`
	Remaining    int    `json:"remaining"`
	WouldExceed  bool   `json:"wouldExceed"`
}

// UserHTTPResponse represents the body of GET /user.
type UserHTTPResponse struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// BoardResponse converts the board. Empty collections encode as [] rather
// than null.
func (c *ModelToHTTP) BoardResponse(board *model.Board) *BoardHTTPResponse {
	resp := &BoardHTTPResponse{Technicians: make([]TechnicianHTTPResponse, 0, len(board.Technicians))}
	for _, t := range board.Technicians {
		tech := TechnicianHTTPResponse{
			TechnicianID: t.ID,
			FullName:     t.FullName,
			Requests:     make([]RequestHTTPResponse, 0, len(t.Requests)),
		}
		for _, r := range t.Requests {
			tech.Requests = append(tech.Requests, RequestHTTPResponse{
				RequestID:  r.ID,
				Address:    r.Address,
				Complexity: r.Complexity,
			})
		}
		resp.Technicians = append(resp.Technicians, tech)
	}
	return resp
}

// CapacityResponse converts a capacity check.
func (c *ModelToHTTP) CapacityResponse(check model.CapacityCheck) *CapacityHTTPResponse {
	return &CapacityHTTPResponse{
		TechnicianID: check.TechnicianID,
		CurrentTotal: check.CurrentTotal,
		Limit:        check.Limit,
		Remaining:    check.Remaining(),
		WouldExceed:  check.WouldExceed,
	}
}

// MoveResponse converts a committed move into its confirmation message.
func (c *ModelToHTTP) MoveResponse(result *model.MoveResult) *MessageHTTPResponse {
	return &MessageHTTPResponse{
		Message: "request " + result.RequestID + " moved to technician " + result.ToTechnicianID,
	}
}

// DeleteTechnicianResponse confirms a cascade delete.
func (c *ModelToHTTP) DeleteTechnicianResponse(technicianID string) *MessageHTTPResponse {
	return &MessageHTTPResponse{
		Message: "technician " + technicianID + " deleted successfully",
	}
}
