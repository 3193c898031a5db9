package validation

import (
	"fmt"
	"strings"
	"unicode"

	apperrors "github.com/devrev/dispatchboard/internal/errors"
	"github.com/devrev/dispatchboard/internal/model"
)

const (
	// Size limits
	MaxIDSize      = 128
	MaxNameSize    = 256
	MaxAddressSize = 512
)

// Validator validates engine inputs
type Validator struct {
	maxIDSize      int
	maxNameSize    int
	maxAddressSize int
}

// NewValidator creates a new validator with default limits
func NewValidator() *Validator {
	return &Validator{
		maxIDSize:      MaxIDSize,
		maxNameSize:    MaxNameSize,
		maxAddressSize: MaxAddressSize,
	}
}

// ValidateTechnician validates the fields of a new technician
func (v *Validator) ValidateTechnician(id, fullName string) error {
	if err := v.ValidateID("technicianID", id); err != nil {
		return err
	}
	return v.ValidateFullName(fullName)
}

// ValidateRequest validates the fields of a new request
func (v *Validator) ValidateRequest(id, address string, complexity int, technicianID string) error {
	if err := v.ValidateID("requestID", id); err != nil {
		return err
	}
	if err := v.ValidateAddress(address); err != nil {
		return err
	}
	if err := v.ValidateComplexity(complexity); err != nil {
		return err
	}
	return v.ValidateID("technicianID", technicianID)
}

// ValidateID validates a caller-supplied identifier
func (v *Validator) ValidateID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.Validation(field, "must not be empty")
	}

	if len(id) > v.maxIDSize {
		return apperrors.Validation(field, fmt.Sprintf("exceeds maximum size of %d bytes", v.maxIDSize))
	}

	// IDs travel in URL paths
	for _, r := range id {
		if unicode.IsControl(r) || r == '/' {
			return apperrors.Validation(field, "contains forbidden characters")
		}
	}

	return nil
}

// ValidateFullName validates a technician name
func (v *Validator) ValidateFullName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.Validation("fullName", "must not be empty")
	}
	if len(name) > v.maxNameSize {
		return apperrors.Validation("fullName", fmt.Sprintf("exceeds maximum size of %d bytes", v.maxNameSize))
	}
	return nil
}

// ValidateAddress validates a request address
func (v *Validator) ValidateAddress(address string) error {
	if strings.TrimSpace(address) == "" {
		return apperrors.Validation("address", "must not be empty")
	}
	if len(address) > v.maxAddressSize {
		return apperrors.Validation("address", fmt.Sprintf("exceeds maximum size of %d bytes", v.maxAddressSize))
	}
	return nil
}

// ValidateComplexity validates a request complexity score. A score above
// the capacity ceiling could never be placed on any technician.
func (v *Validator) ValidateComplexity(complexity int) error {
	if complexity <= 0 {
		return apperrors.Validation("complexity", fmt.Sprintf("must be greater than 0, got %d", complexity))
	}
	if complexity > model.CapacityLimit {
		return apperrors.Validation("complexity",
			fmt.Sprintf("must not exceed capacity limit %d, got %d", model.CapacityLimit, complexity))
	}
	return nil
}
