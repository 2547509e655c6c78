package models

import (
	"errors"
	"math"
	"strings"
)

// Property is a listing as served by the backend API.
// The backend assigns ID; the client never updates or deletes a property.
type Property struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Address      string  `json:"address"`
	Price        float64 `json:"price"`
	CodeInternal string  `json:"codeInternal,omitempty"`
	Year         *int    `json:"year,omitempty"`
	IDOwner      string  `json:"idOwner"`
}

// PropertyDraft is the payload of POST /Properties.
type PropertyDraft struct {
	Name         string  `json:"name"`
	Address      string  `json:"address"`
	Price        float64 `json:"price"`
	CodeInternal string  `json:"codeInternal,omitempty"`
	Year         *int    `json:"year,omitempty"`
	IDOwner      string  `json:"idOwner"`
}

// Validate checks the draft before it is sent to the backend.
func (d PropertyDraft) Validate() error {
	var errs []error
	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if strings.TrimSpace(d.Address) == "" {
		errs = append(errs, errors.New("address is required"))
	}
	if strings.TrimSpace(d.IDOwner) == "" {
		errs = append(errs, errors.New("idOwner is required"))
	}
	if math.IsNaN(d.Price) || math.IsInf(d.Price, 0) {
		errs = append(errs, errors.New("price must be a number"))
	} else if d.Price < 0 {
		errs = append(errs, errors.New("price must not be negative"))
	}
	if d.Year != nil && *d.Year <= 0 {
		errs = append(errs, errors.New("year must be positive"))
	}
	return errors.Join(errs...)
}

// HasYear reports whether the backend sent a construction year.
func (p *Property) HasYear() bool {
	return p.Year != nil && *p.Year > 0
}
