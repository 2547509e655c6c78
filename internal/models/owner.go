package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Owner is a property owner as served by the backend API.
type Owner struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Photo    string `json:"photo"`
	Birthday string `json:"birthday"`
}

// OwnerDraft is the payload of POST /Owners.
type OwnerDraft struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Photo    string `json:"photo"`
	Birthday string `json:"birthday"`
}

// Validate checks the draft before it is sent to the backend.
func (d OwnerDraft) Validate() error {
	var errs []error
	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if strings.TrimSpace(d.Address) == "" {
		errs = append(errs, errors.New("address is required"))
	}
	if strings.TrimSpace(d.Photo) == "" {
		errs = append(errs, errors.New("photo is required"))
	}
	if strings.TrimSpace(d.Birthday) == "" {
		errs = append(errs, errors.New("birthday is required"))
	} else if _, err := NormalizeBirthday(d.Birthday); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// NormalizeBirthday accepts a calendar date (2006-01-02) or an RFC 3339
// timestamp and returns it as RFC 3339 in UTC, the format the backend stores.
func NormalizeBirthday(s string) (string, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC().Format(time.RFC3339), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return "", fmt.Errorf("birthday %q is not an ISO-8601 date", s)
	}
	return t.UTC().Format(time.RFC3339), nil
}
