package services

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/krishisangam/backend/internal/models"
)

// Boundary normalization: clients historically sent several shapes for the
// same field. Each accepted shape maps to one canonical struct here; anything
// unrecognized is a validation error.

var errBadFullName = errors.New("full_name must be a string or {first_name, last_name}")
var errBadLocation = errors.New("location must be a string or {village, district, state}")
var errBadDuration = errors.New("duration must be a positive number or a string like \"3 days\"")

// NormalizeFullName accepts "First Last" or {"first_name","last_name"}.
func NormalizeFullName(raw json.RawMessage) (first, last string, err error) {
	if len(raw) == 0 {
		return "", "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		parts := strings.Fields(s)
		if len(parts) == 0 {
			return "", "", nil
		}
		return parts[0], strings.Join(parts[1:], " "), nil
	}
	var obj struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", "", errBadFullName
	}
	return strings.TrimSpace(obj.FirstName), strings.TrimSpace(obj.LastName), nil
}

// NormalizeLocation accepts "Village, District, State" or a structured
// object. A bare string with no commas becomes the village.
func NormalizeLocation(raw json.RawMessage) (models.Location, error) {
	if len(raw) == 0 {
		return models.Location{}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		parts := strings.Split(s, ",")
		loc := models.Location{Village: strings.TrimSpace(parts[0])}
		if len(parts) > 1 {
			loc.District = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			loc.State = strings.TrimSpace(parts[2])
		}
		return loc, nil
	}
	var loc models.Location
	if err := json.Unmarshal(raw, &loc); err != nil {
		return models.Location{}, errBadLocation
	}
	return loc, nil
}

// NormalizeDuration accepts a JSON number or a string with a leading number
// ("3", "3 days"). Absent input defaults to 1 unit.
func NormalizeDuration(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 1, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		if n < 1 {
			return 0, errBadDuration
		}
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, errBadDuration
	}
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return 1, nil
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 1 {
		return 0, errBadDuration
	}
	return n, nil
}
