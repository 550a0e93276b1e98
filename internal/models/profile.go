package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Gender of the user. GenderUnset only exists while a form is being filled in.
type Gender string

const (
	GenderUnset  Gender = ""
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Profile bounds
const (
	MinAge    = 1
	MaxAge    = 120
	MinWeight = 20.0
	MaxWeight = 300.0
)

// UserProfile personalizes every analysis.
type UserProfile struct {
	Age    int     `json:"age"`
	Gender Gender  `json:"gender"`
	Weight float64 `json:"weight"` // kilograms
}

// Validate checks the profile against its domain ranges.
func (p UserProfile) Validate() error {
	if p.Age < MinAge || p.Age > MaxAge {
		return fmt.Errorf("%w: age %d outside [%d,%d]", ErrInvalidProfile, p.Age, MinAge, MaxAge)
	}
	if p.Gender != GenderMale && p.Gender != GenderFemale {
		return fmt.Errorf("%w: gender %q", ErrInvalidProfile, p.Gender)
	}
	if p.Weight < MinWeight || p.Weight > MaxWeight {
		return fmt.Errorf("%w: weight %v outside [%v,%v]", ErrInvalidProfile, p.Weight, MinWeight, MaxWeight)
	}
	return nil
}

// Form renders the profile the way the entry form and the persisted record carry it.
func (p UserProfile) Form() ProfileForm {
	return ProfileForm{
		Age:    strconv.Itoa(p.Age),
		Gender: string(p.Gender),
		Weight: FormatWeight(p.Weight),
	}
}

// FormatWeight prints a weight with the fewest digits that round-trip.
func FormatWeight(w float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64)
}

// ProfileForm holds the raw string values of the profile form.
type ProfileForm struct {
	Age    string `json:"age"`
	Gender string `json:"gender"`
	Weight string `json:"weight"`
}

// Parse converts form values into a validated UserProfile.
func (f ProfileForm) Parse() (UserProfile, error) {
	age, err := strconv.Atoi(strings.TrimSpace(f.Age))
	if err != nil {
		return UserProfile{}, fmt.Errorf("%w: age %q is not an integer", ErrInvalidProfile, f.Age)
	}
	weight, err := strconv.ParseFloat(strings.TrimSpace(f.Weight), 64)
	if err != nil {
		return UserProfile{}, fmt.Errorf("%w: weight %q is not a number", ErrInvalidProfile, f.Weight)
	}
	p := UserProfile{
		Age:    age,
		Gender: Gender(strings.TrimSpace(f.Gender)),
		Weight: weight,
	}
	if err := p.Validate(); err != nil {
		return UserProfile{}, err
	}
	return p, nil
}
