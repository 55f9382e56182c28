package listing

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/edvart/property-listings/internal/store"
)

// ParseForm builds a PropertyInput from the admin property form. Empty
// optional fields become nulls.
func ParseForm(form url.Values) (store.PropertyInput, error) {
	in := store.PropertyInput{
		Title:        strings.TrimSpace(form.Get("title")),
		Description:  optionalString(form.Get("description")),
		LocationText: optionalString(form.Get("location_text")),
		Currency:     optionalString(form.Get("currency")),
		ContactPhone: optionalString(form.Get("contact_phone")),
		Highlighted:  isChecked(form.Get("highlighted")),
		Status:       store.Status(form.Get("status")),
	}

	if in.Status == "" {
		in.Status = store.StatusAvailable
	}

	var err error
	if in.Price, err = optionalNumber("price", form.Get("price")); err != nil {
		return in, err
	}
	if in.AreaM2, err = optionalNumber("area_m2", form.Get("area_m2")); err != nil {
		return in, err
	}

	return in, validate(in)
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func optionalNumber(field, v string) (*float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, fmt.Errorf("%s must be a number", field)
	}
	return &n, nil
}

func isChecked(v string) bool {
	switch strings.ToLower(v) {
	case "on", "true", "1":
		return true
	}
	return false
}
