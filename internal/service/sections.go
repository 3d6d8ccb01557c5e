// Package service contains the service layer for the Comdex API
package service

import (
	"errors"

	"github.com/comdex/comdexapi/internal/gateway"
	"github.com/comdex/comdexapi/pkg/utils/zaplogger"
)

// Unavailable marks a view section whose data could not be loaded.
// The section is left empty; it is never filled with placeholder data.
type Unavailable struct {
	Section   string `json:"section"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

// degraded collects optional section failures of one view.
// Authentication failures are not degradable and abort the view.
type degraded struct {
	items []Unavailable
}

func (d *degraded) add(section string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gateway.ErrAuthentication) {
		return err
	}
	u := Unavailable{Section: section, ErrorType: string(gateway.KindServer), Message: "Unable to load " + section + "."}
	var ge *gateway.Error
	if errors.As(err, &ge) {
		u.ErrorType = string(ge.Kind)
		if ge.Message != "" {
			u.Message = ge.Message
		}
	}
	zaplogger.Warn("view section unavailable", zaplogger.Fields{
		"section": section,
		"error":   err.Error(),
	})
	d.items = append(d.items, u)
	return nil
}

func (d *degraded) list() []Unavailable {
	if len(d.items) == 0 {
		return []Unavailable{}
	}
	return d.items
}
