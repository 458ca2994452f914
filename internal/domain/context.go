package domain

import "time"

// Context is the ephemeral request describing who, when and where is asking.
// OrganizationID is required; Now defaults to the engine clock when zero.
type Context struct {
	OrganizationID   string         `json:"organization_id"`
	Now              time.Time      `json:"now,omitempty"`
	BranchID         string         `json:"branch_id,omitempty"`
	ServiceIDs       []string       `json:"service_ids,omitempty"`
	SpecialistID     string         `json:"specialist_id,omitempty"`
	CustomerSegments []string       `json:"customer_segments,omitempty"`
	Channel          string         `json:"channel,omitempty"`
	CustomerID       string         `json:"customer_id,omitempty"`
	Utilization      *float64       `json:"utilization,omitempty"`
	AppointmentTime  *time.Time     `json:"appointment_time,omitempty"`
	OrderValue       *float64       `json:"order_value,omitempty"`
	Extra            map[string]any `json:"extra,omitempty"`
}

// Snapshot returns a copy safe to embed in decision evidence. Slices and the
// extra bag are cloned so later mutation of the request context cannot alter
// recorded evidence.
func (c *Context) Snapshot() *Context {
	if c == nil {
		return nil
	}
	cp := *c
	cp.ServiceIDs = append([]string(nil), c.ServiceIDs...)
	cp.CustomerSegments = append([]string(nil), c.CustomerSegments...)
	if c.Extra != nil {
		cp.Extra = make(map[string]any, len(c.Extra))
		for k, v := range c.Extra {
			cp.Extra[k] = v
		}
	}
	return &cp
}
