package cloudfleet

import (
	"bytes"
	"encoding/json"
)

// CloudFleet payloads are loosely shaped: ids arrive as strings or numbers,
// locations as plain strings or objects, waypoints under several field names.
// Each varying field gets an explicit variant type here, resolved once at the
// ingestion boundary; nothing downstream sees raw JSON except the opaque
// Extra bag kept for debugging pass-through.

// FlexID decodes a JSON string or number into its string form.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string { return string(f) }

// LocationRef is a travel origin/destination: either a bare string or an
// object carrying name/code/city.
type LocationRef struct {
	Name string
	Code string
	City string
}

func (l *LocationRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*l = LocationRef{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = LocationRef{Name: s}
		return nil
	}
	var obj struct {
		Name string `json:"name"`
		Code string `json:"code"`
		City string `json:"city"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*l = LocationRef{Name: obj.Name, Code: obj.Code, City: obj.City}
	return nil
}

// Display returns the location's name, falling back to its code.
func (l LocationRef) Display() string {
	if l.Name != "" {
		return l.Name
	}
	return l.Code
}

// Via is a waypoint: either a bare code string or an object with code/name.
// Raw keeps the source object for pass-through.
type Via struct {
	Code string
	Name string
	Raw  json.RawMessage
}

func (v *Via) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*v = Via{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Via{Code: s, Name: s, Raw: append(json.RawMessage(nil), b...)}
		return nil
	}
	var obj struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	name := obj.Name
	if name == "" {
		name = obj.Code
	}
	*v = Via{Code: obj.Code, Name: name, Raw: append(json.RawMessage(nil), b...)}
	return nil
}

// CostCenter is the billing/grouping attribute CloudFleet hangs off vehicles
// and travels; it doubles as a client-ownership proxy.
type CostCenter struct {
	ID   FlexID `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Customer is a CloudFleet customer record.
type Customer struct {
	ID      FlexID         `json:"id"`
	Name    string         `json:"name"`
	Email   string         `json:"email"`
	Phone   string         `json:"phone"`
	Contact string         `json:"contactName"`
	Extra   map[string]any `json:"-"`
}

// customerKnownFields are dropped from the Extra bag.
var customerKnownFields = []string{"id", "name", "email", "phone", "contactName"}

func (c *Customer) UnmarshalJSON(b []byte) error {
	type alias Customer
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(b, &all); err == nil {
		for _, k := range customerKnownFields {
			delete(all, k)
		}
		if len(all) > 0 {
			a.Extra = all
		}
	}
	*c = Customer(a)
	return nil
}

// Location is a CloudFleet location (a client site).
type Location struct {
	ID         FlexID `json:"id"`
	CustomerID FlexID `json:"customerId"`
	Name       string `json:"name"`
	City       string `json:"city"`
	Address    string `json:"address"`
	Phone      string `json:"phone"`
}

// Route is a native CloudFleet route record.
type Route struct {
	ID          FlexID      `json:"id"`
	CustomerID  FlexID      `json:"customerId"`
	LocationID  FlexID      `json:"locationId"`
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Origin      LocationRef `json:"origin"`
	Destination LocationRef `json:"destination"`
	Distance    float64     `json:"distance"`
	Active      bool        `json:"active"`
	Via         *Via        `json:"via"`
	Vias        []Via       `json:"vias"`
}

// Vehicle is a CloudFleet vehicle record.
type Vehicle struct {
	ID         FlexID      `json:"id"`
	LocationID FlexID      `json:"locationId"`
	Code       string      `json:"code"`
	Plate      string      `json:"licensePlate"`
	Type       string      `json:"type"`
	Capacity   float64     `json:"capacity"`
	City       string      `json:"city"`
	Active     bool        `json:"active"`
	CustomerID FlexID      `json:"customerId"`
	CostCenter *CostCenter `json:"costCenter"`
}

// Person is a CloudFleet person record (drivers, assistants, office staff).
type Person struct {
	ID         FlexID `json:"id"`
	LocationID FlexID `json:"locationId"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Document   string `json:"documentId"`
	Phone      string `json:"phone"`
	City       string `json:"city"`
	Active     bool   `json:"active"`
}

// travelRoute is the nested route object some travel payloads carry.
type travelRoute struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Travel is a historical dispatch record. It is never exposed as its own
// entity; the route-reconstruction engine mines it for route data.
type Travel struct {
	Number      FlexID       `json:"number"`
	RouteCode   string       `json:"routeCode"`
	Code        string       `json:"code"`
	Route       *travelRoute `json:"route"`
	Name        string       `json:"name"`
	Origin      LocationRef  `json:"origin"`
	Destination LocationRef  `json:"destination"`
	City        string       `json:"city"`
	Via         *Via         `json:"via"`
	Vias        []Via        `json:"vias"`
	ViaCode     string       `json:"viaCode"`
	ViaName     string       `json:"viaName"`
	CustomerID  FlexID       `json:"customerId"`
	CostCenter  *CostCenter  `json:"costCenter"`
	Finished    bool         `json:"finished"`
	CreatedAt   string       `json:"createdAt"`
}

// PlaceholderRouteCode marks travels that carry no route code at all.
const PlaceholderRouteCode = "SIN-RUTA"

// ResolvedRouteCode picks the travel's route code: routeCode, then code, then
// the nested route object, then the placeholder.
func (t Travel) ResolvedRouteCode() string {
	if t.RouteCode != "" {
		return t.RouteCode
	}
	if t.Code != "" {
		return t.Code
	}
	if t.Route != nil && t.Route.Code != "" {
		return t.Route.Code
	}
	return PlaceholderRouteCode
}

// DisplayName returns a human-readable name for the travel's route.
func (t Travel) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	if t.Route != nil && t.Route.Name != "" {
		return t.Route.Name
	}
	return t.ResolvedRouteCode()
}

// PrimaryVia resolves the travel's primary waypoint: the via object, then the
// loose viaCode/viaName pair, then the first of the vias list.
func (t Travel) PrimaryVia() *Via {
	if t.Via != nil && (t.Via.Code != "" || t.Via.Name != "") {
		return t.Via
	}
	if t.ViaCode != "" || t.ViaName != "" {
		name := t.ViaName
		if name == "" {
			name = t.ViaCode
		}
		code := t.ViaCode
		if code == "" {
			code = t.ViaName
		}
		return &Via{Code: code, Name: name}
	}
	if len(t.Vias) > 0 {
		return &t.Vias[0]
	}
	return nil
}

// Waypoints collects every waypoint attached to the travel across all field
// shapes, primary first, deduplicated by code.
func (t Travel) Waypoints() []Via {
	var out []Via
	seen := make(map[string]struct{})
	add := func(v Via) {
		key := v.Code
		if key == "" {
			key = v.Name
		}
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	if p := t.PrimaryVia(); p != nil {
		add(*p)
	}
	for _, v := range t.Vias {
		add(v)
	}
	return out
}
