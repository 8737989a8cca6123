package dispatch

import (
	"strings"

	"github.com/CCMOperaciones/Dispatch-Backend/internal/dispatch/cloudfleet"
	"github.com/CCMOperaciones/Dispatch-Backend/internal/quota"
	"github.com/CCMOperaciones/Dispatch-Backend/internal/textnorm"
)

const (
	// shortIDThreshold separates real CloudFleet identifiers from
	// locally-synthesized short ids (cost-center codes). Only ids longer
	// than this are usable as upstream query filters.
	shortIDThreshold = 10

	// vehicleSampleSize bounds how many vehicle codes the travel-mining
	// fallback tries.
	vehicleSampleSize = 5
)

// idUsableUpstream reports whether a client id can be sent to CloudFleet as a
// customerId filter, or must be matched in memory instead.
func idUsableUpstream(id string) bool {
	return len(id) > shortIDThreshold
}

// excludedPair names the two client families whose cost-center strings
// collide through their shared "CCM" prefix. LINDE absorbed PRAXAIR so those
// two are the same client; CHILCO is a different company and must never
// cross-match either of them.
func excludedPair(a, b string) bool {
	isLinde := func(s string) bool {
		return strings.Contains(s, "linde") || strings.Contains(s, "praxair")
	}
	isChilco := func(s string) bool { return strings.Contains(s, "chilco") }
	return (isLinde(a) && isChilco(b)) || (isChilco(a) && isLinde(b))
}

// costCenterMatches reports whether a vehicle's cost center plausibly belongs
// to the given client, by bidirectional substring containment against the
// cost center's id, code and name.
func costCenterMatches(clienteID string, cc *cloudfleet.CostCenter) bool {
	if cc == nil || clienteID == "" {
		return false
	}
	target := textnorm.Fold(clienteID)
	for _, field := range []string{cc.ID.String(), cc.Code, cc.Name} {
		f := textnorm.Fold(field)
		if f == "" {
			continue
		}
		if excludedPair(target, f) {
			continue
		}
		if strings.Contains(f, target) || strings.Contains(target, f) {
			return true
		}
	}
	return false
}

// vehicleBelongsToClient decides vehicle ownership for the fallback paths,
// trying in order: membership in the client's known site cities, direct
// customer-id equality, cost-center containment.
func vehicleBelongsToClient(v cloudfleet.Vehicle, clienteID string, clientCities map[string]struct{}) bool {
	if clienteID == "" {
		return true
	}
	if len(clientCities) > 0 {
		if _, ok := clientCities[textnorm.Fold(v.City)]; ok {
			return true
		}
	}
	if v.CustomerID != "" && v.CustomerID.String() == clienteID {
		return true
	}
	return costCenterMatches(clienteID, v.CostCenter)
}

// sampleVehicleCodes picks up to vehicleSampleSize vehicle codes matching the
// city and client filters. A vehicle with no customer id counts as available
// when only a city filter is in play. If nothing passes, the first
// vehicleSampleSize codes are returned unfiltered so the travel-mining loop
// always has candidates.
func sampleVehicleCodes(vehicles []cloudfleet.Vehicle, clienteID, ciudad string, clientCities map[string]struct{}) []string {
	var out []string
	for _, v := range vehicles {
		if v.Code == "" {
			continue
		}
		if ciudad != "" && !textnorm.MatchCity(ciudad, v.City) {
			continue
		}
		// With no client filter any vehicle in the city qualifies,
		// assigned or not.
		if clienteID != "" && !vehicleBelongsToClient(v, clienteID, clientCities) {
			continue
		}
		out = append(out, v.Code)
		if len(out) >= vehicleSampleSize {
			return out
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, v := range vehicles {
		if v.Code == "" {
			continue
		}
		out = append(out, v.Code)
		if len(out) >= vehicleSampleSize {
			break
		}
	}
	return out
}

// syntheticClientsFromVehicles reconstructs a client list from vehicle
// cost-center data, one client per distinct cost-center identifier (or
// customer id as a secondary source). Ids are the cost-center values
// verbatim so they round-trip through the UI's client filter.
func syntheticClientsFromVehicles(vehicles []cloudfleet.Vehicle) []Cliente {
	seen := make(map[string]struct{})
	var out []Cliente
	add := func(id, nombre string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		if nombre == "" {
			nombre = "Cliente " + id
		}
		out = append(out, Cliente{ID: id, Nombre: nombre, Sintetico: true})
	}
	for _, v := range vehicles {
		if cc := v.CostCenter; cc != nil {
			id := cc.ID.String()
			if id == "" {
				id = cc.Code
			}
			if id == "" {
				id = cc.Name
			}
			add(id, cc.Name)
			continue
		}
		add(v.CustomerID.String(), "")
	}
	return out
}

// cityTag derives the deterministic synthetic-site id for a city name.
func cityTag(ciudad string) string {
	return "city-" + strings.ReplaceAll(textnorm.Fold(strings.TrimSpace(ciudad)), " ", "-")
}

// syntheticSitesFromVehicles builds one virtual site per distinct city
// observed among the client's vehicles.
func syntheticSitesFromVehicles(vehicles []cloudfleet.Vehicle, clienteID string) []Sede {
	seen := make(map[string]struct{})
	var out []Sede
	for _, v := range vehicles {
		if v.City == "" {
			continue
		}
		if !vehicleBelongsToClient(v, clienteID, nil) {
			continue
		}
		tag := cityTag(v.City)
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, Sede{
			ID:        tag,
			ClienteID: clienteID,
			Nombre:    v.City,
			Ciudad:    v.City,
			Virtual:   true,
		})
	}
	return out
}

// appendForcedSites appends a synthetic forced site for every city the quota
// table expects for the client that is not already present, matching
// case-insensitively against both site names and cities. The planning UI
// always sees the client's full expected footprint.
func appendForcedSites(sedes []Sede, clienteID, clienteNombre string) []Sede {
	for _, expected := range quota.ExpectedSites(clienteNombre) {
		present := false
		for _, s := range sedes {
			if strings.EqualFold(s.Nombre, expected) || strings.EqualFold(s.Ciudad, expected) ||
				textnorm.MatchCity(expected, s.Ciudad) || textnorm.MatchCity(expected, s.Nombre) {
				present = true
				break
			}
		}
		if present {
			continue
		}
		sedes = append(sedes, Sede{
			ID:        "forced-" + cityTag(expected),
			ClienteID: clienteID,
			Nombre:    expected,
			Ciudad:    expected,
			Virtual:   true,
			Forzada:   true,
		})
	}
	return sedes
}

// clientCitySet folds the cities of a client's known sites into a lookup set
// for ownership matching.
func clientCitySet(sedes []Sede) map[string]struct{} {
	if len(sedes) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(sedes))
	for _, s := range sedes {
		if s.Ciudad != "" {
			set[textnorm.Fold(s.Ciudad)] = struct{}{}
		}
	}
	return set
}
