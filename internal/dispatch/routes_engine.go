package dispatch

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/CCMOperaciones/Dispatch-Backend/internal/dispatch/cloudfleet"
	"github.com/CCMOperaciones/Dispatch-Backend/internal/textnorm"
)

// Route reconstruction. CloudFleet's native routes collection is empty or
// stale for most customers, so the catalog is rebuilt by mining historical
// travels: guess probable route codes from the client/city names, query
// travels by those codes, fall back to sampling vehicle codes, and as a last
// resort run one broad date-windowed query. Results merge with whatever the
// native collection did return, keyed by (code, origin, destination).

const (
	// tripLookback is the default travel-search window. The broad
	// fallback stretches to broadTripLookback, just under CloudFleet's
	// 62-day ceiling.
	tripLookback      = 30 * 24 * time.Hour
	broadTripLookback = 60 * 24 * time.Hour

	// tripMaxPages bounds each narrow travels query; the broad fallback
	// gets more pages since nothing else narrows it.
	tripMaxPages      = 3
	broadTripMaxPages = 10

	// nativeRouteMaxPages bounds the native-routes scan when no customer
	// filter narrows it.
	nativeRouteMaxPages = 5

	// vehicleScanBudget caps the wall clock spent iterating sampled
	// vehicle codes; each query already costs at least the inter-request
	// delay.
	vehicleScanBudget = 45 * time.Second
)

// RouteFilter narrows a route listing. All populated fields are conjunctive.
type RouteFilter struct {
	ClienteID     string
	ClienteNombre string
	Ciudad        string
	Codigo        string
	Via           string
}

func (f RouteFilter) empty() bool {
	return f.ClienteID == "" && f.ClienteNombre == "" && f.Ciudad == "" &&
		f.Codigo == "" && f.Via == ""
}

// routeKey is the dedup identity for routes: upstream ids are not stable for
// reconstructed routes, the (code, origin, destination) triple is.
type routeKey struct {
	code    string
	origen  string
	destino string
}

func keyOf(r Ruta) routeKey {
	return routeKey{
		code:    textnorm.Fold(r.Codigo),
		origen:  textnorm.Fold(r.Origen),
		destino: textnorm.Fold(r.Destino),
	}
}

// routeSet accumulates routes with order-preserving merge semantics: waypoint
// codes and details are append-only unions, a missing primary waypoint is
// filled but never overwritten, and scalar fields of the first-seen route win.
type routeSet struct {
	order []routeKey
	items map[routeKey]*Ruta
}

func newRouteSet() *routeSet {
	return &routeSet{items: make(map[routeKey]*Ruta)}
}

func (s *routeSet) add(r Ruta) {
	k := keyOf(r)
	existing, ok := s.items[k]
	if !ok {
		if r.Vias == nil {
			r.Vias = []string{}
		}
		s.items[k] = &r
		s.order = append(s.order, k)
		return
	}

	if existing.ViaPrincipal == "" {
		existing.ViaPrincipal = r.ViaPrincipal
	}
	if existing.Nombre == "" || existing.Nombre == existing.Codigo {
		if r.Nombre != "" {
			existing.Nombre = r.Nombre
		}
	}
	if existing.ID == "" {
		existing.ID = r.ID
	}
	if existing.ClienteID == "" {
		existing.ClienteID = r.ClienteID
	}

	have := make(map[string]struct{}, len(existing.Vias))
	for _, v := range existing.Vias {
		have[v] = struct{}{}
	}
	for _, v := range r.Vias {
		if _, ok := have[v]; ok {
			continue
		}
		have[v] = struct{}{}
		existing.Vias = append(existing.Vias, v)
	}

	haveDetail := make(map[string]struct{}, len(existing.ViasDetalle))
	for _, d := range existing.ViasDetalle {
		haveDetail[d.Code] = struct{}{}
	}
	for _, d := range r.ViasDetalle {
		if _, ok := haveDetail[d.Code]; ok {
			continue
		}
		haveDetail[d.Code] = struct{}{}
		existing.ViasDetalle = append(existing.ViasDetalle, d)
	}
}

func (s *routeSet) list() []Ruta {
	out := make([]Ruta, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, *s.items[k])
	}
	return out
}

// rutaFromTravel projects one historical travel into a route candidate.
func rutaFromTravel(t cloudfleet.Travel) Ruta {
	out := Ruta{
		ClienteID: t.CustomerID.String(),
		Codigo:    t.ResolvedRouteCode(),
		Nombre:    t.DisplayName(),
		Origen:    t.Origin.Display(),
		Destino:   t.Destination.Display(),
		Activa:    true,
		Vias:      []string{},
	}
	if p := t.PrimaryVia(); p != nil {
		out.ViaPrincipal = p.Code
		if out.ViaPrincipal == "" {
			out.ViaPrincipal = p.Name
		}
	}
	for _, v := range t.Waypoints() {
		code := v.Code
		if code == "" {
			code = v.Name
		}
		out.Vias = append(out.Vias, code)
		out.ViasDetalle = append(out.ViasDetalle, RutaVia{Code: code, Name: v.Name, Raw: v.Raw})
	}
	return out
}

// travelMatchesFilter applies the city and waypoint filters to a raw travel:
// origin, destination or the trip-level city must fuzzy-match the city, and
// the resolved primary waypoint must equal the waypoint filter.
func travelMatchesFilter(t cloudfleet.Travel, f RouteFilter) bool {
	if f.Ciudad != "" {
		cityOK := textnorm.MatchCity(f.Ciudad, t.Origin.Display()) ||
			textnorm.MatchCity(f.Ciudad, t.Origin.City) ||
			textnorm.MatchCity(f.Ciudad, t.Destination.Display()) ||
			textnorm.MatchCity(f.Ciudad, t.Destination.City) ||
			textnorm.MatchCity(f.Ciudad, t.City)
		if !cityOK {
			return false
		}
	}
	if f.Via != "" {
		p := t.PrimaryVia()
		if p == nil {
			return false
		}
		if !strings.EqualFold(p.Code, f.Via) && !strings.EqualFold(p.Name, f.Via) {
			return false
		}
	}
	return true
}

// travelOwnedByClient is the in-memory ownership check for broad-fallback
// results when the client id could not be sent upstream: exact match against
// the travel's customer id or its cost-center id/code.
func travelOwnedByClient(t cloudfleet.Travel, clienteID string) bool {
	if t.CustomerID.String() == clienteID {
		return true
	}
	if cc := t.CostCenter; cc != nil {
		if cc.ID.String() == clienteID || strings.EqualFold(cc.Code, clienteID) {
			return true
		}
	}
	return false
}

// matchesRouteFilter applies the listing filter to an assembled route. With
// strictCity false an explicit route-code filter relaxes the city check: the
// caller already knows exactly which route it wants.
func matchesRouteFilter(r Ruta, f RouteFilter, strictCity bool) bool {
	if f.Codigo != "" && !strings.EqualFold(r.Codigo, f.Codigo) {
		return false
	}
	if f.Ciudad != "" && (strictCity || f.Codigo == "") {
		if !textnorm.MatchCity(f.Ciudad, r.Origen) &&
			!textnorm.MatchCity(f.Ciudad, r.Destino) &&
			!textnorm.MatchCity(f.Ciudad, r.Nombre) {
			return false
		}
	}
	if f.Via != "" {
		found := strings.EqualFold(r.ViaPrincipal, f.Via)
		for _, v := range r.Vias {
			if found {
				break
			}
			found = strings.EqualFold(v, f.Via)
		}
		if !found {
			return false
		}
	}
	return true
}

// resolveRoutesFromTravels mines travel history for routes matching the
// filter. Upstream failures on any branch are logged and swallowed; whatever
// was collected so far is still returned.
func resolveRoutesFromTravels(ctx context.Context, cf *cloudfleet.Client, f RouteFilter) []Ruta {
	candidates := textnorm.RouteCodeCandidates(f.ClienteNombre, f.Ciudad, f.Codigo)
	now := time.Now().UTC()
	from := now.Add(-tripLookback)

	usableID := idUsableUpstream(f.ClienteID)
	upstreamClientID := ""
	if usableID {
		upstreamClientID = f.ClienteID
	}

	var travels []cloudfleet.Travel

	// Pass 1: direct travel queries per candidate route code, first hit
	// wins.
	for _, code := range candidates {
		got, err := cf.Travels(ctx, cloudfleet.TravelQuery{
			RouteCode:   code,
			CustomerID:  upstreamClientID,
			CreatedFrom: from,
			CreatedTo:   now,
		}, cloudfleet.PageOptions{MaxPages: tripMaxPages})
		if err != nil {
			cloudfleet.LogError("travels by route code "+code, err)
			continue
		}
		if len(got) > 0 {
			travels = got
			break
		}
	}

	// Pass 2: sample vehicle codes for the city/client and query travels
	// per vehicle, under a wall-clock budget.
	if len(travels) == 0 {
		vehicles, err := cf.Vehicles(ctx, cloudfleet.VehicleFilter{CustomerID: upstreamClientID})
		if err != nil {
			cloudfleet.LogError("vehicles for travel sampling", err)
		}
		codes := sampleVehicleCodes(vehicles, f.ClienteID, f.Ciudad, nil)
		deadline := time.Now().Add(vehicleScanBudget)
		for _, code := range codes {
			if time.Now().After(deadline) {
				log.Printf("[dispatch] vehicle travel scan budget exhausted after %v", vehicleScanBudget)
				break
			}
			q := cloudfleet.TravelQuery{
				VehicleCode: code,
				ViaCode:     f.Via,
				CreatedFrom: from,
				CreatedTo:   now,
			}
			if f.Codigo != "" {
				q.RouteCode = f.Codigo
			}
			got, err := cf.Travels(ctx, q, cloudfleet.PageOptions{MaxPages: tripMaxPages})
			if err != nil {
				cloudfleet.LogError("travels by vehicle "+code, err)
				continue
			}
			if len(got) > 0 {
				travels = got
				break
			}
		}
	}

	// Pass 3: one broad date-windowed query. When the client id is not a
	// real upstream id the query runs unfiltered and ownership is matched
	// in memory.
	if len(travels) == 0 && f.ClienteID != "" {
		broadFrom := now.Add(-broadTripLookback)
		got, err := cf.Travels(ctx, cloudfleet.TravelQuery{
			CustomerID:  upstreamClientID,
			CreatedFrom: broadFrom,
			CreatedTo:   now,
		}, cloudfleet.PageOptions{MaxPages: broadTripMaxPages})
		if err != nil {
			cloudfleet.LogError("broad travel fallback", err)
		} else if usableID {
			travels = got
		} else {
			for _, t := range got {
				if travelOwnedByClient(t, f.ClienteID) {
					travels = append(travels, t)
				}
			}
		}
	}

	set := newRouteSet()
	for _, t := range travels {
		if !travelMatchesFilter(t, f) {
			continue
		}
		set.add(rutaFromTravel(t))
	}
	return set.list()
}

// listRoutes is the top-level route listing: native routes first, enriched by
// travel-reconstructed ones through the same dedup key, static catalog as the
// last resort. It never returns an error; every failure degrades.
func listRoutes(ctx context.Context, cf *cloudfleet.Client, f RouteFilter, strictCity bool) []Ruta {
	set := newRouteSet()

	upstreamClientID := ""
	if idUsableUpstream(f.ClienteID) {
		upstreamClientID = f.ClienteID
	}
	opts := cloudfleet.PageOptions{}
	if f.empty() || upstreamClientID == "" {
		opts.MaxPages = nativeRouteMaxPages
	}
	native, err := cf.Routes(ctx, upstreamClientID, opts)
	if err != nil {
		cloudfleet.LogError("native routes", err)
	}
	for _, nr := range native {
		r := rutaFromRoute(nr)
		if !matchesRouteFilter(r, f, strictCity) {
			continue
		}
		set.add(r)
	}

	for _, r := range resolveRoutesFromTravels(ctx, cf, f) {
		if !matchesRouteFilter(r, f, strictCity) {
			continue
		}
		set.add(r)
	}

	out := set.list()
	if len(out) == 0 {
		out = staticFallbackRoutes(f, strictCity)
	}
	if out == nil {
		out = []Ruta{}
	}
	return out
}
