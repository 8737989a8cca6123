package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/CCMOperaciones/Dispatch-Backend/internal/dispatch/cloudfleet"
	"github.com/CCMOperaciones/Dispatch-Backend/internal/quota"
	"github.com/CCMOperaciones/Dispatch-Backend/internal/textnorm"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[dispatch] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// degraded implements the read-side availability policy: collection listings
// never surface upstream failures, they log and collapse to an empty slice.
func degraded[T any](what string, items []T, err error) []T {
	if err != nil {
		log.Printf("[dispatch] %s degraded to empty: %v", what, err)
		return []T{}
	}
	if items == nil {
		return []T{}
	}
	return items
}

// excludedVehicleTypes are equipment types the planning UI never schedules.
var excludedVehicleTypes = map[string]struct{}{
	"TRAILER": {}, "REMOLQUE": {}, "MONTACARGA": {},
	"MOTOCICLETA": {}, "MOTO": {}, "FORKLIFT": {},
}

func vehicleTypeExcluded(tipo string) bool {
	_, ok := excludedVehicleTypes[strings.ToUpper(strings.TrimSpace(tipo))]
	return ok
}

// clienteNombre resolves a display name for a client id. Synthetic ids are
// cost-center strings and already readable; real ids go through the
// (memoized) customer lookup.
func clienteNombre(ctx context.Context, id string) string {
	if id == "" || !idUsableUpstream(id) {
		return id
	}
	c, err := CF.Customer(ctx, id)
	if err != nil {
		log.Printf("[dispatch] Failed to resolve client name for %s: %v", id, err)
		return id
	}
	return c.Name
}

// ListClientes returns all clients, synthesizing them from vehicle cost
// centers when CloudFleet's customer collection is empty.
func ListClientes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	customers, err := CF.Customers(ctx)
	if err != nil {
		log.Printf("[dispatch] Customer listing failed, trying synthesis: %v", err)
	}

	if len(customers) > 0 {
		out := make([]Cliente, 0, len(customers))
		for _, c := range customers {
			out = append(out, clienteFromCustomer(c))
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	vehicles, err := CF.Vehicles(ctx, cloudfleet.VehicleFilter{})
	clientes := syntheticClientsFromVehicles(degraded("vehicles for client synthesis", vehicles, err))
	if clientes == nil {
		clientes = []Cliente{}
	}
	writeJSON(w, http.StatusOK, clientes)
}

// GetCliente returns one client with its sites. Single-resource reads
// propagate failures; there is no safe default to substitute.
func GetCliente(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	cliente := Cliente{ID: id, Nombre: id, Sintetico: true}
	if idUsableUpstream(id) {
		c, err := CF.Customer(ctx, id)
		if errors.Is(err, cloudfleet.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Cliente no encontrado")
			return
		}
		if err != nil {
			writeError(w, http.StatusBadGateway, "Error consultando CloudFleet: "+err.Error())
			return
		}
		cliente = clienteFromCustomer(*c)
	}

	sedes := resolveSedes(ctx, id, cliente.Nombre)
	writeJSON(w, http.StatusOK, map[string]any{
		"cliente": cliente,
		"sedes":   sedes,
	})
}

// resolveSedes runs the full site pipeline for a client: native locations,
// virtual city sites when empty, quota-forced sites appended last.
func resolveSedes(ctx context.Context, clienteID, nombre string) []Sede {
	var sedes []Sede

	upstreamID := ""
	if idUsableUpstream(clienteID) {
		upstreamID = clienteID
	}
	if clienteID == "" || upstreamID != "" {
		locations, err := CF.Locations(ctx, upstreamID)
		for _, l := range degraded("locations", locations, err) {
			sedes = append(sedes, sedeFromLocation(l))
		}
	}

	if len(sedes) == 0 && clienteID != "" {
		vehicles, err := CF.Vehicles(ctx, cloudfleet.VehicleFilter{CustomerID: upstreamID})
		sedes = syntheticSitesFromVehicles(degraded("vehicles for site synthesis", vehicles, err), clienteID)
	}

	sedes = appendForcedSites(sedes, clienteID, nombre)
	if sedes == nil {
		sedes = []Sede{}
	}
	return sedes
}

// ListSedes returns sites, optionally filtered by client.
func ListSedes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clienteID := r.URL.Query().Get("clienteId")
	nombre := r.URL.Query().Get("cliente")
	if nombre == "" {
		nombre = clienteNombre(ctx, clienteID)
	}
	writeJSON(w, http.StatusOK, resolveSedes(ctx, clienteID, nombre))
}

// GetSede returns one site with its vehicles, personnel and routes.
func GetSede(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var sede Sede
	switch {
	case strings.HasPrefix(id, "city-") || strings.HasPrefix(id, "forced-"):
		// Synthetic site: the tag is derived from the city, rebuild it.
		city := strings.TrimPrefix(strings.TrimPrefix(id, "forced-"), "city-")
		city = strings.ReplaceAll(city, "-", " ")
		sede = Sede{ID: id, Nombre: strings.ToUpper(city), Ciudad: city, Virtual: true}
	default:
		l, err := CF.LocationByID(ctx, id)
		if errors.Is(err, cloudfleet.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Sede no encontrada")
			return
		}
		if err != nil {
			writeError(w, http.StatusBadGateway, "Error consultando CloudFleet: "+err.Error())
			return
		}
		sede = sedeFromLocation(*l)
	}

	// Membership is by location id, or by city for sites that have one; a
	// site with no city must not fuzzy-match the whole fleet.
	atSede := func(locationID, city string) bool {
		if locationID == sede.ID {
			return true
		}
		return sede.Ciudad != "" && textnorm.MatchCity(sede.Ciudad, city)
	}

	vehicles, err := CF.Vehicles(ctx, cloudfleet.VehicleFilter{})
	var vehiculos []Vehiculo
	for _, v := range degraded("vehicles for site detail", vehicles, err) {
		if !atSede(v.LocationID.String(), v.City) {
			continue
		}
		if vehicleTypeExcluded(v.Type) {
			continue
		}
		vehiculos = append(vehiculos, vehiculoFromVehicle(v))
	}

	people, err := CF.People(ctx)
	var personas []Persona
	for _, p := range degraded("people for site detail", people, err) {
		if !atSede(p.LocationID.String(), p.City) {
			continue
		}
		if textnorm.LooksCorporate(p.Name) {
			continue
		}
		personas = append(personas, personaFromPerson(p))
	}

	rutas := listRoutes(ctx, CF, RouteFilter{
		ClienteID:     sede.ClienteID,
		ClienteNombre: clienteNombre(ctx, sede.ClienteID),
		Ciudad:        sede.Ciudad,
	}, true)

	if vehiculos == nil {
		vehiculos = []Vehiculo{}
	}
	if personas == nil {
		personas = []Persona{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sede":      sede,
		"vehiculos": vehiculos,
		"personas":  personas,
		"rutas":     rutas,
	})
}

func routeFilterFromRequest(ctx context.Context, r *http.Request) RouteFilter {
	q := r.URL.Query()
	f := RouteFilter{
		ClienteID:     q.Get("clienteId"),
		ClienteNombre: q.Get("cliente"),
		Ciudad:        q.Get("ciudad"),
		Codigo:        q.Get("codigo"),
		Via:           q.Get("via"),
	}
	if f.ClienteNombre == "" {
		f.ClienteNombre = clienteNombre(ctx, f.ClienteID)
	}
	return f
}

// ListRutas lists routes with strict city filtering: a city filter applies
// even when an explicit route code is present.
func ListRutas(w http.ResponseWriter, r *http.Request) {
	listRutasWith(w, r, true)
}

// ListRutasV2 relaxes the city filter when an explicit route code is given;
// the caller already identified the exact route it wants.
func ListRutasV2(w http.ResponseWriter, r *http.Request) {
	listRutasWith(w, r, false)
}

func listRutasWith(w http.ResponseWriter, r *http.Request, strictCity bool) {
	defer func() {
		// The route listing must never break the planning UI.
		if rec := recover(); rec != nil {
			log.Printf("[dispatch] Route listing panicked: %v", rec)
			writeJSON(w, http.StatusOK, []Ruta{})
		}
	}()
	ctx := r.Context()
	writeJSON(w, http.StatusOK, listRoutes(ctx, CF, routeFilterFromRequest(ctx, r), strictCity))
}

// ListVehiculos lists vehicles with optional site/city/client/cost-center
// filters, excluding non-schedulable equipment types.
func ListVehiculos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	sedeID := q.Get("sedeId")
	ciudad := q.Get("ciudad")
	clienteID := q.Get("clienteId")
	centroCosto := q.Get("centroCosto")

	upstreamID := ""
	if idUsableUpstream(clienteID) {
		upstreamID = clienteID
	}
	vehicles, err := CF.Vehicles(ctx, cloudfleet.VehicleFilter{CustomerID: upstreamID})

	out := []Vehiculo{}
	for _, v := range degraded("vehicles", vehicles, err) {
		if vehicleTypeExcluded(v.Type) {
			continue
		}
		if sedeID != "" && v.LocationID.String() != sedeID {
			continue
		}
		if ciudad != "" && !textnorm.MatchCity(ciudad, v.City) {
			continue
		}
		if clienteID != "" && upstreamID == "" && !vehicleBelongsToClient(v, clienteID, nil) {
			continue
		}
		if centroCosto != "" && !costCenterMatches(centroCosto, v.CostCenter) {
			continue
		}
		out = append(out, vehiculoFromVehicle(v))
	}
	writeJSON(w, http.StatusOK, out)
}

// ListPersonas lists personnel with optional site/city/role filters,
// excluding records that look like company names.
func ListPersonas(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	sedeID := q.Get("sedeId")
	ciudad := q.Get("ciudad")
	rol := q.Get("rol")

	people, err := CF.People(ctx)

	out := []Persona{}
	for _, p := range degraded("people", people, err) {
		if textnorm.LooksCorporate(p.Name) {
			continue
		}
		if sedeID != "" && p.LocationID.String() != sedeID {
			continue
		}
		if ciudad != "" && !textnorm.MatchCity(ciudad, p.City) {
			continue
		}
		if rol != "" && !strings.EqualFold(p.Role, rol) {
			continue
		}
		out = append(out, personaFromPerson(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetResumen returns the operational summary for a client: resource counts
// and active counts for the planning dashboard.
func GetResumen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	nombre := clienteNombre(ctx, id)

	sedes := resolveSedes(ctx, id, nombre)

	upstreamID := ""
	if idUsableUpstream(id) {
		upstreamID = id
	}
	vehicles, err := CF.Vehicles(ctx, cloudfleet.VehicleFilter{CustomerID: upstreamID})
	vehicles = degraded("vehicles for summary", vehicles, err)

	cities := clientCitySet(sedes)
	totalVehiculos, activos := 0, 0
	for _, v := range vehicles {
		if vehicleTypeExcluded(v.Type) {
			continue
		}
		if upstreamID == "" && !vehicleBelongsToClient(v, id, cities) {
			continue
		}
		totalVehiculos++
		if v.Active {
			activos++
		}
	}

	people, err := CF.People(ctx)
	conductores, auxiliares := 0, 0
	for _, p := range degraded("people for summary", people, err) {
		if textnorm.LooksCorporate(p.Name) {
			continue
		}
		switch {
		case strings.Contains(strings.ToUpper(p.Role), "CONDUCTOR"):
			conductores++
		case strings.Contains(strings.ToUpper(p.Role), "AUXILIAR"):
			auxiliares++
		}
	}

	rutas := listRoutes(ctx, CF, RouteFilter{ClienteID: id, ClienteNombre: nombre}, true)
	rutasActivas := 0
	for _, rt := range rutas {
		if rt.Activa {
			rutasActivas++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"clienteId":        id,
		"cliente":          nombre,
		"sedes":            len(sedes),
		"vehiculos":        totalVehiculos,
		"vehiculosActivos": activos,
		"conductores":      conductores,
		"auxiliares":       auxiliares,
		"rutas":            len(rutas),
		"rutasActivas":     rutasActivas,
	})
}

// GetCupo returns the suggested daily quota for a client/site/date.
func GetCupo(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cliente := q.Get("cliente")
	sede := q.Get("sede")
	fecha := q.Get("fecha")
	if cliente == "" || sede == "" || fecha == "" {
		writeError(w, http.StatusBadRequest, "cliente, sede y fecha son requeridos")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cliente": cliente,
		"sede":    sede,
		"fecha":   fecha,
		"cupo":    quota.ForDate(cliente, sede, fecha),
	})
}
