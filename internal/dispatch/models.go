package dispatch

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/CCMOperaciones/Dispatch-Backend/internal/dispatch/cloudfleet"
)

// ---- Read-side DTOs ----
//
// Everything the planning front end consumes is a projection of CloudFleet
// data into these shapes; field names match the UI's Spanish vocabulary.
// None of these carry local identity except the persisted models below.

// Cliente is a customer. Sintetico marks clients reconstructed from vehicle
// cost centers when CloudFleet's customer collection comes back empty.
type Cliente struct {
	ID        string         `json:"id"`
	Nombre    string         `json:"nombre"`
	Email     string         `json:"email,omitempty"`
	Telefono  string         `json:"telefono,omitempty"`
	Contacto  string         `json:"contacto,omitempty"`
	Sintetico bool           `json:"sintetico,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Sede is a client site. Virtual marks city-derived synthetic sites; Forzada
// marks sites appended from the quota table's expected footprint.
type Sede struct {
	ID        string `json:"id"`
	ClienteID string `json:"clienteId,omitempty"`
	Nombre    string `json:"nombre"`
	Ciudad    string `json:"ciudad,omitempty"`
	Direccion string `json:"direccion,omitempty"`
	Telefono  string `json:"telefono,omitempty"`
	Virtual   bool   `json:"virtual,omitempty"`
	Forzada   bool   `json:"forzada,omitempty"`
}

// RutaVia is one waypoint on a route, keeping the raw source object for
// debugging pass-through.
type RutaVia struct {
	Code string          `json:"code"`
	Name string          `json:"name,omitempty"`
	Raw  json.RawMessage `json:"raw,omitempty"`
}

// Ruta is a route, native or reconstructed from travel history. Identity for
// dedup purposes is (Codigo, Origen, Destino); reconstructed routes carry no
// stable upstream id.
type Ruta struct {
	ID           string    `json:"id,omitempty"`
	ClienteID    string    `json:"clienteId,omitempty"`
	SedeID       string    `json:"sedeId,omitempty"`
	Codigo       string    `json:"codigo"`
	Nombre       string    `json:"nombre"`
	Origen       string    `json:"origen,omitempty"`
	Destino      string    `json:"destino,omitempty"`
	Distancia    float64   `json:"distancia,omitempty"`
	Activa       bool      `json:"activa"`
	ViaPrincipal string    `json:"viaPrincipal,omitempty"`
	Vias         []string  `json:"vias"`
	ViasDetalle  []RutaVia `json:"viasDetalle,omitempty"`
}

// Vehiculo is a vehicle.
type Vehiculo struct {
	ID          string  `json:"id"`
	SedeID      string  `json:"sedeId,omitempty"`
	Codigo      string  `json:"codigo"`
	Placa       string  `json:"placa,omitempty"`
	Tipo        string  `json:"tipo,omitempty"`
	Capacidad   float64 `json:"capacidad,omitempty"`
	Ciudad      string  `json:"ciudad,omitempty"`
	Activo      bool    `json:"activo"`
	ClienteID   string  `json:"clienteId,omitempty"`
	CentroCosto string  `json:"centroCosto,omitempty"`
}

// Persona is a driver, assistant or other staff member.
type Persona struct {
	ID        string `json:"id"`
	SedeID    string `json:"sedeId,omitempty"`
	Nombre    string `json:"nombre"`
	Rol       string `json:"rol,omitempty"`
	Documento string `json:"documento,omitempty"`
	Telefono  string `json:"telefono,omitempty"`
	Ciudad    string `json:"ciudad,omitempty"`
	Activo    bool   `json:"activo"`
}

// ---- CloudFleet -> DTO projections ----

func clienteFromCustomer(c cloudfleet.Customer) Cliente {
	return Cliente{
		ID:       c.ID.String(),
		Nombre:   c.Name,
		Email:    c.Email,
		Telefono: c.Phone,
		Contacto: c.Contact,
		Extra:    c.Extra,
	}
}

func sedeFromLocation(l cloudfleet.Location) Sede {
	return Sede{
		ID:        l.ID.String(),
		ClienteID: l.CustomerID.String(),
		Nombre:    l.Name,
		Ciudad:    l.City,
		Direccion: l.Address,
		Telefono:  l.Phone,
	}
}

func vehiculoFromVehicle(v cloudfleet.Vehicle) Vehiculo {
	out := Vehiculo{
		ID:        v.ID.String(),
		SedeID:    v.LocationID.String(),
		Codigo:    v.Code,
		Placa:     v.Plate,
		Tipo:      v.Type,
		Capacidad: v.Capacity,
		Ciudad:    v.City,
		Activo:    v.Active,
		ClienteID: v.CustomerID.String(),
	}
	if v.CostCenter != nil {
		out.CentroCosto = v.CostCenter.Name
		if out.CentroCosto == "" {
			out.CentroCosto = v.CostCenter.Code
		}
	}
	return out
}

func personaFromPerson(p cloudfleet.Person) Persona {
	return Persona{
		ID:        p.ID.String(),
		SedeID:    p.LocationID.String(),
		Nombre:    p.Name,
		Rol:       p.Role,
		Documento: p.Document,
		Telefono:  p.Phone,
		Ciudad:    p.City,
		Activo:    p.Active,
	}
}

func rutaFromRoute(r cloudfleet.Route) Ruta {
	out := Ruta{
		ID:        r.ID.String(),
		ClienteID: r.CustomerID.String(),
		SedeID:    r.LocationID.String(),
		Codigo:    r.Code,
		Nombre:    r.Name,
		Origen:    r.Origin.Display(),
		Destino:   r.Destination.Display(),
		Distancia: r.Distance,
		Activa:    r.Active,
		Vias:      []string{},
	}
	if r.Via != nil {
		out.ViaPrincipal = r.Via.Code
	}
	addVia := func(v cloudfleet.Via) {
		code := v.Code
		if code == "" {
			code = v.Name
		}
		if code == "" {
			return
		}
		for _, existing := range out.Vias {
			if existing == code {
				return
			}
		}
		out.Vias = append(out.Vias, code)
		out.ViasDetalle = append(out.ViasDetalle, RutaVia{Code: code, Name: v.Name, Raw: v.Raw})
	}
	if r.Via != nil {
		addVia(*r.Via)
	}
	for _, v := range r.Vias {
		addVia(v)
	}
	return out
}

// ---- Persisted models (schema "dispatch") ----

// Viaje is a persisted trip header produced by the auto-scheduler. IDs are
// assigned with uuid.NewString at creation.
type Viaje struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	ClienteID string    `gorm:"index" json:"clienteId"`
	SedeID    string    `gorm:"index" json:"sedeId"`
	Fecha     string    `gorm:"type:date;index" json:"fecha"`
	Estado    string    `gorm:"default:borrador" json:"estado"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Detalles []ViajeDetalle `gorm:"foreignKey:ViajeID" json:"detalles,omitempty"`
}

func (Viaje) TableName() string { return "dispatch.viajes" }

// ViajeDetalle is one assignment row of a trip. Resource columns are nullable
// because the greedy scheduler leaves unfilled slots open on purpose.
type ViajeDetalle struct {
	ID          string         `gorm:"type:uuid;primaryKey" json:"id"`
	ViajeID     string         `gorm:"type:uuid;index" json:"viajeId"`
	Orden       int            `json:"orden"`
	RutaCodigo  *string        `json:"rutaCodigo,omitempty"`
	VehiculoID  *string        `json:"vehiculoId,omitempty"`
	ConductorID *string        `json:"conductorId,omitempty"`
	AuxiliarID  *string        `json:"auxiliarId,omitempty"`
	Vias        pq.StringArray `gorm:"type:text[]" json:"vias,omitempty"`
}

func (ViajeDetalle) TableName() string { return "dispatch.viaje_detalle" }

// Borrador is a draft schedule payload keyed by (cliente, sede, fecha,
// estado). At most one active DRAFT row per key: writes with a matching key
// update the payload in place.
type Borrador struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	ClienteID string    `gorm:"index:idx_borrador_key" json:"clienteId"`
	SedeID    string    `gorm:"index:idx_borrador_key" json:"sedeId"`
	Fecha     string    `gorm:"type:date;index:idx_borrador_key" json:"fecha"`
	Estado    string    `gorm:"default:DRAFT;index:idx_borrador_key" json:"estado"`
	Payload   string    `gorm:"type:jsonb" json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Borrador) TableName() string { return "dispatch.borradores" }
