package object

import (
	"github.com/google/uuid"
)

// hostNamespace seeds the stable identifier of the host module.
var hostNamespace = uuid.MustParse("8c6f3f0e-2a61-4d7e-9a5b-3f1f5e0d6a10")

// HostModule is the handle of the host process itself.
var HostModule = Module{id: uuid.NewSHA1(hostNamespace, []byte("host")), name: "host"}

// Module identifies one loaded module image. Module values are comparable;
// two handles are equal only if they were produced by the same NewModule
// call (or are both HostModule). The zero value means "no module".
type Module struct {
	id   uuid.UUID
	name string
}

// NewModule returns a fresh handle with a unique identifier.
func NewModule(name string) Module {
	return Module{id: uuid.New(), name: name}
}

// ID returns the unique identifier of the module.
func (m Module) ID() uuid.UUID {
	return m.id
}

// Name returns the display name given at creation.
func (m Module) Name() string {
	return m.name
}

// IsZero reports whether m is the zero handle.
func (m Module) IsZero() bool {
	return m.id == uuid.Nil
}

// String returns "name(id)" or "<none>" for the zero handle.
func (m Module) String() string {
	if m.IsZero() {
		return "<none>"
	}
	return m.name + "(" + m.id.String()[:8] + ")"
}
