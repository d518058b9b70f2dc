package host

import (
	"github.com/dshills/modhost/internal/loader"
	"github.com/dshills/modhost/pkg/object"
	"github.com/dshills/modhost/pkg/registry"
)

// ClassCensus is the class id of the host's census reader.
const ClassCensus registry.ClassID = "modhost.Census"

// CapCensus is the capability exposed by ClassCensus instances.
const CapCensus object.CapabilityID = "modhost.census"

// CensusReader reads the object census of the running host.
type CensusReader interface {
	Total() object.Counters
	Module(m object.Module) object.Counters
}

type censusObject struct {
	object.Base
	census *object.Census
}

func (c *censusObject) Total() object.Counters {
	return c.census.Total()
}

func (c *censusObject) Module(m object.Module) object.Counters {
	return c.census.Module(m)
}

// builtin is the host's own module. Its classes are owned by
// object.HostModule.
func (h *Host) builtin() loader.Static {
	return loader.Static{
		Name:   "host",
		Module: object.HostModule,
		Register: func(r *registry.Registrar) error {
			return r.Register(ClassCensus, func() (object.Object, error) {
				c := &censusObject{census: r.Census()}
				r.Init(&c.Base, c, object.WithClassID(string(ClassCensus)))
				c.Expose(CapCensus, CensusReader(c))
				return c, nil
			})
		},
	}
}
