package bridge

import "github.com/devadigapratham/pandaprint/api/models"

// Registry resolves printer names to their immutable descriptors
type Registry interface {
	Lookup(name string) (*models.Printer, bool)
	Printers() []*models.Printer
}

// StaticRegistry is a Registry built once from configuration. It is never
// mutated after construction and needs no locking.
type StaticRegistry struct {
	printers []*models.Printer
	byName   map[string]*models.Printer
}

// NewStaticRegistry copies printers into a new registry
func NewStaticRegistry(printers []models.Printer) *StaticRegistry {
	r := &StaticRegistry{
		printers: make([]*models.Printer, 0, len(printers)),
		byName:   make(map[string]*models.Printer, len(printers)),
	}
	for i := range printers {
		p := printers[i]
		r.printers = append(r.printers, &p)
		r.byName[p.Name] = &p
	}
	return r
}

// Lookup returns the printer with the given name
func (r *StaticRegistry) Lookup(name string) (*models.Printer, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Printers returns every printer in configuration order
func (r *StaticRegistry) Printers() []*models.Printer {
	return append([]*models.Printer(nil), r.printers...)
}
