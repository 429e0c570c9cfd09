package parts

import "fmt"

// Part describes a serviceable spare part tracked by the workshop.
type Part struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Stock    int    `json:"stock"`
	Location string `json:"location"`
}

// Describe renders the one-line inventory summary spoken back to the agent.
func (p Part) Describe() string {
	if p.Stock <= 0 {
		return fmt.Sprintf("part %s (%s) is out of stock", p.ID, p.Name)
	}
	return fmt.Sprintf("part %s (%s): %d in stock at %s", p.ID, p.Name, p.Stock, p.Location)
}

// Store exposes part lookup for tool handlers.
type Store interface {
	List() []Part
	FindByID(id string) (Part, bool)
}

// MemoryStore implements Store with an in-memory slice, suitable for MVP.
type MemoryStore struct {
	items []Part
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied parts.
func NewMemoryStore(items []Part) *MemoryStore {
	return &MemoryStore{items: append([]Part(nil), items...)}
}

// List returns the known part list.
func (s *MemoryStore) List() []Part {
	return append([]Part(nil), s.items...)
}

// FindByID looks up a part by identifier.
func (s *MemoryStore) FindByID(id string) (Part, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Part{}, false
}

// Seed returns the default demo inventory.
func Seed() []Part {
	return []Part{
		{ID: "X1", Name: "hydraulic valve", Stock: 12, Location: "aisle 3"},
		{ID: "X2", Name: "drive belt", Stock: 4, Location: "aisle 1"},
		{ID: "B7", Name: "bearing kit", Stock: 0, Location: "aisle 5"},
		{ID: "F3", Name: "fuel filter", Stock: 27, Location: "aisle 2"},
	}
}
