package store

import (
	"fmt"
	"strings"
	"sync"
)

// Artifact is one offered data artifact and its current bytes.
type Artifact struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Data  []byte `json:"-"`
}

// Resource is one offered resource: metadata plus the artifacts it owns.
type Resource struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Artifacts   []Artifact `json:"artifacts"`
}

// Catalog holds the connector's offered resources. Read-mostly; the
// provider handlers and the registration dispatcher both consult it.
type Catalog struct {
	mu         sync.RWMutex
	resources  map[string]Resource
	byArtifact map[string]string
	order      []string
}

func NewCatalog() *Catalog {
	return &Catalog{
		resources:  make(map[string]Resource),
		byArtifact: make(map[string]string),
	}
}

// Add registers one offered resource. Artifact ids must be unique across
// the whole catalog because rule targets reference them globally.
func (c *Catalog) Add(res Resource) error {
	if strings.TrimSpace(res.ID) == "" {
		return fmt.Errorf("store: resource without id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.resources[res.ID]; ok {
		return fmt.Errorf("store: duplicate resource %s", res.ID)
	}
	for _, a := range res.Artifacts {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("store: resource %s has artifact without id", res.ID)
		}
		if _, ok := c.byArtifact[a.ID]; ok {
			return fmt.Errorf("store: duplicate artifact %s", a.ID)
		}
	}
	c.resources[res.ID] = res
	c.order = append(c.order, res.ID)
	for _, a := range res.Artifacts {
		c.byArtifact[a.ID] = res.ID
	}
	return nil
}

// Resource returns one offered resource by id.
func (c *Catalog) Resource(id string) (Resource, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.resources[id]
	return res, ok
}

// OwnerOf returns the resource owning an artifact.
func (c *Catalog) OwnerOf(artifactID string) (Resource, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	resID, ok := c.byArtifact[artifactID]
	if !ok {
		return Resource{}, false
	}
	return c.resources[resID], true
}

// ArtifactData returns the current bytes of one offered artifact.
func (c *Catalog) ArtifactData(artifactID string) ([]byte, bool) {
	res, ok := c.OwnerOf(artifactID)
	if !ok {
		return nil, false
	}
	for _, a := range res.Artifacts {
		if a.ID == artifactID {
			return a.Data, true
		}
	}
	return nil, false
}

// List returns all offered resources in registration order.
func (c *Catalog) List() []Resource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Resource, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.resources[id])
	}
	return out
}
