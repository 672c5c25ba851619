// Package selfdesc defines the JSON description documents exchanged as
// payloads of description messages: the connector self-description and the
// per-resource description.
package selfdesc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidDescription = errors.New("selfdesc: invalid description document")

// Connector is the self-description a connector publishes about itself.
type Connector struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	ModelVersion string     `json:"modelVersion"`
	Resources    []Resource `json:"resources,omitempty"`
}

// Resource describes one offered resource and the artifact URIs it owns.
type Resource struct {
	ID          string   `json:"id"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Artifacts   []string `json:"artifacts,omitempty"`
}

func (c Connector) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: missing connector id", ErrInvalidDescription)
	}
	if strings.TrimSpace(c.ModelVersion) == "" {
		return fmt.Errorf("%w: missing model version", ErrInvalidDescription)
	}
	return nil
}

func (r Resource) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: missing resource id", ErrInvalidDescription)
	}
	return nil
}

func (c Connector) Encode() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.MarshalIndent(c, "", "  ")
}

func (r Resource) Encode() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return json.MarshalIndent(r, "", "  ")
}

func DecodeConnector(raw []byte) (Connector, error) {
	var c Connector
	if err := json.Unmarshal(raw, &c); err != nil {
		return Connector{}, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}
	if err := c.Validate(); err != nil {
		return Connector{}, err
	}
	return c, nil
}

func DecodeResource(raw []byte) (Resource, error) {
	var r Resource
	if err := json.Unmarshal(raw, &r); err != nil {
		return Resource{}, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}
	if err := r.Validate(); err != nil {
		return Resource{}, err
	}
	return r, nil
}
