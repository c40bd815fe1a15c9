package whatsapp

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	TemplateOrderConfirmation  = "order_confirmation"
	TemplateNewOrderKitchen    = "new_order_kitchen"
	TemplateDeliveryAssignment = "delivery_assignment"
	TemplateDeliveryCompleted  = "delivery_completed"
	TemplateOrderStatusUpdate  = "order_status_update"
)

//go:embed templates.yaml
var defaultCatalog []byte

// Template identifies an approved message template.
type Template struct {
	Name     string `yaml:"name"`
	Language string `yaml:"language"`
}

// Catalog maps logical template keys to approved templates and holds the
// customer-facing status messages.
type Catalog struct {
	Language       string              `yaml:"language"`
	Templates      map[string]Template `yaml:"templates"`
	StatusMessages map[string]string   `yaml:"status_messages"`
}

// DefaultCatalog returns the catalog compiled into the binary.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog file, falling back to the embedded default when
// path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template catalog %q: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes YAML catalog data.
func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("decode template catalog: %w", err)
	}
	if catalog.Language == "" {
		catalog.Language = "en_US"
	}
	for _, key := range []string{
		TemplateOrderConfirmation,
		TemplateNewOrderKitchen,
		TemplateDeliveryAssignment,
		TemplateOrderStatusUpdate,
	} {
		if _, ok := catalog.Templates[key]; !ok {
			return nil, fmt.Errorf("template catalog missing %q", key)
		}
	}
	return &catalog, nil
}

// Template resolves a logical key. Unknown keys are sent under their own name.
func (c *Catalog) Template(key string) Template {
	tpl, ok := c.Templates[key]
	if !ok || tpl.Name == "" {
		tpl.Name = key
	}
	if tpl.Language == "" {
		tpl.Language = c.Language
	}
	return tpl
}

// StatusMessage returns the human readable message for an order status.
func (c *Catalog) StatusMessage(status string) string {
	if msg, ok := c.StatusMessages[status]; ok && msg != "" {
		return msg
	}
	return status
}
