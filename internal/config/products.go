package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ProductConfig describes one cube product backed by a STAC collection. It is
// loaded from JSON files in the products directory.
type ProductConfig struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	// Collection is the STAC collection searched for tiles.
	Collection string `json:"collection"`
	// Irregular products store tiles on a 2D geolocation grid and are
	// rectified before mosaicking.
	Irregular bool `json:"irregular,omitempty"`
	// SearchByIntersects sends a GeoJSON polygon instead of a bbox.
	SearchByIntersects bool `json:"search_by_intersects,omitempty"`
	// AcquisitionDedup keeps one of the NT/NR versions of each acquisition.
	AcquisitionDedup bool `json:"acquisition_dedup,omitempty"`
	// NativeResolutions are the pixel sizes of the product's native grids.
	NativeResolutions []float64          `json:"native_resolutions"`
	TileSize          int                `json:"tile_size,omitempty"`
	Variables         []VariableConfig   `json:"variables"`
	Geolocation       *GeolocationConfig `json:"geolocation,omitempty"`
	// Query is merged into every catalog search using the STAC query extension.
	Query   map[string]any `json:"query,omitempty"`
	License string         `json:"license,omitempty"`
}

// VariableConfig maps a cube variable onto an item asset.
type VariableConfig struct {
	Name        string   `json:"name"`
	Asset       string   `json:"asset"`
	DataType    string   `json:"data_type"`
	Categorical bool     `json:"categorical,omitempty"`
	Resolution  float64  `json:"resolution,omitempty"`
	NoData      *float64 `json:"nodata,omitempty"`
}

// GeolocationConfig names the longitude and latitude assets of irregular
// products.
type GeolocationConfig struct {
	Lon string `json:"lon"`
	Lat string `json:"lat"`
}

// Variable returns the variable named name.
func (p *ProductConfig) Variable(name string) (VariableConfig, bool) {
	for _, v := range p.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return VariableConfig{}, false
}

// VariableNames returns the variable names in declaration order.
func (p *ProductConfig) VariableNames() []string {
	names := make([]string, len(p.Variables))
	for i, v := range p.Variables {
		names[i] = v.Name
	}
	return names
}

// ProductRegistry holds all loaded product configurations indexed by ID.
type ProductRegistry struct {
	products map[string]*ProductConfig
}

// NewProductRegistry creates a new empty product registry.
func NewProductRegistry() *ProductRegistry {
	return &ProductRegistry{
		products: make(map[string]*ProductConfig),
	}
}

// LoadProducts loads product definitions from JSON files in the specified directory.
// Only files with a .json extension are processed.
func LoadProducts(dir string) (*ProductRegistry, error) {
	registry := NewProductRegistry()

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to access products directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("products path %q is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read products directory %q: %w", dir, err)
	}

	loadedCount := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filename := entry.Name()
		if !strings.HasSuffix(strings.ToLower(filename), ".json") {
			continue
		}

		filePath := filepath.Join(dir, filename)
		product, err := loadProductFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load product from %q: %w", filePath, err)
		}

		if err := registry.Add(product); err != nil {
			return nil, fmt.Errorf("failed to add product from %q: %w", filePath, err)
		}

		loadedCount++
	}

	if loadedCount == 0 {
		return nil, fmt.Errorf("no product files found in %q", dir)
	}

	return registry, nil
}

// loadProductFile loads a single product configuration from a JSON file.
func loadProductFile(filePath string) (*ProductConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var product ProductConfig
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if err := ValidateProduct(&product); err != nil {
		return nil, fmt.Errorf("invalid product configuration: %w", err)
	}

	return &product, nil
}

// ValidateProduct checks that a product configuration is valid.
func ValidateProduct(p *ProductConfig) error {
	if p.ID == "" {
		return fmt.Errorf("product ID is required")
	}

	if p.Title == "" {
		return fmt.Errorf("product title is required")
	}

	if p.Collection == "" {
		return fmt.Errorf("product %q must name a STAC collection", p.ID)
	}

	if len(p.NativeResolutions) == 0 {
		return fmt.Errorf("product %q must list at least one native resolution", p.ID)
	}

	for _, r := range p.NativeResolutions {
		if r <= 0 {
			return fmt.Errorf("product %q has non-positive native resolution %g", p.ID, r)
		}
	}

	if p.TileSize < 0 {
		return fmt.Errorf("product %q has negative tile size %d", p.ID, p.TileSize)
	}

	if len(p.Variables) == 0 {
		return fmt.Errorf("product %q must define at least one variable", p.ID)
	}

	seen := make(map[string]bool, len(p.Variables))
	for i, v := range p.Variables {
		if v.Name == "" || v.Asset == "" {
			return fmt.Errorf("variable[%d] of product %q needs a name and an asset", i, p.ID)
		}
		if seen[v.Name] {
			return fmt.Errorf("product %q defines variable %q twice", p.ID, v.Name)
		}
		seen[v.Name] = true
		if v.Resolution < 0 {
			return fmt.Errorf("variable %q of product %q has negative resolution", v.Name, p.ID)
		}
	}

	if p.Irregular && (p.Geolocation == nil || p.Geolocation.Lon == "" || p.Geolocation.Lat == "") {
		return fmt.Errorf("irregular product %q must name its geolocation assets", p.ID)
	}

	return nil
}

// Add registers a product in the registry.
// Returns an error if a product with the same ID already exists.
func (r *ProductRegistry) Add(product *ProductConfig) error {
	if product == nil {
		return fmt.Errorf("cannot add nil product")
	}

	if _, exists := r.products[product.ID]; exists {
		return fmt.Errorf("product with ID %q already exists", product.ID)
	}

	r.products[product.ID] = product
	return nil
}

// Get retrieves a product by ID.
// Returns nil if the product does not exist.
func (r *ProductRegistry) Get(id string) *ProductConfig {
	return r.products[id]
}

// Has checks if a product with the given ID exists in the registry.
func (r *ProductRegistry) Has(id string) bool {
	_, exists := r.products[id]
	return exists
}

// All returns all products in the registry ordered by ID.
func (r *ProductRegistry) All() []*ProductConfig {
	products := make([]*ProductConfig, 0, len(r.products))
	for _, product := range r.products {
		products = append(products, product)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products
}

// IDs returns all product IDs in the registry, sorted.
func (r *ProductRegistry) IDs() []string {
	ids := make([]string, 0, len(r.products))
	for id := range r.products {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of products in the registry.
func (r *ProductRegistry) Count() int {
	return len(r.products)
}

// FindByCollection returns all products backed by the given STAC collection.
func (r *ProductRegistry) FindByCollection(collection string) []*ProductConfig {
	var matches []*ProductConfig
	for _, p := range r.All() {
		if p.Collection == collection {
			matches = append(matches, p)
		}
	}
	return matches
}
