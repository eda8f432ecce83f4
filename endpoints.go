package genaistream

import (
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"
)

//go:embed config/endpoints.yaml
var defaultEndpointsYAML []byte

// Endpoint registry philosophy:
//
// The registry describes the known backend apps: which environment variable holds the
// URL, which transport and decoder variant to use, and where the prompt goes in the body.
// URLs are opaque injected configuration; only an empty value is rejected.
//
// Library users can override the embedded definitions by:
//  1. Calling LoadEndpointsFromFile() with a YAML or TOML file
//  2. Calling RegisterEndpoint() programmatically

// EndpointConfig is the file format of an endpoint definition set.
type EndpointConfig struct {
	Version     string      `yaml:"version" toml:"version"`           // Semantic version (e.g., "1.0.0")
	LastUpdated string      `yaml:"last_updated" toml:"last_updated"` // ISO 8601 date
	Limits      ParamLimits `yaml:"limits" toml:"limits"`
	Endpoints   []Endpoint  `yaml:"endpoints" toml:"endpoints"`
}

// ParamLimits bounds generation parameters for warnings.
type ParamLimits struct {
	TemperatureMin  float64 `yaml:"temperature_min" toml:"temperature_min"`
	TemperatureMax  float64 `yaml:"temperature_max" toml:"temperature_max"`
	TopPMin         float64 `yaml:"top_p_min" toml:"top_p_min"`
	TopPMax         float64 `yaml:"top_p_max" toml:"top_p_max"`
	TopKMin         int     `yaml:"top_k_min" toml:"top_k_min"`
	TopKMax         int     `yaml:"top_k_max" toml:"top_k_max"`
	MaxNewTokensMax int     `yaml:"max_new_tokens_max" toml:"max_new_tokens_max"`
}

// Endpoint describes one backend app.
type Endpoint struct {
	Name         string      `yaml:"name" toml:"name"`
	Description  string      `yaml:"description" toml:"description"`
	EnvVar       string      `yaml:"env_var" toml:"env_var"`
	Transport    TransportID `yaml:"transport" toml:"transport"`
	Variant      Variant     `yaml:"variant" toml:"variant"`
	Method       string      `yaml:"method" toml:"method"`               // defaults to POST
	PayloadField string      `yaml:"payload_field" toml:"payload_field"` // body field carrying the prompt
	Multipart    bool        `yaml:"multipart" toml:"multipart"`         // send multipart/form-data instead of JSON
	Streaming    bool        `yaml:"streaming" toml:"streaming"`         // false for single-shot JSON endpoints
	Limits       ParamLimits `yaml:"-" toml:"-"`                         // copied from the file-level limits
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// Resolve reads the endpoint URL from the environment (os.LookupEnv when lookup is nil).
func (e *Endpoint) Resolve(lookup LookupFunc) (string, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	url, _ := lookup(e.EnvVar)
	url = strings.TrimSpace(url)
	if url == "" {
		return "", fmt.Errorf("%w: %s (set %s)", ErrEndpointNotConfigured, e.Name, e.EnvVar)
	}
	return url, nil
}

// NewRequest builds the request for one prompt. Multipart endpoints get the prompt as a
// form field next to files; JSON endpoints get {payload_field: prompt} plus params.
func (e *Endpoint) NewRequest(url, prompt string, params *GenerationParams, files ...FormFile) (*StreamRequest, error) {
	field := e.PayloadField
	if field == "" {
		field = "messages"
	}

	var (
		req *StreamRequest
		err error
	)
	if e.Multipart {
		if err := ValidateGenerationParams(params); err != nil {
			return nil, err
		}
		fields := map[string]string{field: prompt}
		for k, v := range params.formFields() {
			fields[k] = v
		}
		req, err = NewFormRequest(url, fields, files)
	} else {
		body, serr := sjson.SetBytes([]byte("{}"), field, prompt)
		if serr != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, serr)
		}
		req, err = NewJSONRequest(url, body, params)
	}
	if err != nil {
		return nil, err
	}

	req.Method = e.method()
	if !e.Streaming {
		req.Headers["Accept"] = ContentTypeJSON
	} else if e.Variant.IsFramed() {
		req.Headers["Accept"] = ContentTypeEventStream
	} else {
		delete(req.Headers, "Accept")
	}
	return req, nil
}

// method returns the effective HTTP method.
func (e *Endpoint) method() string {
	if e.Method == "" {
		return http.MethodPost
	}
	return strings.ToUpper(e.Method)
}

// EndpointRegistry manages endpoint definitions
type EndpointRegistry struct {
	endpoints map[string]*Endpoint
	mu        sync.RWMutex
}

var (
	globalEndpoints     *EndpointRegistry
	globalEndpointsOnce sync.Once
)

// GetEndpointRegistry returns the global endpoint registry (singleton)
func GetEndpointRegistry() *EndpointRegistry {
	globalEndpointsOnce.Do(func() {
		globalEndpoints = NewEndpointRegistry()
		// the embedded file is part of the build; failing to parse it is a programming error
		if err := globalEndpoints.load(defaultEndpointsYAML, ".yaml"); err != nil {
			panic(fmt.Sprintf("genaistream: embedded endpoints: %v", err))
		}
	})
	return globalEndpoints
}

// NewEndpointRegistry creates an empty registry.
func NewEndpointRegistry() *EndpointRegistry {
	return &EndpointRegistry{endpoints: make(map[string]*Endpoint)}
}

// Get returns the endpoint with the given name.
func (r *EndpointRegistry) Get(name string) (*Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ep, ok := r.endpoints[name]
	if !ok {
		return nil, fmt.Errorf("no endpoint registered with name: %s", name)
	}
	return ep, nil
}

// Names returns the registered endpoint names, sorted.
func (r *EndpointRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// LoadFromFile loads endpoint definitions from a .yaml, .yml or .toml file.
// Endpoints with the same name replace the registered ones.
func (r *EndpointRegistry) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read endpoints file: %w", err)
	}
	return r.load(data, strings.ToLower(filepath.Ext(path)))
}

// Register adds or replaces one endpoint.
func (r *EndpointRegistry) Register(ep *Endpoint) error {
	if err := validateEndpoint(ep); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[ep.Name] = ep
	return nil
}

func (r *EndpointRegistry) load(data []byte, ext string) error {
	var cfg EndpointConfig
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("failed to unmarshal endpoints: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("failed to unmarshal endpoints: %w", err)
		}
	default:
		return fmt.Errorf("unsupported endpoints file format: %q", ext)
	}

	for i := range cfg.Endpoints {
		ep := cfg.Endpoints[i]
		ep.Limits = cfg.Limits
		if err := r.Register(&ep); err != nil {
			return err
		}
	}
	return nil
}

func validateEndpoint(ep *Endpoint) error {
	if ep == nil || ep.Name == "" {
		return &ValidationError{Field: "name", Value: "", Reason: "endpoint name is required", Err: ErrInvalidRequest}
	}
	if ep.EnvVar == "" {
		return &ValidationError{Field: "env_var", Value: ep.Name, Reason: "endpoint needs an environment variable", Err: ErrInvalidRequest}
	}
	if !ep.Transport.IsValid() {
		return &ValidationError{Field: "transport", Value: ep.Transport, Reason: "unknown transport", Err: ErrInvalidRequest}
	}
	if !ep.Variant.IsValid() {
		return fmt.Errorf("endpoint %s: %w: %q", ep.Name, ErrUnknownVariant, string(ep.Variant))
	}
	return nil
}

// LookupEndpoint is a convenience function that calls the global registry's Get.
func LookupEndpoint(name string) (*Endpoint, error) {
	return GetEndpointRegistry().Get(name)
}

// LoadEndpointsFromFile is a convenience function that calls the global registry's LoadFromFile.
func LoadEndpointsFromFile(path string) error {
	return GetEndpointRegistry().LoadFromFile(path)
}

// RegisterEndpoint is a convenience function that calls the global registry's Register.
func RegisterEndpoint(ep *Endpoint) error {
	return GetEndpointRegistry().Register(ep)
}
