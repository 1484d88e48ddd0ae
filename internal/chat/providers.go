package chat

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider is an OpenAI-compatible chat endpoint.
type Provider struct {
	Name               string `yaml:"name" json:"name"`
	BaseURL            string `yaml:"base_url" json:"baseUrl"`
	Model              string `yaml:"model" json:"model"`
	IsLocal            bool   `yaml:"is_local" json:"isLocal,omitempty"`
	DefaultBaseURL     string `yaml:"default_base_url" json:"defaultBaseUrl,omitempty"`
	SupportsModelList  bool   `yaml:"supports_model_list" json:"supportsModelList,omitempty"`
	RequiresModelInput bool   `yaml:"requires_model_input" json:"requiresModelInput,omitempty"`
}

// OtherCompatible is the catch-all provider whose base URL and model are
// supplied by the user.
const OtherCompatible = "Other OpenAI Compatible"

// BuiltinProviders returns the default catalog.
func BuiltinProviders() []Provider {
	return []Provider{
		{Name: "ChatGPT", BaseURL: "https://api.openai.com/v1", Model: "gpt-4", SupportsModelList: true},
		{Name: "Google AI", BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai", Model: "gemini-2.0-flash-exp", SupportsModelList: true},
		{Name: "Groq", BaseURL: "https://api.groq.com/openai/v1", Model: "llama-3.1-8b-instant", SupportsModelList: true},
		{Name: "OpenRouter", BaseURL: "https://openrouter.ai/api/v1", Model: "openai/gpt-4-turbo", SupportsModelList: true},
		{Name: "Ollama", BaseURL: "http://127.0.0.1:11434/v1", DefaultBaseURL: "http://127.0.0.1:11434/v1", Model: "llama2", IsLocal: true, SupportsModelList: true},
		{Name: "LM Studio", BaseURL: "http://127.0.0.1:1234/v1", DefaultBaseURL: "http://127.0.0.1:1234/v1", Model: "default", IsLocal: true, SupportsModelList: true},
		{Name: OtherCompatible, IsLocal: true, RequiresModelInput: true},
	}
}

// Catalog is an ordered set of providers addressed by case-insensitive name.
type Catalog struct {
	providers []Provider
}

type catalogFile struct {
	Providers []Provider `yaml:"providers"`
}

// NewCatalog returns a catalog over the given providers.
func NewCatalog(providers []Provider) *Catalog {
	return &Catalog{providers: append([]Provider(nil), providers...)}
}

// LoadCatalog returns the built-in catalog merged with the YAML file at path.
// Entries in the file replace built-ins of the same name; new names are
// appended. An empty path yields the built-ins.
func LoadCatalog(path string) (*Catalog, error) {
	c := NewCatalog(BuiltinProviders())
	if strings.TrimSpace(path) == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file %s: %w", path, err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse providers file %s: %w", path, err)
	}
	for _, p := range file.Providers {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("providers file %s: entry without name", path)
		}
		c.put(p)
	}
	return c, nil
}

func (c *Catalog) put(p Provider) {
	for i := range c.providers {
		if strings.EqualFold(c.providers[i].Name, p.Name) {
			c.providers[i] = p
			return
		}
	}
	c.providers = append(c.providers, p)
}

// Providers returns a copy of the catalog in order.
func (c *Catalog) Providers() []Provider {
	return append([]Provider(nil), c.providers...)
}

// Lookup finds a provider by name.
func (c *Catalog) Lookup(name string) (Provider, bool) {
	for _, p := range c.providers {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return p, true
		}
	}
	return Provider{}, false
}

// ErrUnknownProvider is returned by Resolve for names not in the catalog.
var ErrUnknownProvider = errors.New("unknown provider")

// Resolve looks up name and applies the optional base URL and model
// overrides, then checks the result is usable.
func (c *Catalog) Resolve(name, baseURL, model string) (Provider, error) {
	p, ok := c.Lookup(name)
	if !ok {
		return Provider{}, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	if v := strings.TrimSpace(baseURL); v != "" {
		p.BaseURL = v
	}
	if v := strings.TrimSpace(model); v != "" {
		p.Model = v
	}
	if p.BaseURL == "" {
		p.BaseURL = p.DefaultBaseURL
	}
	p.BaseURL = strings.TrimRight(p.BaseURL, "/")
	if p.BaseURL == "" {
		return Provider{}, fmt.Errorf("provider %q needs a base url", p.Name)
	}
	if p.Model == "" {
		return Provider{}, fmt.Errorf("provider %q needs a model", p.Name)
	}
	return p, nil
}
