package capability

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// bindingDoc is the YAML shape of a bindings override file.
type bindingDoc struct {
	Bindings []struct {
		Name   string   `yaml:"name"`
		Method string   `yaml:"method"`
		URL    string   `yaml:"url"`
		Params []string `yaml:"params"`
	} `yaml:"bindings"`
}

// LoadBindings reads endpoint bindings from a YAML file.
func LoadBindings(path string) ([]HTTPBinding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bindings: %w", err)
	}
	var doc bindingDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse bindings: %w", err)
	}
	out := make([]HTTPBinding, 0, len(doc.Bindings))
	for _, b := range doc.Bindings {
		if b.Name == "" || b.URL == "" {
			return nil, fmt.Errorf("binding requires name and url: %+v", b)
		}
		out = append(out, HTTPBinding{Name: b.Name, Method: b.Method, URL: b.URL, Params: b.Params})
	}
	return out, nil
}

// DefaultBindings is the fixed operation catalog against the platform API.
// URLs are relative; BuildRegistry prefixes the configured base URL.
func DefaultBindings() []HTTPBinding {
	return []HTTPBinding{
		{Name: "people.list", Method: "GET", URL: "/people", Params: []string{"locationId", "max"}},
		{Name: "people.get", Method: "GET", URL: "/people/{personId}", Params: []string{"personId"}},
		{Name: "locations.list", Method: "GET", URL: "/locations", Params: []string{"max"}},
		{Name: "licenses.list", Method: "GET", URL: "/licenses", Params: nil},
		{Name: "licenses.assign", Method: "PATCH", URL: "/licenses/users", Params: []string{"personId", "licenseId"}},
		{Name: "groups.list", Method: "GET", URL: "/groups", Params: nil},
		{Name: "workspaces.list", Method: "GET", URL: "/workspaces", Params: []string{"locationId"}},
		{Name: "telephony.queues.list", Method: "GET", URL: "/telephony/config/queues", Params: []string{"locationId"}},
		{Name: "telephony.queues.members.list", Method: "GET", URL: "/telephony/config/queues/{queueId}/members", Params: []string{"queueId"}},
		{Name: "telephony.queues.members.add", Method: "PUT", URL: "/telephony/config/queues/{queueId}/members", Params: []string{"queueId", "personId"}},
		{Name: "telephony.autoattendants.list", Method: "GET", URL: "/telephony/config/autoAttendants", Params: []string{"locationId"}},
		{Name: "telephony.virtuallines.list", Method: "GET", URL: "/telephony/config/virtualLines", Params: nil},
		{Name: "telephony.numbers.get", Method: "GET", URL: "/people/{personId}/features/numbers", Params: []string{"personId"}},
		{Name: "telephony.numbers.update", Method: "PUT", URL: "/people/{personId}/features/numbers", Params: []string{"personId", "locationId", "phoneNumber", "extension"}},
		{Name: "telephony.forwarding.get", Method: "GET", URL: "/people/{personId}/features/callForwarding", Params: []string{"personId"}},
		{Name: "telephony.forwarding.update", Method: "PUT", URL: "/people/{personId}/features/callForwarding", Params: []string{"personId", "enabled", "destination"}},
		{Name: "telephony.voicemail.get", Method: "GET", URL: "/people/{personId}/features/voicemail", Params: []string{"personId"}},
		{Name: "telephony.voicemail.update", Method: "PUT", URL: "/people/{personId}/features/voicemail", Params: []string{"personId", "enabled", "email"}},
		{Name: "telephony.intercept.get", Method: "GET", URL: "/people/{personId}/features/intercept", Params: []string{"personId"}},
		{Name: "telephony.intercept.update", Method: "PUT", URL: "/people/{personId}/features/intercept", Params: []string{"personId", "enabled", "number"}},
		{Name: "telephony.permissions.get", Method: "GET", URL: "/people/{personId}/features/outgoingPermission", Params: []string{"personId"}},
		{Name: "telephony.permissions.update", Method: "PUT", URL: "/people/{personId}/features/outgoingPermission", Params: []string{"personId", "permission"}},
	}
}

// BuildRegistry registers HTTP operations for every binding, resolving
// relative URLs against baseURL.
func BuildRegistry(client *http.Client, token, baseURL string, bindings []HTTPBinding) (*Registry, error) {
	registry := NewRegistry()
	base := strings.TrimRight(baseURL, "/")
	for _, binding := range bindings {
		if !strings.Contains(binding.URL, "://") {
			binding.URL = base + "/" + strings.TrimLeft(binding.URL, "/")
		}
		if err := registry.Register(NewHTTPOperation(client, token, binding)); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
