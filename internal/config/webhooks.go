package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentsight/agentsight/internal/notify"
)

// RouteConfig is one webhook notification route from a project
// .agentsight.yaml file.
type RouteConfig struct {
	Name      string            `yaml:"name"`
	URL       string            `yaml:"url"`
	Events    []string          `yaml:"events"`
	Providers []string          `yaml:"providers"`
	Timeout   string            `yaml:"timeout"`
	Secret    string            `yaml:"secret"`
	Headers   map[string]string `yaml:"headers"`
}

func (c *RouteConfig) applyDefaults() {
	if strings.TrimSpace(c.Timeout) == "" {
		c.Timeout = "10s"
	}
}

func (c *RouteConfig) validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("name is required")
	}

	urlStr := strings.TrimSpace(c.URL)
	if urlStr == "" {
		return errors.New("url is required")
	}
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", urlStr, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid url scheme %q (must be http or https)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", urlStr)
	}

	if strings.TrimSpace(c.Timeout) != "" {
		if _, err := time.ParseDuration(strings.TrimSpace(c.Timeout)); err != nil {
			return fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
		}
	}

	for _, ev := range c.Events {
		ev = strings.TrimSpace(ev)
		if ev == "" {
			continue
		}
		if !notify.KnownEvent(ev) {
			return fmt.Errorf("unknown event %q", ev)
		}
	}
	return nil
}

// Route converts the validated config into a notifier route.
func (c *RouteConfig) Route() notify.Route {
	timeout, _ := time.ParseDuration(strings.TrimSpace(c.Timeout))
	return notify.Route{
		Name:      strings.TrimSpace(c.Name),
		URL:       strings.TrimSpace(c.URL),
		Events:    c.Events,
		Providers: c.Providers,
		Timeout:   timeout,
		Secret:    c.Secret,
		Headers:   c.Headers,
	}
}

// ParseNotifyRoutes extracts and validates the `notify:` list from an
// .agentsight.yaml file. Other top-level keys are ignored so the file can
// carry unrelated project configuration.
func ParseNotifyRoutes(yamlBytes []byte) ([]notify.Route, error) {
	if len(bytes.TrimSpace(yamlBytes)) == 0 {
		return nil, nil
	}

	expanded, err := expandEnvPlaceholders(yamlBytes)
	if err != nil {
		return nil, err
	}

	var root yaml.Node
	if err := yaml.Unmarshal(expanded, &root); err != nil {
		return nil, err
	}

	routesNode := findTopLevelYAMLKey(&root, "notify")
	if routesNode == nil {
		return nil, nil
	}
	if routesNode.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("notify: expected a list")
	}

	out := make([]notify.Route, 0, len(routesNode.Content))
	for idx, item := range routesNode.Content {
		raw, err := yaml.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("notify[%d]: marshal: %w", idx, err)
		}

		var rc RouteConfig
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&rc); err != nil {
			return nil, fmt.Errorf("notify[%d]: %w", idx, err)
		}

		rc.applyDefaults()
		if err := rc.validate(); err != nil {
			name := strings.TrimSpace(rc.Name)
			if name == "" {
				name = "(unnamed)"
			}
			return nil, fmt.Errorf("notify[%d] %s: %w", idx, name, err)
		}
		out = append(out, rc.Route())
	}
	return out, nil
}

// LoadProjectRoutes loads notification routes from .agentsight.yaml or
// .agentsight.yml in projectDir. A missing file yields an empty list.
func LoadProjectRoutes(projectDir string) ([]notify.Route, error) {
	paths := []string{
		filepath.Join(projectDir, ".agentsight.yaml"),
		filepath.Join(projectDir, ".agentsight.yml"),
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		return ParseNotifyRoutes(data)
	}
	return nil, nil
}

func findTopLevelYAMLKey(root *yaml.Node, key string) *yaml.Node {
	n := root
	if n == nil {
		return nil
	}
	if n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i]
		v := n.Content[i+1]
		if k.Kind == yaml.ScalarNode && k.Value == key {
			return v
		}
	}
	return nil
}

var envPlaceholderRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvPlaceholders substitutes ${VAR} references so secrets stay out of
// the checked-in file. Unset variables fail loudly rather than silently
// sending to a literal "${VAR}" URL.
func expandEnvPlaceholders(in []byte) ([]byte, error) {
	s := string(in)
	missing := make(map[string]struct{})

	out := envPlaceholderRe.ReplaceAllStringFunc(s, func(m string) string {
		key := strings.TrimSuffix(strings.TrimPrefix(m, "${"), "}")
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		missing[key] = struct{}{}
		return m
	})

	if len(missing) == 0 {
		return []byte(out), nil
	}

	keys := make([]string, 0, len(missing))
	for k := range missing {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return nil, fmt.Errorf("missing environment variables: %s", strings.Join(keys, ", "))
}
