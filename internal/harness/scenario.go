package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance scenario: declarations to load, records to
// seed, repository methods to invoke with their expected results, and
// assertions over the trace and the final database state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Specs is the directory of the CUE declarations.
	// Relative paths resolve against the scenario file's directory.
	Specs string `yaml:"specs"`

	// Seed records are persisted and committed before the steps run.
	Seed []SeedRecord `yaml:"seed,omitempty"`

	// Steps run in order inside one transactional unit of work.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// SeedRecord is one entity instance to insert.
type SeedRecord struct {
	Entity string `yaml:"entity"`

	// Ref names the record for links from later seed records.
	Ref string `yaml:"ref,omitempty"`

	Fields map[string]any `yaml:"fields"`

	// Links maps to-one association names to the ref of an earlier record.
	Links map[string]string `yaml:"links,omitempty"`
}

// Step invokes one repository method.
type Step struct {
	// Invoke is "Repository.method".
	Invoke string `yaml:"invoke"`

	// Args fill the method's plain parameters in declaration order.
	Args []any `yaml:"args,omitempty"`

	// Page is bound to the method's paging parameter.
	Page *PageArg `yaml:"page,omitempty"`

	// Sort is bound to the method's sort parameter, "path,dir;path".
	Sort string `yaml:"sort,omitempty"`

	// OutsideUnit runs the step without the scenario's unit of work.
	OutsideUnit bool `yaml:"outside_unit,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// PageArg is a paging request.
type PageArg struct {
	Index int    `yaml:"index"`
	Size  int    `yaml:"size"`
	Sort  string `yaml:"sort,omitempty"`
}

// Expect lists the checked properties of a step's outcome. Unset fields are
// not checked.
type Expect struct {
	// Error is the expected error code; the step must fail with it.
	Error string `yaml:"error,omitempty"`

	// Items is the number of returned elements.
	Items      *int   `yaml:"items,omitempty"`
	Count      *int64 `yaml:"count,omitempty"`
	Total      *int64 `yaml:"total,omitempty"`
	TotalPages *int64 `yaml:"total_pages,omitempty"`
	HasNext    *bool  `yaml:"has_next,omitempty"`
	Exists     *bool  `yaml:"exists,omitempty"`
	Affected   *int64 `yaml:"affected,omitempty"`

	// First is a subset match against the first element.
	First map[string]any `yaml:"first,omitempty"`

	// Values lists one field's value across all elements, in order.
	Values map[string][]any `yaml:"values,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Method is "Repository.method" (trace_contains, trace_count).
	Method string `yaml:"method,omitempty"`

	// Args must equal the invocation's values (trace_contains).
	Args []any `yaml:"args,omitempty"`

	// Outcome is "ok" or an error code (trace_contains).
	Outcome string `yaml:"outcome,omitempty"`

	// Count is the expected number of invocations (trace_count).
	Count int `yaml:"count,omitempty"`

	// Methods is the expected invocation order (trace_order).
	Methods []string `yaml:"methods,omitempty"`

	// Entity is the queried entity (final_state). Where and Expect keys are
	// its property names or to-one association names.
	Entity string         `yaml:"entity,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`

	// Rows is the expected number of matching rows (final_state). Without
	// it exactly one row must match and Expect is checked against it.
	Rows *int `yaml:"rows,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected. The specs directory resolves against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving a relative specs directory against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Specs != "" && !filepath.IsAbs(scenario.Specs) && basePath != "" {
		scenario.Specs = filepath.Join(basePath, scenario.Specs)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Specs == "" {
		return fmt.Errorf("specs directory is required")
	}
	if info, err := os.Stat(s.Specs); err != nil || !info.IsDir() {
		return fmt.Errorf("specs directory not found: %s", s.Specs)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	refs := make(map[string]bool)
	for i, rec := range s.Seed {
		if rec.Entity == "" {
			return fmt.Errorf("seed[%d]: entity is required", i)
		}
		for assoc, ref := range rec.Links {
			if !refs[ref] {
				return fmt.Errorf("seed[%d].links.%s: unknown ref %q", i, assoc, ref)
			}
		}
		if rec.Ref != "" {
			if refs[rec.Ref] {
				return fmt.Errorf("seed[%d]: duplicate ref %q", i, rec.Ref)
			}
			refs[rec.Ref] = true
		}
	}

	for i, step := range s.Steps {
		if _, _, err := splitMethod(step.Invoke); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if step.Page != nil && step.Page.Size <= 0 {
			return fmt.Errorf("steps[%d].page: size must be positive", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Method == "" {
			return fmt.Errorf("assertions[%d]: method is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Methods) == 0 {
			return fmt.Errorf("assertions[%d]: methods list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Method == "" {
			return fmt.Errorf("assertions[%d]: method is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for final_state", index)
		}
		if a.Rows == nil && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect or rows is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// splitMethod splits "Repository.method".
func splitMethod(s string) (repo, method string, err error) {
	repo, method, ok := strings.Cut(s, ".")
	if !ok || repo == "" || method == "" || strings.Contains(method, ".") {
		return "", "", fmt.Errorf("invoke %q: want Repository.method", s)
	}
	return repo, method, nil
}
