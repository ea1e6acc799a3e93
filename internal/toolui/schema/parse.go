package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"

	jsreflect "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	// ErrInvalidPayload is wrapped by every ValidationError.
	ErrInvalidPayload = errors.New("invalid tool-ui payload")
	// ErrUnknownSurface is returned for an unrecognised surface kind.
	ErrUnknownSurface = errors.New("unknown surface kind")
	errSchemaBuild    = errors.New("build payload schema")
)

// RootPath labels issues that apply to the whole document.
const RootPath = "root"

// Issue is a single validation failure.
type Issue struct {
	Path    string
	Message string
}

func (i Issue) String() string {
	return i.Path + ": " + i.Message
}

// ValidationError carries a sorted, deduplicated issue list.
type ValidationError struct {
	Surface string
	Issues  []Issue
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s", e.Surface, e.Joined())
}

// Joined renders the issues as "path: message" entries separated by "; ".
func (e *ValidationError) Joined() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.String())
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidPayload }

func newValidationError(surface string, issues []Issue) *ValidationError {
	return &ValidationError{Surface: surface, Issues: normalizeIssues(issues)}
}

func normalizeIssues(issues []Issue) []Issue {
	out := slices.Clone(issues)
	slices.SortFunc(out, func(a, b Issue) int {
		if c := strings.Compare(a.Path, b.Path); c != 0 {
			return c
		}
		return strings.Compare(a.Message, b.Message)
	})
	return slices.Compact(out)
}

type semanticValidator interface {
	Validate() []Issue
}

type compiledSchema struct {
	doc    []byte
	schema *jsonschema.Schema
}

var compiledSchemas sync.Map

func newReflector() *jsreflect.Reflector {
	return &jsreflect.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
}

func compiledFor(t reflect.Type) (*compiledSchema, error) {
	if cached, ok := compiledSchemas.Load(t); ok {
		return cached.(*compiledSchema), nil
	}

	doc, err := json.Marshal(newReflector().ReflectFromType(t))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errSchemaBuild, err)
	}
	resource, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errSchemaBuild, err)
	}

	url := strings.ToLower(t.Name()) + ".json"
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, resource); err != nil {
		return nil, fmt.Errorf("%w: %w", errSchemaBuild, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errSchemaBuild, err)
	}

	compiled := &compiledSchema{doc: doc, schema: sch}
	actual, _ := compiledSchemas.LoadOrStore(t, compiled)
	return actual.(*compiledSchema), nil
}

// Parse validates input against the schema reflected from T, then against T's
// semantic rules. Nothing is returned unless every check passes.
func Parse[T any](input []byte, surfaceName string) (T, error) {
	var zero T

	compiled, err := compiledFor(reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(input))
	if err != nil {
		return zero, newValidationError(surfaceName, []Issue{{
			Path:    RootPath,
			Message: "malformed JSON: " + err.Error(),
		}})
	}
	if err := compiled.schema.Validate(instance); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return zero, fmt.Errorf("validate %s payload: %w", surfaceName, err)
		}
		return zero, newValidationError(surfaceName, collectIssues(verr, instance))
	}

	var out T
	if err := json.Unmarshal(input, &out); err != nil {
		return zero, newValidationError(surfaceName, []Issue{{Path: RootPath, Message: err.Error()}})
	}
	if v, ok := any(out).(semanticValidator); ok {
		if issues := v.Validate(); len(issues) > 0 {
			return zero, newValidationError(surfaceName, issues)
		}
	}
	return out, nil
}

// ParseKind validates input as the named surface kind.
func ParseKind(surface SurfaceKind, input []byte) (Payload, error) {
	switch surface {
	case SurfaceDataTable:
		return parsePayload[DataTable](input, surface)
	case SurfaceStats:
		return parsePayload[StatsDisplay](input, surface)
	case SurfaceApproval:
		return parsePayload[ApprovalPrompt](input, surface)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownSurface, surface)
	}
}

// ParseAny reads the "surface" discriminator and validates accordingly.
func ParseAny(input []byte) (Payload, error) {
	surface := gjson.GetBytes(input, "surface")
	if !surface.Exists() {
		return nil, newValidationError("tool-ui", []Issue{{Path: "surface", Message: "missing property 'surface'"}})
	}
	return ParseKind(SurfaceKind(surface.String()), input)
}

func parsePayload[T Payload](input []byte, surface SurfaceKind) (Payload, error) {
	out, err := Parse[T](input, string(surface))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SchemaJSON returns the JSON Schema document for a surface kind.
func SchemaJSON(surface SurfaceKind) ([]byte, error) {
	var t reflect.Type
	switch surface {
	case SurfaceDataTable:
		t = reflect.TypeFor[DataTable]()
	case SurfaceStats:
		t = reflect.TypeFor[StatsDisplay]()
	case SurfaceApproval:
		t = reflect.TypeFor[ApprovalPrompt]()
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownSurface, surface)
	}
	compiled, err := compiledFor(t)
	if err != nil {
		return nil, err
	}
	return slices.Clone(compiled.doc), nil
}

// ToolInputSchema is SchemaJSON without the "$schema" keyword, which model
// tool definitions do not accept.
func ToolInputSchema(surface SurfaceKind) (json.RawMessage, error) {
	doc, err := SchemaJSON(surface)
	if err != nil {
		return nil, err
	}
	return sjson.DeleteBytes(doc, "$schema")
}

var issuePrinter = message.NewPrinter(language.English)

func collectIssues(root *jsonschema.ValidationError, instance any) []Issue {
	var issues []Issue
	var walk func(*jsonschema.ValidationError)
	walk = func(node *jsonschema.ValidationError) {
		switch k := node.ErrorKind.(type) {
		case *kind.Required:
			for _, name := range k.Missing {
				issues = append(issues, Issue{
					Path:    joinPath(instancePath(instance, node.InstanceLocation), name),
					Message: "required",
				})
			}
			return
		case *kind.AdditionalProperties:
			for _, name := range k.Properties {
				issues = append(issues, Issue{
					Path:    joinPath(instancePath(instance, node.InstanceLocation), name),
					Message: "unknown field",
				})
			}
			return
		case *kind.AnyOf, *kind.OneOf:
			issues = append(issues, Issue{
				Path:    instancePath(instance, node.InstanceLocation),
				Message: alternativesMessage(node),
			})
			return
		}
		if len(node.Causes) == 0 {
			issues = append(issues, Issue{
				Path:    instancePath(instance, node.InstanceLocation),
				Message: node.ErrorKind.LocalizedString(issuePrinter),
			})
			return
		}
		for _, cause := range node.Causes {
			walk(cause)
		}
	}
	walk(root)
	return issues
}

// alternativesMessage summarises a failed anyOf as the union of wanted types.
func alternativesMessage(node *jsonschema.ValidationError) string {
	var got string
	var want []string
	for _, cause := range node.Causes {
		typeErr, ok := cause.ErrorKind.(*kind.Type)
		if !ok {
			continue
		}
		got = typeErr.Got
		for _, w := range typeErr.Want {
			if !slices.Contains(want, w) {
				want = append(want, w)
			}
		}
	}
	if got == "" || len(want) == 0 {
		return node.ErrorKind.LocalizedString(issuePrinter)
	}
	return fmt.Sprintf("got %s, want %s", got, strings.Join(want, " or "))
}

// instancePath renders a JSON pointer token list as "a.b[2].c", using the
// instance to tell array indices from object keys.
func instancePath(instance any, tokens []string) string {
	var b strings.Builder
	current := instance
	for _, tok := range tokens {
		switch node := current.(type) {
		case []any:
			b.WriteString("[" + tok + "]")
			if i, err := strconv.Atoi(tok); err == nil && i >= 0 && i < len(node) {
				current = node[i]
			} else {
				current = nil
			}
		case map[string]any:
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(tok)
			current = node[tok]
		default:
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(tok)
			current = nil
		}
	}
	if b.Len() == 0 {
		return RootPath
	}
	return b.String()
}

func joinPath(parent, name string) string {
	if parent == RootPath || parent == "" {
		return name
	}
	return parent + "." + name
}
