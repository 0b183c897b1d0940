package pipeline

import (
	"fmt"
	"strconv"

	"conveyor/internal/common/errors"
)

// ParameterType enumerates the supported typed pipeline inputs.
type ParameterType string

const (
	ParamString   ParameterType = "string"
	ParamText     ParameterType = "text"
	ParamBoolean  ParameterType = "boolean"
	ParamChoice   ParameterType = "choice"
	ParamPassword ParameterType = "password"
)

// Parameter is a typed input declared at pipeline scope. Parameters are
// resolved once at run start from caller-supplied values and exposed
// read-only through the environment for the whole run.
type Parameter struct {
	Name        string        `json:"name"`
	Type        ParameterType `json:"type"`
	Default     string        `json:"default,omitempty"`
	Choices     []string      `json:"choices,omitempty"`
	Required    bool          `json:"required,omitempty"`
	Description string        `json:"description,omitempty"`
}

// Validate checks a supplied value against the parameter's type and constraints.
func (p *Parameter) Validate(value string) error {
	switch p.Type {
	case ParamString, ParamText, ParamPassword:
		return nil
	case ParamBoolean:
		if _, err := strconv.ParseBool(value); err != nil {
			return errors.ValidationError(fmt.Sprintf("parameter %s must be a boolean, got %q", p.Name, value))
		}
		return nil
	case ParamChoice:
		for _, choice := range p.Choices {
			if choice == value {
				return nil
			}
		}
		return errors.ValidationError(fmt.Sprintf("parameter %s must be one of %v, got %q", p.Name, p.Choices, value))
	default:
		return errors.ValidationError(fmt.Sprintf("parameter %s has unknown type %q", p.Name, p.Type))
	}
}

// ResolveParameters merges caller-supplied values with declared defaults and
// validates every value against its declaration. Unknown supplied names are
// rejected so typos fail at the boundary rather than deep inside a run.
func ResolveParameters(declared []Parameter, supplied map[string]string) (map[string]string, error) {
	byName := make(map[string]*Parameter, len(declared))
	for i := range declared {
		byName[declared[i].Name] = &declared[i]
	}

	for name := range supplied {
		if _, ok := byName[name]; !ok {
			return nil, errors.ValidationError(fmt.Sprintf("unknown parameter %q", name))
		}
	}

	resolved := make(map[string]string, len(declared))
	for i := range declared {
		p := &declared[i]
		value, ok := supplied[p.Name]
		if !ok {
			if p.Default == "" && p.Required {
				return nil, errors.ValidationError(fmt.Sprintf("parameter %s is required", p.Name))
			}
			value = p.Default
		}
		if err := p.Validate(value); err != nil {
			return nil, err
		}
		resolved[p.Name] = value
	}

	return resolved, nil
}
