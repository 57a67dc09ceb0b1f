package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// QuestionType determines how a question is rendered and how its answer is coerced.
type QuestionType string

const (
	// QuestionTypeText is a short free-text answer.
	QuestionTypeText QuestionType = "text"
	// QuestionTypeTextarea is a long free-text answer.
	QuestionTypeTextarea QuestionType = "textarea"
	// QuestionTypeSelect picks one of a fixed list of options.
	QuestionTypeSelect QuestionType = "select"
	// QuestionTypeCheckbox is a yes/no answer.
	QuestionTypeCheckbox QuestionType = "checkbox"
)

// Option is one selectable choice of a select question.
type Option struct {
	Value string `json:"value" yaml:"value" validate:"required"`
	Label string `json:"label" yaml:"label" validate:"required"`
}

// Question is an immutable question definition inside a template.
type Question struct {
	ID          string       `json:"id" yaml:"id" validate:"required"`
	Type        QuestionType `json:"type" yaml:"type" validate:"required,oneof=text textarea select checkbox"`
	Label       string       `json:"label" yaml:"label" validate:"required"`
	Placeholder string       `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Required    bool         `json:"required" yaml:"required"`
	Options     []Option     `json:"options,omitempty" yaml:"options,omitempty" validate:"required_if=Type select,dive"`
	// DefaultValue is typed by Type: a bool for checkboxes, a string otherwise.
	DefaultValue interface{} `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
}

// Template is a named, ordered list of questions plus a placeholder-bearing prompt string.
// Question order is the interrogation order.
type Template struct {
	ID             string     `json:"id" yaml:"id" validate:"required,slug"`
	Name           string     `json:"name" yaml:"name" validate:"required"`
	Description    string     `json:"description" yaml:"description"`
	Icon           string     `json:"icon" yaml:"icon"`
	Questions      []Question `json:"questions" yaml:"questions" validate:"required,min=1,max=50,unique=ID,dive"`
	PromptTemplate string     `json:"prompt_template,omitempty" yaml:"prompt_template,omitempty"`
	// Keywords make a template reachable by the keyword selector. Templates without
	// keywords are only reachable by explicit id.
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

// templateIDPattern keeps ids usable as file names inside the templates directory.
var templateIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return templateIDPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// ValidTemplateID reports whether id may name a template.
func ValidTemplateID(id string) bool {
	return templateIDPattern.MatchString(id)
}

// Validate checks the structural invariants of a template definition.
func (t *Template) Validate() error {
	err := validate.Struct(t)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, fmt.Sprintf("field '%s' failed rule '%s'", e.Namespace(), e.Tag()))
	}
	return fmt.Errorf("%w %q: %s", ErrInvalidTemplate, t.ID, strings.Join(messages, "; "))
}

// QuestionAt returns the question at index i, if any.
func (t *Template) QuestionAt(i int) (Question, bool) {
	if i < 0 || i >= len(t.Questions) {
		return Question{}, false
	}
	return t.Questions[i], true
}

// Question returns the question with the given id, if any.
func (t *Template) Question(id string) (Question, bool) {
	for _, q := range t.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}
