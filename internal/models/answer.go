package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type answerKind uint8

const (
	answerText answerKind = iota
	answerBool
)

// Answer is a coerced questionnaire answer: either a bool (checkboxes) or a string.
// The zero value is the empty text answer.
type Answer struct {
	kind answerKind
	text string
	flag bool
}

// TextAnswer returns a string-valued answer.
func TextAnswer(s string) Answer {
	return Answer{kind: answerText, text: s}
}

// BoolAnswer returns a bool-valued answer.
func BoolAnswer(b bool) Answer {
	return Answer{kind: answerBool, flag: b}
}

// IsBool reports whether the answer holds a bool.
func (a Answer) IsBool() bool { return a.kind == answerBool }

// Bool returns the bool value; text answers are never true.
func (a Answer) Bool() bool { return a.kind == answerBool && a.flag }

// Text returns the string value; bool answers have no text.
func (a Answer) Text() string {
	if a.kind == answerBool {
		return ""
	}
	return a.text
}

// IsEmpty reports whether the answer is falsy: an empty string or false.
func (a Answer) IsEmpty() bool {
	if a.kind == answerBool {
		return !a.flag
	}
	return a.text == ""
}

// String returns the plain string form used when an answer is substituted verbatim.
func (a Answer) String() string {
	if a.kind == answerBool {
		return strconv.FormatBool(a.flag)
	}
	return a.text
}

// MarshalJSON encodes the answer as a bare JSON bool or string.
func (a Answer) MarshalJSON() ([]byte, error) {
	if a.kind == answerBool {
		return json.Marshal(a.flag)
	}
	return json.Marshal(a.text)
}

// UnmarshalJSON accepts a bare JSON bool or string.
func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = Answer{}
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*a = BoolAnswer(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("answer must be a bool or a string: %w", err)
	}
	*a = TextAnswer(s)
	return nil
}
