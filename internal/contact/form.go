package contact

import (
	"fmt"

	"github.com/dcmarble/stonesite/internal/errors"
)

// DestinationAddress receives every contact-form message.
const DestinationAddress = "don@dcmarbleandgranite.com"

// Field names one member of the contact form.
type Field string

const (
	FieldName    Field = "name"
	FieldEmail   Field = "email"
	FieldMessage Field = "message"
)

// Fields lists the form fields in display order.
var Fields = []Field{FieldName, FieldEmail, FieldMessage}

// ParseField maps a form input name to a Field.
func ParseField(name string) (Field, error) {
	switch f := Field(name); f {
	case FieldName, FieldEmail, FieldMessage:
		return f, nil
	default:
		return "", errors.NewValidationError(errors.ErrCodeUnknownField,
			fmt.Sprintf("unknown contact form field %q", name)).
			WithComponent("contact")
	}
}

// FormState holds what the visitor has typed. Values are kept exactly as
// entered; nothing is trimmed or normalized before sending.
type FormState struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// With returns a copy of f with one field replaced.
func (f FormState) With(field Field, value string) (FormState, error) {
	switch field {
	case FieldName:
		f.Name = value
	case FieldEmail:
		f.Email = value
	case FieldMessage:
		f.Message = value
	default:
		_, err := ParseField(string(field))
		return f, err
	}
	return f, nil
}

// Get returns the value of one field.
func (f FormState) Get(field Field) string {
	switch field {
	case FieldName:
		return f.Name
	case FieldEmail:
		return f.Email
	case FieldMessage:
		return f.Message
	default:
		return ""
	}
}

// IsEmpty reports whether every field is blank.
func (f FormState) IsEmpty() bool {
	return f == FormState{}
}

// Payload is the template parameter set handed to the email service.
type Payload struct {
	FromName  string `json:"from_name"`
	FromEmail string `json:"from_email"`
	Message   string `json:"message"`
	ToEmail   string `json:"to_email"`
}

// Payload packages the form for delivery to DestinationAddress.
func (f FormState) Payload() Payload {
	return Payload{
		FromName:  f.Name,
		FromEmail: f.Email,
		Message:   f.Message,
		ToEmail:   DestinationAddress,
	}
}

// Status is the outcome of the most recent submit attempt.
type Status int

const (
	StatusIdle Status = iota
	StatusSuccess
	StatusError
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a point-in-time copy of the controller state.
type Snapshot struct {
	Form     FormState `json:"form"`
	Status   Status    `json:"status"`
	InFlight bool      `json:"in_flight"`
}
