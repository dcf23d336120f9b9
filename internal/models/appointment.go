package models

import (
	"fmt"
	"time"
)

// Appointment is a booking request submitted through the public form.
type Appointment struct {
	ID          string    `json:"id,omitempty"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Date        string    `json:"date"` // YYYY-MM-DD
	Time        string    `json:"time"` // one of TimeSlots
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPending, StatusApproved, StatusRejected, StatusCompleted}

var statusLabels = map[Status]string{
	StatusPending:   "Pendente",
	StatusApproved:  "Aprovado",
	StatusRejected:  "Rejeitado",
	StatusCompleted: "Concluído",
}

// Label is the pt-BR display name of the status.
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, error) {
	for _, s := range Statuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown appointment status %q", raw)
}

// Appointment field names as stored in the document collection.
const (
	FieldName        = "name"
	FieldEmail       = "email"
	FieldPhone       = "phone"
	FieldDate        = "date"
	FieldTime        = "time"
	FieldDescription = "description"
	FieldStatus      = "status"
	FieldCreatedAt   = "createdAt"
)

// DocumentID implements the record contract of the collection hook.
func (a Appointment) DocumentID() string {
	return a.ID
}

// WithID returns a copy carrying the backend-assigned identifier.
func (a Appointment) WithID(id string) Appointment {
	a.ID = id
	return a
}

// ToFields encodes the appointment without its identifier.
func (a Appointment) ToFields() Fields {
	return Fields{
		FieldName:        a.Name,
		FieldEmail:       a.Email,
		FieldPhone:       a.Phone,
		FieldDate:        a.Date,
		FieldTime:        a.Time,
		FieldDescription: a.Description,
		FieldStatus:      string(a.Status),
		FieldCreatedAt:   NewTimestamp(a.CreatedAt),
	}
}

// Merge returns a new appointment with the patch applied field by field.
// The receiver is left untouched.
func (a Appointment) Merge(patch Fields) (Appointment, error) {
	out := a
	for key, value := range patch {
		switch key {
		case FieldName, FieldEmail, FieldPhone, FieldDate, FieldTime, FieldDescription:
			s, ok := value.(string)
			if !ok {
				return a, fmt.Errorf("field %s: expected string, got %T", key, value)
			}
			switch key {
			case FieldName:
				out.Name = s
			case FieldEmail:
				out.Email = s
			case FieldPhone:
				out.Phone = s
			case FieldDate:
				out.Date = s
			case FieldTime:
				out.Time = s
			case FieldDescription:
				out.Description = s
			}
		case FieldStatus:
			var raw string
			switch v := value.(type) {
			case Status:
				raw = string(v)
			case string:
				raw = v
			default:
				return a, fmt.Errorf("field %s: expected string, got %T", key, value)
			}
			st, err := ParseStatus(raw)
			if err != nil {
				return a, err
			}
			out.Status = st
		case FieldCreatedAt:
			t, err := ToTime(value)
			if err != nil {
				return a, fmt.Errorf("field %s: %w", key, err)
			}
			out.CreatedAt = t
		default:
			return a, fmt.Errorf("unknown appointment field %q", key)
		}
	}
	return out, nil
}

var appointmentFields = map[string]bool{
	FieldName: true, FieldEmail: true, FieldPhone: true, FieldDate: true,
	FieldTime: true, FieldDescription: true, FieldStatus: true, FieldCreatedAt: true,
}

// AppointmentFromDocument decodes a stored document. Keys written by other
// clients that the appointment does not know are ignored; only patches are
// strict about them.
func AppointmentFromDocument(doc Document) (Appointment, error) {
	known := make(Fields, len(doc.Fields))
	for key, value := range doc.Fields {
		if appointmentFields[key] {
			known[key] = value
		}
	}
	a, err := Appointment{ID: doc.ID}.Merge(known)
	if err != nil {
		return Appointment{}, fmt.Errorf("decode appointment %s: %w", doc.ID, err)
	}
	return a, nil
}
