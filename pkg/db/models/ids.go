package models

import "github.com/google/uuid"

// ensureID assigns an application-side UUID before insert so rows created inside a
// transaction can be referenced by later statements of the same unit of work.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
