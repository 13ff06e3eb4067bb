package models

import "time"

const (
	MinClassLevel = 1
	MaxClassLevel = 12
)

type Student struct {
	ID         string     `db:"id" json:"id"`
	Name       string     `db:"name" json:"name" validate:"required"`
	ClassLevel int        `db:"class_level" json:"class_level" validate:"min=1,max=12"`
	RollNumber int        `db:"roll_number" json:"roll_number" validate:"min=1"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// StudentPatch is a field-level edit; nil fields are left untouched.
type StudentPatch struct {
	Name       *string `json:"name,omitempty"`
	ClassLevel *int    `json:"class_level,omitempty"`
	RollNumber *int    `json:"roll_number,omitempty"`
}

func (p StudentPatch) Apply(s Student) Student {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.ClassLevel != nil {
		s.ClassLevel = *p.ClassLevel
	}
	if p.RollNumber != nil {
		s.RollNumber = *p.RollNumber
	}
	return s
}
