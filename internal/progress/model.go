// Package progress stores per-actor study hours and curriculum checkboxes
// with insert-or-replace semantics.
package progress

import "time"

// Kind distinguishes the two identity models that own progress rows.
type Kind string

const (
	KindUser    Kind = "user"
	KindVisitor Kind = "visitor"
)

// Actor is the canonical owner key of a progress row. A user and a visitor
// with the same ID string are different actors.
type Actor struct {
	Kind Kind
	ID   string
}

// User is the actor for an authenticated account.
func User(id string) Actor { return Actor{Kind: KindUser, ID: id} }

// Visitor is the actor for an anonymous client id.
func Visitor(id string) Actor { return Actor{Kind: KindVisitor, ID: id} }

// StudyHours is the time studied on one calendar day.
type StudyHours struct {
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Day       int       `json:"day"`
	Hours     float64   `json:"hours"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Flags are the three checkboxes of a curriculum topic.
type Flags struct {
	Watched bool `json:"watched"`
	Revised bool `json:"revised"`
	Tested  bool `json:"tested"`
}

// Curriculum is the progress on one topic of a subject.
type Curriculum struct {
	Subject string `json:"subject"`
	Topic   string `json:"topic"`
	Flags
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Grouped is curriculum progress keyed by subject, then topic.
type Grouped map[string]map[string]Flags

// Totals summarizes an export.
type Totals struct {
	Hours     float64 `json:"hours"`
	Days      int     `json:"days"`
	Topics    int     `json:"topics"`
	Completed int     `json:"completed"`
}

// Export is every row owned by one actor.
type Export struct {
	StudyHours []StudyHours `json:"studyHours"`
	Curriculum []Curriculum `json:"curriculum"`
	Totals     Totals       `json:"totals"`
}

// SubjectProgress is one subject's topics with per-flag counts.
type SubjectProgress struct {
	Subject string
	Topics  []Curriculum
	Watched int
	Revised int
	Tested  int
}

// Deleted counts rows removed by DeleteAll.
type Deleted struct {
	StudyHours int64 `json:"studyHours"`
	Curriculum int64 `json:"curriculum"`
}
