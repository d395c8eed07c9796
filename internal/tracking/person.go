package tracking

import (
	"time"

	"github.com/google/uuid"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

type AgeGroup string

const (
	AgeGroupChild AgeGroup = "child"
	AgeGroupAdult AgeGroup = "adult"
)

// ParseGender normalizes a detector-reported gender string. The detection
// model emits male or female for visible faces; anything else (including
// "unknown") falls back to male so the stats partition stays total.
func ParseGender(s string) Gender {
	if s == string(GenderFemale) {
		return GenderFemale
	}
	return GenderMale
}

// Detection is one face reported by the external detector for one frame.
type Detection struct {
	Embedding Embedding
	Gender    Gender
	Age       float64
}

// Person is one unique individual observed during a session. The id is
// stable across sessions: a person recovered from face memory keeps the
// id the memory record carries.
type Person struct {
	ID           string    `json:"id"`
	Embedding    Embedding `json:"embedding"`
	Gender       Gender    `json:"gender"`
	AgeGroup     AgeGroup  `json:"ageGroup"`
	EstimatedAge float64   `json:"estimatedAge"`
	FirstSeen    time.Time `json:"firstSeen"`
	LastSeen     time.Time `json:"lastSeen"`
	Appearances  int       `json:"appearances"`
}

// NewPersonID generates a fresh opaque person id.
func NewPersonID() string {
	return "person_" + uuid.NewString()
}

// ClassifyAgeGroup maps an estimated age to an age group. The boundary is
// inclusive: an age equal to childAgeMax still counts as child.
func ClassifyAgeGroup(age, childAgeMax float64) AgeGroup {
	if age <= childAgeMax {
		return AgeGroupChild
	}
	return AgeGroupAdult
}

// NewPerson creates a session person from a detection. The caller decides
// the id: a fresh one for a first-ever sighting, or the id of the face
// memory record for a returning person.
func NewPerson(id string, det Detection, childAgeMax float64, now time.Time) *Person {
	return &Person{
		ID:           id,
		Embedding:    det.Embedding,
		Gender:       det.Gender,
		AgeGroup:     ClassifyAgeGroup(det.Age, childAgeMax),
		EstimatedAge: det.Age,
		FirstSeen:    now,
		LastSeen:     now,
		Appearances:  1,
	}
}

// ReadyForUpdate reports whether the re-identification cooldown has
// elapsed since the person was last seen. It gates appearance increments
// so one person lingering in front of the camera is not counted on every
// frame.
func (p *Person) ReadyForUpdate(now time.Time, cooldown time.Duration) bool {
	return now.Sub(p.LastSeen) >= cooldown
}

// RecordAppearance registers one more gated sighting.
func (p *Person) RecordAppearance(now time.Time) {
	p.Appearances++
	p.LastSeen = now
}
