package tracking

import (
	"testing"
	"time"
)

func statsPerson(gender Gender, group AgeGroup, appearances int) *Person {
	return &Person{
		ID:          NewPersonID(),
		Gender:      gender,
		AgeGroup:    group,
		Appearances: appearances,
		FirstSeen:   time.Now(),
		LastSeen:    time.Now(),
	}
}

func TestCalculateStats_Empty(t *testing.T) {
	stats := CalculateStats(nil)
	if stats != (SessionStats{}) {
		t.Errorf("expected zero stats for empty session, got %+v", stats)
	}
}

func TestCalculateStats(t *testing.T) {
	persons := []*Person{
		statsPerson(GenderMale, AgeGroupAdult, 3),
		statsPerson(GenderFemale, AgeGroupAdult, 1),
		statsPerson(GenderFemale, AgeGroupChild, 2),
	}

	stats := CalculateStats(persons)

	if stats.UniquePersons != 3 {
		t.Errorf("expected 3 unique persons, got %d", stats.UniquePersons)
	}
	if stats.TotalAppearances != 6 {
		t.Errorf("expected 6 appearances, got %d", stats.TotalAppearances)
	}
	if stats.Children != 1 || stats.Adults != 2 {
		t.Errorf("expected 1 child / 2 adults, got %d / %d", stats.Children, stats.Adults)
	}
	if stats.Males != 1 || stats.Females != 2 {
		t.Errorf("expected 1 male / 2 females, got %d / %d", stats.Males, stats.Females)
	}
}

func TestCalculateStats_PartitionsStayTotal(t *testing.T) {
	persons := []*Person{
		statsPerson(GenderMale, AgeGroupChild, 1),
		statsPerson(GenderMale, AgeGroupAdult, 1),
		statsPerson(GenderFemale, AgeGroupAdult, 4),
		statsPerson(GenderFemale, AgeGroupChild, 2),
		statsPerson(GenderMale, AgeGroupAdult, 7),
	}

	stats := CalculateStats(persons)

	if stats.Children+stats.Adults != stats.UniquePersons {
		t.Errorf("age partition broken: %d + %d != %d", stats.Children, stats.Adults, stats.UniquePersons)
	}
	if stats.Males+stats.Females != stats.UniquePersons {
		t.Errorf("gender partition broken: %d + %d != %d", stats.Males, stats.Females, stats.UniquePersons)
	}
}
