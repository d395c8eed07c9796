package tracking

// SessionStats is a fully derived aggregate over the session person list.
// It always holds children+adults == uniquePersons == males+females.
type SessionStats struct {
	UniquePersons    int `json:"uniquePersons"`
	TotalAppearances int `json:"totalAppearances"`
	Children         int `json:"children"`
	Adults           int `json:"adults"`
	Males            int `json:"males"`
	Females          int `json:"females"`
}

// CalculateStats recomputes the aggregate from scratch. The person list is
// bounded by room occupancy, so a full O(n) fold on every change is cheap
// and immune to incremental drift.
func CalculateStats(persons []*Person) SessionStats {
	stats := SessionStats{
		UniquePersons: len(persons),
	}

	for _, person := range persons {
		stats.TotalAppearances += person.Appearances

		if person.AgeGroup == AgeGroupChild {
			stats.Children++
		} else {
			stats.Adults++
		}

		if person.Gender == GenderMale {
			stats.Males++
		} else {
			stats.Females++
		}
	}

	return stats
}
