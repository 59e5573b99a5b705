package service

// Proficiency bands printed on certificates.
const (
	ProficiencyExpert       = "Expert"
	ProficiencyAdvanced     = "Advanced"
	ProficiencyIntermediate = "Intermediate"
	ProficiencyBeginner     = "Beginner"
)

// ProficiencyFor derives the band from a percentage score.
func ProficiencyFor(score int) string {
	switch {
	case score >= 90:
		return ProficiencyExpert
	case score >= 80:
		return ProficiencyAdvanced
	case score >= 70:
		return ProficiencyIntermediate
	default:
		return ProficiencyBeginner
	}
}
