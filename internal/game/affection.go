package game

// AffectionLevel is the display tier for an affection score.
type AffectionLevel string

const (
	LevelHated    AffectionLevel = "Hated"
	LevelCold     AffectionLevel = "Cold"
	LevelNeutral  AffectionLevel = "Neutral"
	LevelFriendly AffectionLevel = "Friendly"
	LevelLoving   AffectionLevel = "Loving"
	LevelDevoted  AffectionLevel = "Devoted"
)

// Thresholds gating secret fragments and the deep secret.
const (
	FragmentUnlockAffection = 100
	SecretUnlockAffection   = 500
)

// LevelFor maps a score to its tier.
func LevelFor(affection int) AffectionLevel {
	switch {
	case affection > 800:
		return LevelDevoted
	case affection > 500:
		return LevelLoving
	case affection > 200:
		return LevelFriendly
	case affection > 100:
		return LevelNeutral
	case affection > 0:
		return LevelCold
	default:
		return LevelHated
	}
}
