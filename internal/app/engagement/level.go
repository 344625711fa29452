package engagement

import (
	"math"

	"github.com/routine-minder/minder/internal/domain"
)

// levels is the fixed XP ladder, ascending by threshold.
var levels = []domain.Level{
	{Level: 1, Name: "Novice", Threshold: 0, Icon: "🌱"},
	{Level: 2, Name: "Apprentice", Threshold: 100, Icon: "🌿"},
	{Level: 3, Name: "Practitioner", Threshold: 500, Icon: "🌳"},
	{Level: 4, Name: "Expert", Threshold: 1500, Icon: "⭐"},
	{Level: 5, Name: "Master", Threshold: 5000, Icon: "🏆"},
	{Level: 6, Name: "Legend", Threshold: 15000, Icon: "👑"},
}

// Levels returns a copy of the ladder.
func Levels() []domain.Level {
	out := make([]domain.Level, len(levels))
	copy(out, levels)
	return out
}

// MaxLevel is the top rung's number.
func MaxLevel() int {
	return levels[len(levels)-1].Level
}

// GetLevelFromXP returns the highest rung whose threshold is <= xp.
// Negative XP maps to the first rung.
func GetLevelFromXP(xp int) domain.Level {
	cur := levels[0]
	for _, l := range levels[1:] {
		if xp < l.Threshold {
			break
		}
		cur = l
	}
	return cur
}

// GetNextLevel returns the distance to the following rung. Progress is the
// floor of the linear interpolation between the two thresholds, so 100 is
// only reported at the top of the ladder.
func GetNextLevel(xp int) domain.NextLevel {
	cur := GetLevelFromXP(xp)
	if cur.Level >= MaxLevel() {
		return domain.NextLevel{Next: nil, XPNeeded: 0, Progress: 100}
	}
	next := levels[cur.Level] // rungs are numbered from 1
	span := next.Threshold - cur.Threshold
	gained := max(xp-cur.Threshold, 0)
	progress := int(math.Floor(float64(gained) / float64(span) * 100))
	progress = min(max(progress, 0), 99)
	return domain.NextLevel{
		Next:     &next,
		XPNeeded: next.Threshold - max(xp, cur.Threshold),
		Progress: progress,
	}
}
