package exam

// AuthorBonusUnits is paid to an exam's proposer each time someone else passes it.
const AuthorBonusUnits int64 = 2

var rewardTable = map[Level]int64{
	LevelB1: 10,
	LevelB2: 15,
	LevelC1: 20,
}

// RewardFor returns the reward, in whole token units, for passing an exam of
// the given level. Unknown levels pay the top tier.
func RewardFor(level Level) int64 {
	if units, ok := rewardTable[level]; ok {
		return units
	}
	return rewardTable[LevelC1]
}
