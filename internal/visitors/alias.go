package visitors

import "hash/fnv"

var aliasAdjectives = []string{
	"Curious", "Quick", "Clever", "Bold", "Sharp", "Witty", "Keen", "Eager", "Lucky", "Steady",
	"Bright", "Brainy", "Cunning", "Daring", "Nimble", "Savvy", "Shrewd", "Canny", "Astute", "Agile",
	"Puzzled", "Thoughtful", "Focused", "Patient", "Restless", "Plucky", "Zesty", "Jolly", "Sunny", "Breezy",
	"Cosmic", "Golden", "Silver", "Scarlet", "Amber", "Violet", "Emerald", "Cobalt", "Crimson", "Ivory",
	"Humble", "Gentle", "Mighty", "Quiet", "Rapid", "Sneaky", "Sleepy", "Spirited", "Tireless", "Vivid",
}

var aliasNouns = []string{
	"Scholar", "Sage", "Riddler", "Puzzler", "Champion", "Rookie", "Expert", "Trivia", "Genius", "Wizard",
	"Owl", "Fox", "Raven", "Otter", "Panda", "Falcon", "Badger", "Dolphin", "Lynx", "Heron",
	"Professor", "Detective", "Navigator", "Explorer", "Librarian", "Captain", "Ranger", "Pilot", "Scout", "Archivist",
	"Comet", "Nebula", "Quasar", "Meteor", "Galaxy", "Atlas", "Compass", "Beacon", "Lantern", "Prism",
	"Contender", "Challenger", "Finalist", "Runner", "Seeker", "Solver", "Thinker", "Guesser", "Player", "Quizzer",
}

// Alias returns a readable, deterministic display name for a visitor key, so
// the live activity feed can tell visitors apart without showing raw ids.
func Alias(visitorID string) string {
	h := fnv.New32a()
	h.Write([]byte(visitorID))
	index := int(h.Sum32())

	adjIndex := index % len(aliasAdjectives)
	nounIndex := (index / len(aliasAdjectives)) % len(aliasNouns)

	return aliasAdjectives[adjIndex] + " " + aliasNouns[nounIndex]
}
