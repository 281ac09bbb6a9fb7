package connection

// Phrase lists are matched literally (case-insensitive substrings).

var friendPhrases = []string{
	"my friend", "my friends", "a friend of mine", "my buddy",
	"hung out with", "hang out with", "my roommate", "my coworker", "my colleague",
	"my partner", "my boyfriend", "my girlfriend", "my neighbor", "my neighbour",
}

var familyPhrases = []string{
	"my mom", "my mum", "my mother", "my dad", "my father", "my parents",
	"my sister", "my brother", "my family", "my wife", "my husband",
	"my son", "my daughter", "my kids", "my grandma", "my grandmother",
	"my grandpa", "my grandfather", "my aunt", "my uncle", "my cousin",
}

var professionalPhrases = []string{
	"my therapist", "my counselor", "my counsellor", "my psychologist",
	"my psychiatrist", "my doctor", "my gp", "support group", "my social worker",
}

var isolationPhrases = []string{
	"i'm alone", "i am alone", "all alone", "so alone", "i'm lonely", "i am lonely",
	"i feel lonely", "so lonely", "no one to talk to", "nobody to talk to",
	"i have no friends", "i don't have friends", "i don't have any friends",
	"nobody cares", "no one cares", "i feel isolated", "i'm isolated",
	"haven't talked to anyone", "haven't seen anyone", "haven't left the house",
	"no one understands me", "nobody understands me",
	"don't have a friend", "don't have any friend", "do not have a friend",
	"no friends", "not a single friend", "lost my friends", "lost all my friends",
	"miss my friends",
}

// dependencyPhrases maps literal phrases to the dependency tag they signal.
var dependencyPhrases = []struct {
	phrase string
	tag    string
}{
	{"you're the only one i can talk to", "sole_confidant"},
	{"you are the only one i can talk to", "sole_confidant"},
	{"only one who understands me", "sole_confidant"},
	{"only you understand", "sole_confidant"},
	{"you understand me better than", "preferred_over_people"},
	{"rather talk to you than", "preferred_over_people"},
	{"easier to talk to you than", "preferred_over_people"},
	{"don't need anyone else", "replacing_people"},
	{"don't need other people", "replacing_people"},
	{"you're all i need", "replacing_people"},
	{"talk to you all day", "excessive_use"},
	{"can't stop talking to you", "excessive_use"},
	{"you're my best friend", "attachment"},
	{"you are my best friend", "attachment"},
}

// NudgePhrases mark a response that points the person toward other people.
var NudgePhrases = []string{
	"reach out to", "talk to someone you trust", "someone you trust",
	"call a friend", "text a friend", "a friend or family member",
	"loved one", "someone in your life", "spend time with", "connect with",
	"support group", "people who care about you",
}

// ReferralPhrases mark a response that points toward professional or
// community support.
var ReferralPhrases = []string{
	"therapist", "counselor", "counsellor", "professional support",
	"mental health professional", "support group", "your doctor", "helpline",
	"community group", "peer support",
}
