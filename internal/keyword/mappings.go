package keyword

// Mapping is the reaction attached to a keyword. Any field may be empty.
type Mapping struct {
	Emoji       string `json:"emoji,omitempty"`
	Text        string `json:"text,omitempty"`
	Style       string `json:"style,omitempty"`
	SearchQuery string `json:"search_query,omitempty"`
}

type builtin struct {
	keyword string
	Mapping
}

// builtins is ordered; fuzzy matching walks keys in this order so the first
// acceptable candidate wins deterministically.
var builtins = []builtin{
	// Agreement / disagreement
	{"agree", Mapping{Emoji: "👍", Text: "Agreed!"}},
	{"agreed", Mapping{Emoji: "👍", Text: "Agreed!"}},
	{"yes", Mapping{Emoji: "✅", Text: "Yes!"}},
	{"yeah", Mapping{Emoji: "✅", Text: "Yeah!"}},
	{"yep", Mapping{Emoji: "✅"}},
	{"no", Mapping{Emoji: "❌", Text: "Nope"}},
	{"nope", Mapping{Emoji: "❌", Text: "Nope"}},
	{"disagree", Mapping{Emoji: "👎"}},

	// Emotions
	{"wow", Mapping{Emoji: "😮", Text: "Wow!", SearchQuery: "wow reaction"}},
	{"funny", Mapping{Emoji: "😂", SearchQuery: "laughing reaction"}},
	{"hilarious", Mapping{Emoji: "🤣", SearchQuery: "laughing hysterical"}},
	{"laugh", Mapping{Emoji: "😂", SearchQuery: "laughing"}},
	{"lol", Mapping{Emoji: "😂", SearchQuery: "lol laughing"}},
	{"love", Mapping{Emoji: "❤️", SearchQuery: "love heart"}},
	{"hate", Mapping{Emoji: "😠"}},
	{"angry", Mapping{Emoji: "😡"}},
	{"sad", Mapping{Emoji: "😢"}},
	{"happy", Mapping{Emoji: "😊", SearchQuery: "happy dance"}},
	{"excited", Mapping{Emoji: "🤩", SearchQuery: "excited celebration"}},
	{"surprised", Mapping{Emoji: "😲"}},
	{"shocked", Mapping{Emoji: "😱", SearchQuery: "shocked reaction"}},
	{"confused", Mapping{Emoji: "😕"}},
	{"thinking", Mapping{Emoji: "🤔"}},

	// Actions
	{"clap", Mapping{Emoji: "👏", SearchQuery: "applause clapping"}},
	{"applause", Mapping{Emoji: "👏", SearchQuery: "standing ovation"}},
	{"wave", Mapping{Emoji: "👋"}},
	{"hello", Mapping{Emoji: "👋", Text: "Hello!"}},
	{"hi", Mapping{Emoji: "👋", Text: "Hi!"}},
	{"bye", Mapping{Emoji: "👋", Text: "Bye!"}},
	{"goodbye", Mapping{Emoji: "👋", Text: "Goodbye!"}},

	// Reactions
	{"fire", Mapping{Emoji: "🔥", SearchQuery: "fire lit"}},
	{"amazing", Mapping{Emoji: "🔥", Text: "Amazing!", SearchQuery: "mind blown"}},
	{"awesome", Mapping{Emoji: "🔥", Text: "Awesome!", SearchQuery: "awesome reaction"}},
	{"cool", Mapping{Emoji: "😎", Text: "Cool!"}},
	{"nice", Mapping{Emoji: "👍", Text: "Nice!"}},
	{"great", Mapping{Emoji: "👍", Text: "Great!"}},
	{"perfect", Mapping{Emoji: "👌", Text: "Perfect!"}},
	{"excellent", Mapping{Emoji: "⭐", Text: "Excellent!"}},

	// Thanks
	{"thanks", Mapping{Emoji: "🙏", Text: "Thank you!"}},
	{"thank you", Mapping{Emoji: "🙏", Text: "Thank you!"}},
	{"appreciate", Mapping{Emoji: "🙏", Text: "Thanks!"}},

	// Questions
	{"question", Mapping{Emoji: "❓"}},
	{"what", Mapping{Emoji: "🤔"}},
	{"why", Mapping{Emoji: "🤔"}},
	{"how", Mapping{Emoji: "🤔"}},

	// Celebration
	{"celebrate", Mapping{Emoji: "🎉", SearchQuery: "celebration party"}},
	{"party", Mapping{Emoji: "🎉", SearchQuery: "party celebration"}},
	{"congratulations", Mapping{Emoji: "🎉", Text: "Congrats!", SearchQuery: "congratulations"}},
	{"congrats", Mapping{Emoji: "🎉", Text: "Congrats!", SearchQuery: "congrats celebration"}},
	{"cheers", Mapping{Emoji: "🍻"}},

	// Work
	{"good job", Mapping{Emoji: "👏", Text: "Good job!"}},
	{"well done", Mapping{Emoji: "👏", Text: "Well done!"}},
	{"bravo", Mapping{Emoji: "👏", Text: "Bravo!"}},

	// Miscellaneous
	{"wait", Mapping{Emoji: "✋", Text: "Wait!"}},
	{"stop", Mapping{Emoji: "🛑", Text: "Stop!"}},
	{"go", Mapping{Emoji: "🟢", Text: "Go!"}},
	{"idea", Mapping{Emoji: "💡"}},
	{"exactly", Mapping{Emoji: "🎯", Text: "Exactly!"}},
	{"right", Mapping{Emoji: "✅", Text: "Right!"}},
	{"wrong", Mapping{Emoji: "❌", Text: "Wrong!"}},
	{"true", Mapping{Emoji: "✅", Text: "True!"}},
	{"false", Mapping{Emoji: "❌", Text: "False!"}},
	{"maybe", Mapping{Emoji: "🤷"}},
	{"okay", Mapping{Emoji: "👌", Text: "OK!"}},
	{"ok", Mapping{Emoji: "👌", Text: "OK!"}},
}

var builtinIndex = func() map[string]Mapping {
	idx := make(map[string]Mapping, len(builtins))
	for _, b := range builtins {
		idx[b.keyword] = b.Mapping
	}
	return idx
}()

// Builtin returns the built-in mapping for keyword, if any.
func Builtin(keyword string) (Mapping, bool) {
	m, ok := builtinIndex[keyword]
	return m, ok
}
