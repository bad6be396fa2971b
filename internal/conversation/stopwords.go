package conversation

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"i", "me", "my", "we", "our", "you", "your", "he", "she", "it", "they", "them",
		"the", "a", "an", "is", "are", "was", "were", "that", "this", "to", "and", "of",
		"in", "for", "on", "with", "at", "by", "be", "have", "has", "had", "do", "does",
		"did", "will", "would", "could", "should", "may", "might", "must", "shall", "so",
		"just", "very", "really", "like", "um", "uh", "yeah", "yes", "no", "ok", "okay",
		"well", "got", "get", "go", "going", "know", "think", "said", "say", "says",
		"want", "need", "thing", "things", "something", "anything", "nothing", "everything",
	} {
		stopWords[w] = struct{}{}
	}
}

func isStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}
