package session

// PairKey returns the deterministic thread identifier for two users: the
// lexicographically smaller uid, an underscore, then the larger. Both
// participants compute the same key regardless of who initiates.
func PairKey(a, b string) string {
	if a < b {
		return a + "_" + b
	}
	return b + "_" + a
}

// SummaryPath is the document path of a pair's thread summary.
func SummaryPath(pairKey string) string {
	return "chats/" + pairKey
}

// MessagesPath is the collection path of a pair's message subcollection.
func MessagesPath(pairKey string) string {
	return "chats/" + pairKey + "/messages"
}
