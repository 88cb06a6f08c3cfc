package bus

import "strings"

// TopicMatches reports whether a routing key matches a binding pattern under
// RabbitMQ topic-exchange rules: words are separated by dots, "*" matches
// exactly one word and "#" matches zero or more words.
func TopicMatches(pattern, topic string) bool {
	return wordsMatch(strings.Split(pattern, "."), strings.Split(topic, "."))
}

func wordsMatch(pattern, topic []string) bool {
	if len(pattern) == 0 {
		return len(topic) == 0
	}
	switch pattern[0] {
	case "#":
		// "#" may swallow zero or more leading words.
		for i := 0; i <= len(topic); i++ {
			if wordsMatch(pattern[1:], topic[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(topic) > 0 && wordsMatch(pattern[1:], topic[1:])
	default:
		return len(topic) > 0 && pattern[0] == topic[0] && wordsMatch(pattern[1:], topic[1:])
	}
}
