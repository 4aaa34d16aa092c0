package mqttsource

import "strings"

// topicMatches implements spec.md §4.G's wildcard rule, grounded
// directly on original_source/source-mqtt/src/connector.rs's
// topic_matches/match_parts: '+' matches exactly one segment, '#' must
// be terminal and matches every remaining segment (zero or more).
func topicMatches(pattern, topic string) bool {
	return matchParts(strings.Split(pattern, "/"), strings.Split(topic, "/"))
}

func matchParts(patternParts, topicParts []string) bool {
	if len(patternParts) == 0 && len(topicParts) == 0 {
		return true
	}
	if len(patternParts) > 0 && patternParts[0] == "#" {
		return true
	}
	if len(patternParts) == 0 || len(topicParts) == 0 {
		return false
	}

	head := patternParts[0]
	switch head {
	case "#":
		return true
	case "+":
		return matchParts(patternParts[1:], topicParts[1:])
	default:
		if head != topicParts[0] {
			return false
		}
		return matchParts(patternParts[1:], topicParts[1:])
	}
}

// route is a pattern -> Mapping association, kept ordered exactly as
// configured so that "first-match wins" (spec.md §4.G, end-to-end
// scenario 5) is simply "first element of matches that matches".
type route struct {
	pattern string
	mapping string // Mapping.Name
}

// Router holds the ordered list of (pattern, mapping) routes and
// resolves an inbound MQTT topic to the first mapping whose pattern
// matches it.
type Router struct {
	routes []route
}

func NewRouter() *Router { return &Router{} }

func (r *Router) Add(pattern, mappingName string) {
	r.routes = append(r.routes, route{pattern: pattern, mapping: mappingName})
}

func (r *Router) Match(topic string) (string, bool) {
	for _, rt := range r.routes {
		if topicMatches(rt.pattern, topic) {
			return rt.mapping, true
		}
	}
	return "", false
}
