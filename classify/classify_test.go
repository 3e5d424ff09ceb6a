package classify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		utterance string
		want      Route
	}{
		{"weather query routes to tools", "What's the weather in Tokyo?", RouteTool},
		{"news query routes to tools", "give me the latest news", RouteTool},
		{"search request routes to tools", "search for Go generics proposals", RouteTool},
		{"haiku request is creative", "Write a haiku about coding", RouteCreative},
		{"story request is creative", "compose a short story about a robot", RouteCreative},
		{"fix request is code", "Fix this function", RouteCode},
		{"debug request is code", "debug my script please", RouteCode},
		{"explanation routes to explain", "Explain how photosynthesis works", RouteExplain},
		{"definition routes to explain", "what is a monad", RouteExplain},
		{"current events override explanation", "explain the current election results", RouteTool},
		{"empty input is simple", "", RouteSimple},
		{"short chitchat is simple", "hello there", RouteSimple},
		{"coding is not the code keyword", "thoughts on coding bootcamps", RouteSimple},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.utterance))
		})
	}
}

func TestClassify_LongQueryIsComplex(t *testing.T) {
	long := strings.Repeat("please consider this matter carefully ", 8) // 40 words
	assert.Equal(t, RouteComplex, Classify(long))
}

func TestClassify_IsPure(t *testing.T) {
	q := "What's the weather in Tokyo?"
	first := Classify(q)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Classify(q))
	}
}
