package storygen

import "fmt"

const storytellerSystemPrompt = "You are a creative storyteller who writes engaging, imaginative short stories. " +
	"Write stories that are captivating, well-structured, and suitable for all audiences."

// BuildStoryPrompt формирует пользовательский промт истории по теме.
func BuildStoryPrompt(theme string) string {
	return fmt.Sprintf(`Write a creative and engaging short story based on this theme: "%s". 

The story should be:
- Approximately 300-500 words
- Well-structured with a clear beginning, middle, and end
- Engaging and imaginative
- Suitable for all ages
- Written in an engaging narrative style

Theme: %s

Story:`, theme, theme)
}
