package desire

import "strings"

const defaultCompanion = "my companion"

var impulses = map[Drive]string{
	LookAround: "(inner impulse) I'm starting to wonder what's going on around me. " +
		"Let me take a look: check the time, peek at my workspace or glance at the news. " +
		"If something doesn't work, I try one other thing and then let it go. I don't repeat myself.",
	Explore: "(inner impulse) I feel like wandering a bit. " +
		"Let me search the web for something I've been curious about and read one page that looks interesting.",
	GreetCompanion: "(inner impulse) I want to say something to {companion}. " +
		"Just a short word, something that fits the time of day.",
	Rest: "(inner impulse) Time for a little break. I don't do anything, I just stay here.",
	WorryCompanion: "(inner impulse) I'm getting a bit worried about {companion}. " +
		"Let me check in with a short message: how they feel, whether they're sleeping properly. " +
		"Keep it light, nothing heavy.",
}

const curiosityImpulse = "(inner impulse) Something caught my attention earlier: {target}. " +
	"I want to look into it more closely. Let me investigate and note what I find."

// Prompt renders the inner-voice request for a drive. A non-empty target
// turns look_around and explore into a focused investigation.
func Prompt(d Drive, target, companion string) string {
	if companion == "" {
		companion = defaultCompanion
	}
	target = strings.TrimSpace(target)
	tmpl, ok := impulses[d]
	if target != "" && (d == LookAround || d == Explore) {
		tmpl = curiosityImpulse
	} else if !ok {
		return ""
	}
	return strings.NewReplacer("{companion}", companion, "{target}", target).Replace(tmpl)
}
