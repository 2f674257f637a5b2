package i18n

// englishMessages contains all English translations.
var englishMessages = map[string]string{
	// Error messages
	"error.generic":             "Something went wrong. Please try again.",
	"error.request.invalid":     "Invalid request: %s",
	"error.auth.missing":        "Log into soundcloud.com first.",
	"error.auth.expired":        "Session expired. Visit soundcloud.com and log in again.",
	"error.api":                 "SoundCloud answered with an error (%d). Please try again.",
	"error.queue.index":         "There is no track at position %s.",
	"error.queue.end":           "That was the last track in the queue.",
	"error.queue.start":         "Already at the first track.",
	"error.queue.empty":         "The queue is empty. Generate a queue first.",
	"error.generate.busy":       "A queue is already being generated.",
	"error.generate.flood":      "Too many queue generations. Try again in %d seconds.",
	"error.stream.unplayable":   "This track can't be streamed.",
	"error.stream.unavailable":  "Streaming is temporarily unavailable. Please try again shortly.",
	"error.stream.recovery":     "Playback failed and could not be recovered.",
	"error.stats.empty":         "Generate a queue first to load your likes data.",
	"error.settings.invalid":    "Invalid settings.",

	// Status messages
	"status.generated":      "Generated %d tracks (%d likes, %d feed).",
	"status.cache_cleared":  "Cleared cached likes and feed.",
	"status.shuffled":       "Shuffled %d tracks.",
	"status.settings_saved": "Settings saved. They apply to the next generated queue.",

	// Progress taglines
	"progress.likes": "Liberating your music history",
	"progress.feed":  "Empowering music discovery of your choice",
	"progress.mix":   "Mixing years and sources",
}
