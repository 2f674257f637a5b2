package i18n

// berneseGermanMessages contains all Bernese Swiss German (Bärndütsch) translations
var berneseGermanMessages = map[string]string{
	// Error messages
	"error.generic":             "Öppis isch schief gloffe. Probier's haut nomau, bitte.",
	"error.request.invalid":     "Ungüutigi Aafrag: %s",
	"error.auth.missing":        "Mäud di zersch uf soundcloud.com aa.",
	"error.auth.expired":        "D Sitzig isch abgloffe. Gang uf soundcloud.com u mäud di nomau aa.",
	"error.api":                 "SoundCloud het e Fähler zrügg gä (%d). Probier's nomau.",
	"error.queue.index":         "Ar Position %s het's kes Lied.",
	"error.queue.end":           "Das isch ds letschte Lied i dr Warteschlange gsi.",
	"error.queue.start":         "Du bisch scho bim erschte Lied.",
	"error.queue.empty":         "D Warteschlange isch läär. Mach zersch e nöii.",
	"error.generate.busy":       "Es wird scho e Warteschlange gmacht.",
	"error.generate.flood":      "Z viu Warteschlange ufs Mau. Probier's i %d Sekunde nomau.",
	"error.stream.unplayable":   "Das Lied cha nid gstreamt wärde.",
	"error.stream.unavailable":  "Streame geit grad nid. Probier's gli nomau.",
	"error.stream.recovery":     "D Wiedergab isch abbroche u het nid chönne grettet wärde.",
	"error.stats.empty":         "Mach zersch e Warteschlange, de lade mir dini Likes.",
	"error.settings.invalid":    "Ungüutigi Iistellige.",

	// Status messages
	"status.generated":      "%d Lieder gmischlet (%d Likes, %d Feed).",
	"status.cache_cleared":  "Gspicherti Likes u Feed glöscht.",
	"status.shuffled":       "%d Lieder düregmischlet.",
	"status.settings_saved": "Iistellige gspicheret. Si gäute ab dr nächschte Warteschlange.",

	// Progress taglines
	"progress.likes": "Dini Musiggschicht wird befreit",
	"progress.feed":  "Entdeck Musig nach dim Gusto",
	"progress.mix":   "Jahrgäng u Quelle wärde gmischlet",
}
