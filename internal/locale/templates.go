package locale

import "memoir-platform/internal/trials"

// Template base names registered with the provider's template catalog.
// The language suffix is appended by TemplateName.
const (
	TemplateReadinessCheck    = "readiness_check"
	TemplateBuyerConfirmation = "buyer_confirmation"
	TemplateSupportFallback   = "support_fallback"
)

// TemplateName appends the catalog language suffix: _hn for Hindi, _en otherwise.
func TemplateName(base string, lang trials.Language) string {
	if lang == trials.LanguageHindi {
		return base + "_hn"
	}
	return base + "_en"
}

// StartButton is the CTA label on the buyer's shareable link message.
func StartButton(lang trials.Language) string {
	return pick(lang, "Share with storyteller", "कहानीकार को भेजें")
}

// ShareLinkBody introduces the shareable link sent to the buyer.
func ShareLinkBody(lang trials.Language, storytellerName string) string {
	return pick(lang,
		"Forward this link to "+storytellerName+". When they tap it and send the message, we'll start their story.",
		"यह लिंक "+storytellerName+" को भेजें। जब वे इसे खोलकर मैसेज भेजेंगे, हम उनकी कहानी शुरू करेंगे।",
	)
}
