package outbox

import (
	"fmt"
	"net/url"
	"time"

	"memoir-platform/internal/locale"
	"memoir-platform/internal/trials"
	"memoir-platform/internal/whatsapp"
)

// PairingDelay separates paired messages so they arrive in order.
const PairingDelay = 2 * time.Second

// ShareLink is the wa.me link the buyer forwards to the storyteller.
// Opening it pre-fills a message carrying the st_ reference token.
func ShareLink(businessNumber, trialID string) string {
	return fmt.Sprintf("https://wa.me/%s?text=%s", trials.NormalizePhone(businessNumber), url.QueryEscape("st_"+trialID))
}

// BuyerOnboarding is the confirmation template, a pause, then the shareable link.
func BuyerOnboarding(t trials.Trial, businessNumber string) []Effect {
	return []Effect{
		Template{
			To: t.BuyerPhone,
			Template: whatsapp.Template{
				Name:       locale.TemplateName(locale.TemplateBuyerConfirmation, t.Language),
				BodyParams: []string{t.BuyerName, t.StorytellerName, t.AlbumTitle},
			},
		},
		Pause{D: PairingDelay},
		CTA{
			To: t.BuyerPhone,
			CTA: whatsapp.CTA{
				Body:        locale.ShareLinkBody(t.Language, t.StorytellerName),
				ButtonLabel: locale.StartButton(t.Language),
				URL:         ShareLink(businessNumber, t.ID),
			},
		},
	}
}
