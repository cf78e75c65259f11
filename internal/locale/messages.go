package locale

import (
	"fmt"

	"memoir-platform/internal/trials"
)

// Message is one localized outbound text. Each kind carries exactly the
// parameters its text needs.
type Message interface {
	Render(lang trials.Language) string
}

func pick(lang trials.Language, en, hn string) string {
	if lang == trials.LanguageHindi {
		return hn
	}
	return en
}

// Onboarding is the first message a storyteller receives.
type Onboarding struct {
	StorytellerName string
	BuyerName       string
	AlbumTitle      string
}

func (m Onboarding) Render(lang trials.Language) string {
	return pick(lang,
		fmt.Sprintf("Namaste %s! %s has gifted you \"%s\", a collection of your stories in your own voice. I'll send you one question at a time and you can answer with a voice note whenever you like.", m.StorytellerName, m.BuyerName, m.AlbumTitle),
		fmt.Sprintf("नमस्ते %s! %s ने आपको \"%s\" उपहार में दिया है, आपकी कहानियों का संग्रह आपकी अपनी आवाज़ में। मैं आपको एक-एक करके सवाल भेजूँगा और आप जब चाहें वॉइस नोट से जवाब दे सकते हैं।", m.StorytellerName, m.BuyerName, m.AlbumTitle),
	)
}

// ReadinessMaybeAck acknowledges a "maybe later" reply.
type ReadinessMaybeAck struct{}

func (ReadinessMaybeAck) Render(lang trials.Language) string {
	return pick(lang,
		"No problem! I'll check back with you in a few hours.",
		"कोई बात नहीं! मैं कुछ घंटों में फिर पूछूँगा।",
	)
}

// Question is one album question with its progress marker.
type Question struct {
	Number int
	Total  int
	Text   string
}

func (m Question) Render(lang trials.Language) string {
	return pick(lang,
		fmt.Sprintf("Question %d of %d:\n\n%s\n\nReply with a voice note whenever you are ready.", m.Number, m.Total, m.Text),
		fmt.Sprintf("सवाल %d / %d:\n\n%s\n\nजब तैयार हों, वॉइस नोट से जवाब दें।", m.Number, m.Total, m.Text),
	)
}

// BatchPremise introduces a batch of a conversational album.
type BatchPremise struct {
	Title   string
	Premise string
}

func (m BatchPremise) Render(lang trials.Language) string {
	if m.Title == "" {
		return m.Premise
	}
	return fmt.Sprintf("*%s*\n\n%s", m.Title, m.Premise)
}

// AnswerAck closes an answer that ends the day's questions.
type AnswerAck struct{}

func (AnswerAck) Render(lang trials.Language) string {
	return pick(lang,
		"Thank you for sharing this story! I'll send you the next question tomorrow.",
		"यह कहानी साझा करने के लिए धन्यवाद! अगला सवाल मैं कल भेजूँगा।",
	)
}

// IntermediateAck acknowledges an answer inside a batch; the next question follows immediately.
type IntermediateAck struct{}

func (IntermediateAck) Render(lang trials.Language) string {
	return pick(lang,
		"Beautiful, thank you! Here's the next one.",
		"बहुत सुंदर, धन्यवाद! यह रहा अगला सवाल।",
	)
}

// Reminder nudges a storyteller who has not answered yet.
type Reminder struct {
	StorytellerName string
}

func (m Reminder) Render(lang trials.Language) string {
	return pick(lang,
		fmt.Sprintf("Hi %s, just a gentle reminder: your family is waiting to hear your answer. Send a voice note whenever you have a moment.", m.StorytellerName),
		fmt.Sprintf("नमस्ते %s, एक छोटा सा रिमाइंडर: आपका परिवार आपका जवाब सुनने का इंतज़ार कर रहा है। जब समय मिले, वॉइस नोट भेजें।", m.StorytellerName),
	)
}

// CompletionStoryteller thanks the storyteller after the final answer.
type CompletionStoryteller struct {
	StorytellerName string
}

func (m CompletionStoryteller) Render(lang trials.Language) string {
	return pick(lang,
		fmt.Sprintf("%s, you've answered every question! Thank you for sharing your stories. Your family will treasure them.", m.StorytellerName),
		fmt.Sprintf("%s, आपने सभी सवालों के जवाब दे दिए! अपनी कहानियाँ साझा करने के लिए धन्यवाद। आपका परिवार इन्हें हमेशा संजो कर रखेगा।", m.StorytellerName),
	)
}

// CompletionBuyer tells the buyer the album is ready.
type CompletionBuyer struct {
	BuyerName       string
	StorytellerName string
	AlbumURL        string
}

func (m CompletionBuyer) Render(lang trials.Language) string {
	return pick(lang,
		fmt.Sprintf("Hi %s! %s has finished recording every story. Listen to the album here: %s", m.BuyerName, m.StorytellerName, m.AlbumURL),
		fmt.Sprintf("नमस्ते %s! %s ने सभी कहानियाँ रिकॉर्ड कर ली हैं। एल्बम यहाँ सुनें: %s", m.BuyerName, m.StorytellerName, m.AlbumURL),
	)
}

// AnotherActiveStory tells a storyteller with several active trials which one comes first.
type AnotherActiveStory struct {
	AlbumTitle string
}

func (m AnotherActiveStory) Render(lang trials.Language) string {
	return pick(lang,
		fmt.Sprintf("You have more than one story in progress. Let's finish \"%s\" first and we'll get to the next one right after.", m.AlbumTitle),
		fmt.Sprintf("आपकी एक से ज़्यादा कहानियाँ चल रही हैं। पहले \"%s\" पूरी करते हैं, उसके बाद अगली शुरू करेंगे।", m.AlbumTitle),
	)
}

// FoundCollection confirms that a shared link matched the storyteller's collection.
type FoundCollection struct {
	AlbumTitle string
}

func (m FoundCollection) Render(lang trials.Language) string {
	return pick(lang,
		fmt.Sprintf("I found your collection \"%s\".", m.AlbumTitle),
		fmt.Sprintf("मुझे आपका संग्रह \"%s\" मिल गया।", m.AlbumTitle),
	)
}

// SendVoiceNote asks for an answer as audio.
type SendVoiceNote struct{}

func (SendVoiceNote) Render(lang trials.Language) string {
	return pick(lang,
		"Please answer the current question by sending a voice note.",
		"कृपया मौजूदा सवाल का जवाब वॉइस नोट भेजकर दें।",
	)
}

// BuyerLinkGuidance is sent when a buyer opens the link meant for the storyteller.
type BuyerLinkGuidance struct {
	StorytellerName string
}

func (m BuyerLinkGuidance) Render(lang trials.Language) string {
	return pick(lang,
		fmt.Sprintf("It looks like you opened the link meant for %s. Please forward that link to %s so they can start recording.", m.StorytellerName, m.StorytellerName),
		fmt.Sprintf("लगता है आपने %s के लिए बना लिंक खोला है। कृपया यह लिंक %s को भेजें ताकि वे रिकॉर्डिंग शुरू कर सकें।", m.StorytellerName, m.StorytellerName),
	)
}

// NoTrialFound is the reply when a reference cannot be matched.
type NoTrialFound struct{}

func (NoTrialFound) Render(lang trials.Language) string {
	return pick(lang,
		"Sorry, I couldn't find a story collection for this number. Please use the link you received to get started.",
		"माफ़ कीजिए, इस नंबर के लिए कोई कहानी संग्रह नहीं मिला। शुरू करने के लिए कृपया आपको मिला लिंक इस्तेमाल करें।",
	)
}

// PhotoRequest asks the buyer for a cover photo.
type PhotoRequest struct {
	BuyerName       string
	StorytellerName string
}

func (m PhotoRequest) Render(lang trials.Language) string {
	return pick(lang,
		fmt.Sprintf("Hi %s! %s's album is coming along. Send us a photo of %s here and we'll use it as the album cover.", m.BuyerName, m.StorytellerName, m.StorytellerName),
		fmt.Sprintf("नमस्ते %s! %s का एल्बम तैयार हो रहा है। %s की एक फ़ोटो यहाँ भेजें, हम उसे एल्बम कवर बनाएँगे।", m.BuyerName, m.StorytellerName, m.StorytellerName),
	)
}

// CoverPhotoSaved acknowledges a processed cover photo.
type CoverPhotoSaved struct{}

func (CoverPhotoSaved) Render(lang trials.Language) string {
	return pick(lang,
		"Thank you! The photo is now the album cover.",
		"धन्यवाद! यह फ़ोटो अब एल्बम कवर है।",
	)
}

// CoverStage names the step of the cover pipeline that failed.
type CoverStage string

const (
	CoverStageDownload CoverStage = "download"
	CoverStageCompress CoverStage = "compress"
	CoverStageUpload   CoverStage = "upload"
	CoverStageSave     CoverStage = "save"
)

// CoverPhotoFailed reports a cover pipeline failure to the buyer.
type CoverPhotoFailed struct {
	Stage CoverStage
}

func (m CoverPhotoFailed) Render(lang trials.Language) string {
	switch m.Stage {
	case CoverStageDownload:
		return pick(lang,
			"Sorry, I couldn't download that photo. Could you send it again?",
			"माफ़ कीजिए, मैं वह फ़ोटो डाउनलोड नहीं कर सका। क्या आप उसे फिर से भेज सकते हैं?",
		)
	case CoverStageCompress:
		return pick(lang,
			"Sorry, I couldn't read that image. Please send a JPEG or PNG photo.",
			"माफ़ कीजिए, वह इमेज पढ़ी नहीं जा सकी। कृपया JPEG या PNG फ़ोटो भेजें।",
		)
	default:
		return pick(lang,
			"Sorry, something went wrong while saving the photo. Please try again in a little while.",
			"माफ़ कीजिए, फ़ोटो सेव करते समय कुछ गड़बड़ हो गई। कृपया थोड़ी देर बाद फिर कोशिश करें।",
		)
	}
}

// CheckinStoryteller is the post-completion feedback check-in for the storyteller.
type CheckinStoryteller struct {
	StorytellerName string
}

func (m CheckinStoryteller) Render(lang trials.Language) string {
	return pick(lang,
		fmt.Sprintf("Hi %s, how did you enjoy recording your stories? We'd love to hear your thoughts.", m.StorytellerName),
		fmt.Sprintf("नमस्ते %s, अपनी कहानियाँ रिकॉर्ड करना आपको कैसा लगा? हमें आपकी राय जानकर खुशी होगी।", m.StorytellerName),
	)
}

// CheckinBuyer is the post-completion feedback check-in for the buyer.
type CheckinBuyer struct {
	BuyerName string
}

func (m CheckinBuyer) Render(lang trials.Language) string {
	return pick(lang,
		fmt.Sprintf("Hi %s, have you had a chance to listen to the album? Tell us what you think.", m.BuyerName),
		fmt.Sprintf("नमस्ते %s, क्या आपने एल्बम सुना? हमें बताइए आपको कैसा लगा।", m.BuyerName),
	)
}

// Apology is the generic degraded-path reply.
type Apology struct{}

func (Apology) Render(lang trials.Language) string {
	return pick(lang,
		"Sorry, something went wrong on our side. Please try again in a little while.",
		"माफ़ कीजिए, हमारी तरफ़ से कुछ गड़बड़ हो गई। कृपया थोड़ी देर बाद फिर कोशिश करें।",
	)
}
