package usecase

import (
	"regexp"
	"strings"
)

// Language is the reply language detected while rewriting the question.
type Language string

const (
	LanguageEnglish  Language = "english"
	LanguageHindi    Language = "hindi"
	LanguageTamil    Language = "tamil"
	LanguageHinglish Language = "hinglish"
)

const (
	supportEmail = "support@study.iitm.ac.in"
	supportPhone = "7850999966"
)

var cannotAnswerMessages = map[Language]string{
	LanguageEnglish: "I'm sorry, I don't have the information to answer that question right now. " +
		"Please rephrase your question and try again. Please refer to the official IITM BS degree program website " +
		"or contact support for more details. If this is an error - please report this response using the feedback option. " +
		"You can reach out to us at " + supportEmail + " or call us at " + supportPhone,
	LanguageHindi: "मुझे खेद है, मेरे पास अभी इस प्रश्न का उत्तर देने की जानकारी नहीं है। " +
		"कृपया अपना प्रश्न दोबारा लिखें और पुनः प्रयास करें। अधिक जानकारी के लिए कृपया आधिकारिक IITM BS डिग्री प्रोग्राम वेबसाइट देखें या सहायता से संपर्क करें। " +
		"यदि यह कोई त्रुटि है - तो कृपया फीडबैक विकल्प का उपयोग करके इस प्रतिक्रिया की रिपोर्ट करें। " +
		"आप हमसे " + supportEmail + " पर संपर्क कर सकते हैं या " + supportPhone + " पर कॉल कर सकते हैं",
	LanguageTamil: "மன்னிக்கவும், இந்த கேள்விக்கு பதிலளிக்க என்னிடம் தற்போது தகவல் இல்லை. " +
		"உங்கள் கேள்வியை மீண்டும் எழுதி முயற்சிக்கவும். மேலும் விவரங்களுக்கு அதிகாரப்பூர்வ IITM BS டிகிரி புரோகிராம் இணையதளத்தைப் பார்க்கவும் அல்லது ஆதரவைத் தொடர்பு கொள்ளவும். " +
		"இது ஒரு பிழை என்றால் - பின்னூட்ட விருப்பத்தைப் பயன்படுத்தி இந்த பதிலைப் புகாரளிக்கவும். " +
		"நீங்கள் எங்களை " + supportEmail + " இல் தொடர்பு கொள்ளலாம் அல்லது " + supportPhone + " என்ற எண்ணில் அழைக்கலாம்",
	LanguageHinglish: "Maaf kijiye, mere paas abhi is sawaal ka jawaab dene ki jaankari nahi hai. " +
		"Kripya apna sawaal dobara likhein aur phir se try karein. Zyada jaankari ke liye kripya official IITM BS degree program website dekhein ya support se sampark karein. " +
		"Agar yeh koi galti hai - toh kripya feedback option use karke is response ki report karein. " +
		"Aap humse " + supportEmail + " par sampark kar sakte hain ya " + supportPhone + " par call kar sakte hain",
}

var didYouMeanHeaders = map[Language]string{
	LanguageEnglish:  "**Did you mean:**",
	LanguageHindi:    "**क्या आपका मतलब था:**",
	LanguageTamil:    "**நீங்கள் கருதுவது:**",
	LanguageHinglish: "**Kya aap ye poochna chahte the:**",
}

// ParseLanguage maps a language name to a supported Language. Unknown or
// empty names are English.
func ParseLanguage(name string) Language {
	lang := Language(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := cannotAnswerMessages[lang]; ok {
		return lang
	}
	return LanguageEnglish
}

// CannotAnswerMessage is sent when a question cannot be processed at all, as
// opposed to the guard fallback which replaces a generated answer.
func CannotAnswerMessage(lang Language) string {
	if msg, ok := cannotAnswerMessages[lang]; ok {
		return msg
	}
	return cannotAnswerMessages[LanguageEnglish]
}

var languageTag = regexp.MustCompile(`(?i)\[LANG:(\w+)\]`)

// SplitLanguageTag removes the first [LANG:x] tag from text and returns the
// remaining text with the language it named. Without a tag the language is
// English.
func SplitLanguageTag(text string) (string, Language) {
	loc := languageTag.FindStringSubmatchIndex(text)
	if loc == nil {
		return strings.TrimSpace(text), LanguageEnglish
	}
	lang := ParseLanguage(text[loc[2]:loc[3]])
	rest := text[:loc[0]] + text[loc[1]:]
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(rest, " ")), lang
}
