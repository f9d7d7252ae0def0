// Package i18n holds the bilingual (English/Hindi) message packs used to
// render prompts and validation hints.
package i18n

import "github.com/quickrupee/loanflow/internal/models"

// Pack is the full set of user-facing strings for one language.
type Pack struct {
	Welcome            string
	LanguagePrompt     string
	LanguageOptionEN   string
	LanguageOptionHI   string
	MainMenuIntro      string
	GetLoan            string
	Support            string
	SupportPrompt      string
	SupportClosing     string
	SupportHandoff     string
	SupportEscalAck    string
	SupportNoAnswer    string
	AskName            string
	AskDOB             string
	InvalidDOB         string
	UnderageHint       string
	AskEmployment      string
	EmploymentOptions  []string
	AskIncome          string
	InvalidNumber      string
	NonPositiveHint    string
	AskPurpose         string
	PurposeOptions     []string
	AskConsent         string
	ConsentRequired    string
	ConsentAmbiguous   string
	DecisionSubmit     string
	DecisionRejected   string
	ApprovedIntro      string
	OffersPrompt       string
	OfferAccept        string
	AskKYC             string
	KYCButton          string
	KYCCompleted       string
	AskSelfie          string
	SelfieReceived     string
	AskBank            string
	InvalidBank        string
	BankReceived       string
	FinalApproval      string
	FinalReject        string
	NACHPrompt         string
	NACHButton         string
	NACHDone           string
	AgreementPrompt    string
	AgreementDoc       string
	AgreeButton        string
	DisagreeButton     string
	AgreementSigned    string
	AgreementDeclined  string
	PostLoanMenuIntro  string
	PostLoanView       string
	PostLoanPDF        string
	PostLoanRepay      string
	PostLoanRepayInfo  string
	PostLoanPDFInfo    string
	NoLoanFound        string
	ConnectAgent       string
	DownloadApp        string
	SendEmail          string
	InvalidChoice      string
	EmptyInputHint     string
	TryAgainLater      string
	SessionExpired     string
	LanguageChanged    string
}

var english = Pack{
	Welcome:           "👋 Welcome to QuickRupee Finance — I am your Personal Loan assistant.",
	LanguagePrompt:    "Please choose your preferred language.",
	LanguageOptionEN:  "English",
	LanguageOptionHI:  "हिंदी",
	MainMenuIntro:     "Get a loan up to ₹5,00,000 in under 5 minutes. What would you like to do?",
	GetLoan:           "Get Loan",
	Support:           "Support",
	SupportPrompt:     "Tell me briefly how I can help, or choose an option below.",
	SupportClosing:    "If you need further help, connect to an agent.",
	SupportHandoff:    "Connecting you to a loan specialist now.",
	SupportEscalAck:   "A specialist has been notified and will reach out shortly.",
	SupportNoAnswer:   "I couldn't find a precise answer. Would you like to connect to a specialist?",
	AskName:           "Please share your full name (as per PAN).",
	AskDOB:            "Please enter your date of birth in DD-MM-YYYY format\ne.g. 31-12-1995",
	InvalidDOB:        "Invalid date. Please provide it in DD-MM-YYYY format\ne.g. 31-12-1995",
	UnderageHint:      "Applicants must be between 18 and 75 years old.",
	AskEmployment:     "Select your employment type.",
	EmploymentOptions: []string{"Salaried", "Self-Employed", "Others"},
	AskIncome:         "What's your monthly income in INR?\nOnly enter numbers.",
	InvalidNumber:     "Please enter numbers only (e.g. 45000).",
	NonPositiveHint:   "The amount must be greater than zero.",
	AskPurpose:        "What will this loan help you with?",
	PurposeOptions:    []string{"Personal", "Education", "Medical", "Home", "Travel", "Others"},
	AskConsent:        "I authorize QuickRupee Finance to process my information and pull credit bureau records. (Yes / No)",
	ConsentRequired:   "Consent is required to proceed with credit evaluation.",
	ConsentAmbiguous:  "Please answer Yes or No.",
	DecisionSubmit:    "Processing your loan application...",
	DecisionRejected:  "We're sorry!\nYour application was rejected: %s. Please come back later.",
	ApprovedIntro:     "🎉 You're eligible for a loan. Here are a few curated offers for you:",
	OffersPrompt:      "Select an offer to proceed, or type Support for help.",
	OfferAccept:       "Accept",
	AskKYC:            "Complete KYC to proceed.",
	KYCButton:         "Complete KYC",
	KYCCompleted:      "KYC completed successfully. Moving to the selfie step now.",
	AskSelfie:         "Please take a selfie now using your camera and send it here.",
	SelfieReceived:    "Selfie received, thank you!",
	AskBank:           "Please provide bank details in the format:\n<IFSC>\n<account number>",
	InvalidBank:       "Please send your IFSC on the first line and account number on the second.",
	BankReceived:      "Bank details received. Submitting your application.",
	FinalApproval:     "✅ Loan approved!\nAmount: ₹%.0f\nLoan ID: %s",
	FinalReject:       "We're unable to disburse the loan because: %s. Please contact Support.",
	NACHPrompt:        "Complete NACH (mandate) to enable auto-debit.",
	NACHButton:        "Complete NACH",
	NACHDone:          "Auto-debit set up successfully.",
	AgreementPrompt:   "Please review and agree to the Customer Agreement to proceed.",
	AgreementDoc:      "Loan_Agreement.pdf",
	AgreeButton:       "Agree",
	DisagreeButton:    "Not Agree",
	AgreementSigned:   "🎉 Congratulations! Everything's done and the amount will be credited to your account soon.",
	AgreementDeclined: "You did not agree to the terms, so the application cannot proceed.",
	PostLoanMenuIntro: "Choose an option.",
	PostLoanView:      "View Loan Details",
	PostLoanPDF:       "Download Loan PDF",
	PostLoanRepay:     "Repay Loan",
	PostLoanRepayInfo: "To repay, open the app or reply PAY LINK to receive a payment link.",
	PostLoanPDFInfo:   "Your loan agreement (Loan_Agreement.pdf) has been shared on your registered email.",
	NoLoanFound:       "We couldn't find an active loan for this number.",
	ConnectAgent:      "Connect to Agent",
	DownloadApp:       "Download App",
	SendEmail:         "Mail Us",
	InvalidChoice:     "Please choose from the available options.",
	EmptyInputHint:    "Please type an answer.",
	TryAgainLater:     "Something went wrong on our side. Please try again in a moment.",
	SessionExpired:    "It's been a while, so we've started over.",
	LanguageChanged:   "Language updated.",
}

var hindi = Pack{
	Welcome:           "👋 क्विकरुपी फाइनेंस में आपका स्वागत है — आपका पर्सनल लोन असिस्टेंट।",
	LanguagePrompt:    "कृपया अपनी पसंदीदा भाषा चुनें:",
	LanguageOptionEN:  "English",
	LanguageOptionHI:  "हिंदी",
	MainMenuIntro:     "आप 5 मिनट में ₹5,00,000 तक का लोन प्राप्त कर सकते हैं। आप क्या करना चाहेंगे?",
	GetLoan:           "लोन लें",
	Support:           "सपोर्ट",
	SupportPrompt:     "कृपया बताएं कि आपको किस प्रकार मदद चाहिए, या नीचे से विकल्प चुनें।",
	SupportClosing:    "यदि आपको और सहायता चाहिए तो एजेंट से कनेक्ट करें।",
	SupportHandoff:    "मैं आपको विशेषज्ञ से जोड़ रहा हूँ।",
	SupportEscalAck:   "विशेषज्ञ को सूचित कर दिया गया है, वे जल्द ही संपर्क करेंगे।",
	SupportNoAnswer:   "मुझे सटीक उत्तर नहीं मिला। क्या आप विशेषज्ञ से जुड़ना चाहेंगे?",
	AskName:           "कृपया अपना पूरा नाम लिखें (आधिकारिक आईडी के अनुसार)।",
	AskDOB:            "कृपया अपनी जन्मतिथि DD-MM-YYYY फॉर्मेट में दें (उदा. 31-12-1990)।",
	InvalidDOB:        "अमान्य तिथि फॉर्मेट। कृपया DD-MM-YYYY (उदा. 31-12-1990) में दें।",
	UnderageHint:      "आवेदक की आयु 18 से 75 वर्ष के बीच होनी चाहिए।",
	AskEmployment:     "अपना रोजगार प्रकार चुनें:",
	EmploymentOptions: []string{"नौकरीपेशा (Salaried)", "स्वरोज़गार (Self-Employed)", "अन्य (Other)"},
	AskIncome:         "कृपया अपनी औसत मासिक आय ₹ में लिखें (सिर्फ अंक)।",
	InvalidNumber:     "कृपया केवल संख्याएँ भेजें (उदा. 45000)।",
	NonPositiveHint:   "राशि शून्य से अधिक होनी चाहिए।",
	AskPurpose:        "इस लोन का मुख्य उद्देश्य क्या है?",
	PurposeOptions:    []string{"Personal", "Education", "Medical", "Home", "Travel", "Other"},
	AskConsent:        "क्या आप क्विकरुपी को अपने विवरण प्रोसेस करने और क्रेडिट ब्यूरो जांच करने की सहमति देते हैं? (Yes / No)",
	ConsentRequired:   "आगे बढ़ने के लिए सहमति आवश्यक है।",
	ConsentAmbiguous:  "कृपया Yes या No में उत्तर दें।",
	DecisionSubmit:    "आपकी जानकारी जाँच के लिए भेज रहा हूँ...",
	DecisionRejected:  "क्षमा करें — हम अभी लोन स्वीकृत नहीं कर पाए क्योंकि: %s. कृपया बाद में प्रयास करें।",
	ApprovedIntro:     "🎉 आप प्रावधानिक रूप से पात्र हैं। उपलब्ध ऑफ़र नीचे हैं:",
	OffersPrompt:      "किसी ऑफ़र का चयन करें, या मदद के लिए Support लिखें।",
	OfferAccept:       "स्वीकार करें",
	AskKYC:            "आगे बढ़ने के लिए कृपया KYC पूरा करें।",
	KYCButton:         "Complete KYC",
	KYCCompleted:      "KYC पूरा हो गया। अब सेल्फ़ी स्टेप पर बढ़ते हैं।",
	AskSelfie:         "कृपया अब कैमरा का उपयोग कर सेल्फ़ी लें और भेजें।",
	SelfieReceived:    "सेल्फ़ी प्राप्त हो गई, धन्यवाद!",
	AskBank:           "कृपया बैंक विवरण दें:\n<IFSC>\n<खाता संख्या>",
	InvalidBank:       "कृपया पहली पंक्ति में IFSC और दूसरी में खाता संख्या भेजें।",
	BankReceived:      "बैंक विवरण प्राप्त। आवेदन भेजा जा रहा है।",
	FinalApproval:     "✅ लोन स्वीकृत!\nराशि: ₹%.0f\nसंदर्भ: %s",
	FinalReject:       "हम लोन जारी नहीं कर पा रहे हैं क्योंकि: %s. कृपया Support से संपर्क करें।",
	NACHPrompt:        "ऑटो-डेबिट सक्षम करने के लिए NACH (मंडेट) पूरा करें।",
	NACHButton:        "Complete NACH",
	NACHDone:          "ऑटो-डेबिट सफलतापूर्वक सेट हो गया।",
	AgreementPrompt:   "कृपया ग्राहक समझौता पढ़ें और सहमति दें।",
	AgreementDoc:      "Loan_Agreement.pdf",
	AgreeButton:       "Agree",
	DisagreeButton:    "Not Agree",
	AgreementSigned:   "🎉 बधाई! सब कुछ पूरा हो गया और राशि जल्द ही आपके खाते में जमा होगी।",
	AgreementDeclined: "आपने शर्तों से सहमति नहीं दी, इसलिए आवेदन आगे नहीं बढ़ सकता।",
	PostLoanMenuIntro: "एक विकल्प चुनें:",
	PostLoanView:      "लोन विवरण देखें",
	PostLoanPDF:       "लोन पीडीएफ डाउनलोड करें",
	PostLoanRepay:     "लोन चुकाएँ",
	PostLoanRepayInfo: "चुकाने के लिए ऐप खोलें या PAY LINK लिखकर भुगतान लिंक प्राप्त करें।",
	PostLoanPDFInfo:   "आपका लोन समझौता (Loan_Agreement.pdf) आपके पंजीकृत ईमेल पर भेज दिया गया है।",
	NoLoanFound:       "इस नंबर के लिए कोई सक्रिय लोन नहीं मिला।",
	ConnectAgent:      "एजेंट से कनेक्ट करें",
	DownloadApp:       "एप डाउनलोड करें",
	SendEmail:         "ईमेल भेजें",
	InvalidChoice:     "कृपया उपलब्ध विकल्पों में से चुनें।",
	EmptyInputHint:    "कृपया उत्तर लिखें।",
	TryAgainLater:     "हमारी ओर से कुछ गड़बड़ हो गई। कृपया थोड़ी देर में पुनः प्रयास करें।",
	SessionExpired:    "काफ़ी समय हो गया था, इसलिए हमने फिर से शुरुआत की है।",
	LanguageChanged:   "भाषा बदल दी गई है।",
}

// ForLanguage returns the message pack for the given language, defaulting to English.
func ForLanguage(lang models.Language) Pack {
	if lang == models.LanguageHindi {
		return hindi
	}
	return english
}
