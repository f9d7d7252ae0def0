package flow

import (
	"fmt"
	"strings"

	"github.com/quickrupee/loanflow/internal/i18n"
	"github.com/quickrupee/loanflow/internal/models"
)

// languageOptions is shared by the language-select step and the global
// "language" command.
func languageOptions(pack i18n.Pack) []models.ChoiceOption {
	return []models.ChoiceOption{
		{ID: OptLangEN, Label: pack.LanguageOptionEN},
		{ID: OptLangHI, Label: pack.LanguageOptionHI},
	}
}

func mainMenuOptions(pack i18n.Pack) []models.ChoiceOption {
	return []models.ChoiceOption{
		{ID: OptGetLoan, Label: pack.GetLoan},
		{ID: OptSupport, Label: pack.Support},
	}
}

func indexedOptions(prefix string, labels []string) []models.ChoiceOption {
	opts := make([]models.ChoiceOption, 0, len(labels))
	for i, label := range labels {
		opts = append(opts, models.ChoiceOption{ID: fmt.Sprintf("%s%d", prefix, i), Label: label})
	}
	return opts
}

// offerOptions renders one selectable option per stored offer.
func offerOptions(offers []models.Offer, pack i18n.Pack) []models.ChoiceOption {
	opts := make([]models.ChoiceOption, 0, len(offers)+1)
	for _, o := range offers {
		label := fmt.Sprintf("₹%.0f / %d mo / EMI ₹%.0f", o.Amount, o.TermMonths, o.MonthlyEMI)
		opts = append(opts, models.ChoiceOption{ID: OfferOptionPrefix + o.ID, Label: label})
	}
	opts = append(opts, models.ChoiceOption{ID: OptConnectAgent, Label: pack.ConnectAgent})
	return opts
}

func postLoanOptions(pack i18n.Pack) []models.ChoiceOption {
	return []models.ChoiceOption{
		{ID: OptPostView, Label: pack.PostLoanView},
		{ID: OptPostPDF, Label: pack.PostLoanPDF},
		{ID: OptPostRepay, Label: pack.PostLoanRepay},
		{ID: OptPostSupport, Label: pack.Support},
	}
}

func supportOptions(pack i18n.Pack) []models.ChoiceOption {
	return []models.ChoiceOption{
		{ID: OptConnectAgent, Label: pack.ConnectAgent},
		{ID: OptDownloadApp, Label: pack.DownloadApp},
		{ID: OptSendEmail, Label: pack.SendEmail},
	}
}

// PromptForStep builds the localized outbound prompt announcing a step.
// Side-effect steps have no prompt of their own; callers never announce them.
func PromptForStep(step JourneyStep, s *models.Session, pack i18n.Pack) models.PromptSpec {
	switch step.ID {
	case StepLanguageSelect:
		return models.PromptSpec{
			Kind:    models.PromptChoice,
			Body:    pack.Welcome + "\n" + pack.LanguagePrompt,
			Options: languageOptions(pack),
		}
	case StepIntentConfirm:
		return models.PromptSpec{
			Kind:    models.PromptChoice,
			Body:    pack.MainMenuIntro,
			Options: mainMenuOptions(pack),
		}
	case StepName:
		return models.PromptSpec{Kind: models.PromptText, Body: pack.AskName}
	case StepDOB:
		return models.PromptSpec{Kind: models.PromptText, Body: pack.AskDOB}
	case StepEmployment:
		return models.PromptSpec{
			Kind:    models.PromptChoice,
			Body:    pack.AskEmployment,
			Options: indexedOptions(EmploymentOptionPrefix, pack.EmploymentOptions),
		}
	case StepIncome:
		return models.PromptSpec{Kind: models.PromptText, Body: pack.AskIncome}
	case StepPurpose:
		return models.PromptSpec{
			Kind:    models.PromptChoice,
			Body:    pack.AskPurpose,
			Options: indexedOptions(PurposeOptionPrefix, pack.PurposeOptions),
		}
	case StepConsent:
		return models.PromptSpec{Kind: models.PromptText, Body: pack.AskConsent}
	case StepOfferSelect:
		return models.PromptSpec{
			Kind:    models.PromptChoice,
			Body:    pack.ApprovedIntro + "\n" + renderOfferSummaries(s.Offers) + "\n" + pack.OffersPrompt,
			Options: offerOptions(s.Offers, pack),
		}
	case StepKYCAck:
		return models.PromptSpec{
			Kind:    models.PromptChoice,
			Body:    pack.AskKYC,
			Options: []models.ChoiceOption{{ID: OptKYCComplete, Label: pack.KYCButton}},
		}
	case StepSelfieAck:
		return models.PromptSpec{Kind: models.PromptDocument, Body: pack.AskSelfie, DocumentName: "selfie"}
	case StepBankDetails:
		return models.PromptSpec{Kind: models.PromptText, Body: pack.AskBank}
	case StepNACHAck:
		return models.PromptSpec{
			Kind:    models.PromptChoice,
			Body:    pack.NACHPrompt,
			Options: []models.ChoiceOption{{ID: OptNACHComplete, Label: pack.NACHButton}},
		}
	case StepAgreementAck:
		return models.PromptSpec{
			Kind:         models.PromptChoice,
			Body:         pack.AgreementPrompt,
			Options:      []models.ChoiceOption{{ID: OptAgreeYes, Label: pack.AgreeButton}, {ID: OptAgreeNo, Label: pack.DisagreeButton}},
			DocumentName: pack.AgreementDoc,
		}
	case StepSupportQuestion:
		return models.PromptSpec{
			Kind:    models.PromptChoice,
			Body:    pack.SupportPrompt,
			Options: supportOptions(pack),
		}
	case StepPostLoanMenu:
		return models.PromptSpec{
			Kind:    models.PromptChoice,
			Body:    pack.PostLoanMenuIntro,
			Options: postLoanOptions(pack),
		}
	default:
		return models.PromptSpec{Kind: models.PromptText, Body: pack.InvalidChoice}
	}
}

// renderOfferSummaries produces the detail block shown above offer options.
func renderOfferSummaries(offers []models.Offer) string {
	var b strings.Builder
	for i, o := range offers {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: ₹%.0f | %d months | APR %.1f%% | fee %.1f%% | EMI ₹%.0f",
			o.ID, o.Amount, o.TermMonths, o.APR, o.ProcessingFeePct, o.MonthlyEMI)
	}
	return b.String()
}

// HintForValidationError maps a validation failure to the localized re-prompt
// hint for the step that rejected the input.
func HintForValidationError(err error, step JourneyStep, pack i18n.Pack) string {
	switch {
	case err == models.ErrEmpty:
		return pack.EmptyInputHint
	case step.Field == models.FieldDate && err == models.ErrUnderage:
		return pack.UnderageHint
	case step.Field == models.FieldDate:
		return pack.InvalidDOB
	case step.Field == models.FieldNumeric && err == models.ErrNonPositive:
		return pack.NonPositiveHint
	case step.Field == models.FieldNumeric:
		return pack.InvalidNumber
	case step.Field == models.FieldBoolean:
		return pack.ConsentAmbiguous
	case step.Field == models.FieldLines:
		return pack.InvalidBank
	default:
		return pack.InvalidChoice
	}
}
