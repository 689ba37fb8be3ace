package voice

import (
	"fmt"
	"sort"
	"strings"
)

// maxSpokenItems bounds how many line items are read out; the rest collapse
// into a "+N more items" suffix so long orders stay listenable.
const maxSpokenItems = 3

var languageGreetings = map[string]string{
	"en": "Hello",
	"es": "Hola",
	"fr": "Bonjour",
	"de": "Hallo",
	"it": "Ciao",
	"pt": "Olá",
	"ru": "Привет",
	"zh": "你好",
	"ja": "こんにちは",
	"ko": "안녕하세요",
	"ar": "مرحبا",
	"hi": "नमस्ते",
	"ur": "السلام علیکم",
}

// BuildConfirmationScript renders the confirmation call script.
// Items are spoken in stored order; no re-sorting.
func BuildConfirmationScript(req ScriptRequest) string {
	itemsText := ""
	if len(req.Items) > 0 {
		spoken := req.Items
		if len(spoken) > maxSpokenItems {
			spoken = spoken[:maxSpokenItems]
		}
		parts := make([]string, 0, len(spoken))
		for _, it := range spoken {
			qty := it.Quantity
			if qty <= 0 {
				qty = 1
			}
			name := it.Name
			if name == "" {
				name = "item"
			}
			parts = append(parts, fmt.Sprintf("%d %s", qty, name))
		}
		itemsText = "including " + strings.Join(parts, ", ")
		if extra := len(req.Items) - maxSpokenItems; extra > 0 {
			itemsText += fmt.Sprintf(" and %d more items", extra)
		}
	}

	script := fmt.Sprintf(
		`Hello %s, this is a call from VoiceConfirm regarding your recent order #%s.

I'm calling to confirm your order totaling %s %s %s.

Could you please confirm that you placed this order and that all the details are correct?

If you confirm this order, please say 'yes' or 'confirm'. If there are any issues or you need to cancel, please say 'no' or 'cancel'.

Thank you for your time.`,
		req.CustomerName,
		req.OrderID,
		FormatAmount(req.TotalMinor),
		req.Currency,
		itemsText,
	)

	return localizeGreeting(script, req.Language)
}

// FormatAmount renders minor units as a major-unit decimal string.
func FormatAmount(minor int64) string {
	neg := ""
	if minor < 0 {
		neg = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", neg, minor/100, minor%100)
}

func localizeGreeting(script, language string) string {
	greeting, ok := languageGreetings[language]
	if !ok || greeting == "Hello" {
		return script
	}
	if strings.HasPrefix(script, "Hello") {
		return strings.Replace(script, "Hello", greeting, 1)
	}
	return script
}

// SupportedLanguages lists the language codes the script localizer knows.
func SupportedLanguages() []string {
	out := make([]string, 0, len(languageGreetings))
	for code := range languageGreetings {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
