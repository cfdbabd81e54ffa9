package i18n

import (
	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

type Translator struct {
	bundle *goi18n.Bundle
}

func New() *Translator {
	return &Translator{bundle: goi18n.NewBundle(language.English)}
}

func (t *Translator) Add(tag language.Tag, msgs ...*goi18n.Message) error {
	return t.bundle.AddMessages(tag, msgs...)
}

// Localize renders messageID in the best match for langs (an Accept-Language
// value or tag list). It falls back to English and then to the id itself.
func (t *Translator) Localize(messageID string, data map[string]interface{}, langs ...string) string {
	localizer := goi18n.NewLocalizer(t.bundle, langs...)
	msg, err := localizer.Localize(&goi18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil || msg == "" {
		return messageID
	}
	return msg
}
