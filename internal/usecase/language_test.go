package usecase_test

import (
	"testing"

	"programme-qa/internal/usecase"

	"github.com/stretchr/testify/assert"
)

func TestSplitLanguageTag(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantText string
		wantLang usecase.Language
	}{
		{"trailing tag", "fee cost structure [LANG:hindi]", "fee cost structure", usecase.LanguageHindi},
		{"case insensitive", "fees [lang:TAMIL]", "fees", usecase.LanguageTamil},
		{"tag in the middle", "fee [LANG:hinglish] payment", "fee payment", usecase.LanguageHinglish},
		{"unsupported language", "frais [LANG:french]", "frais", usecase.LanguageEnglish},
		{"no tag", "  admission process ", "admission process", usecase.LanguageEnglish},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, lang := usecase.SplitLanguageTag(tt.input)
			assert.Equal(t, tt.wantText, text)
			assert.Equal(t, tt.wantLang, lang)
		})
	}
}

func TestCannotAnswerMessage(t *testing.T) {
	english := usecase.CannotAnswerMessage(usecase.LanguageEnglish)
	assert.Contains(t, english, "I'm sorry, I don't have the information")
	assert.Contains(t, english, "support@study.iitm.ac.in")

	for _, lang := range []usecase.Language{usecase.LanguageHindi, usecase.LanguageTamil, usecase.LanguageHinglish} {
		msg := usecase.CannotAnswerMessage(lang)
		assert.NotEqual(t, english, msg, lang)
		assert.Contains(t, msg, "7850999966", lang)
	}

	assert.Equal(t, english, usecase.CannotAnswerMessage("klingon"))
	assert.Equal(t, usecase.LanguageEnglish, usecase.ParseLanguage(""))
	assert.Equal(t, usecase.LanguageTamil, usecase.ParseLanguage(" Tamil "))
}
