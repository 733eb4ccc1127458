package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type askInput struct {
	UserID   string `json:"user_id" validate:"required,userid"`
	Question string `json:"question" validate:"required,notblank"`
}

func TestStruct_Valid(t *testing.T) {
	assert.Nil(t, Global().Struct(&askInput{UserID: "42", Question: "What is Paris?"}, LangEN))
}

func TestStruct_UsesJSONFieldNames(t *testing.T) {
	verrs := Global().Struct(&askInput{Question: "q"}, LangEN)
	require.NotNil(t, verrs)
	require.Len(t, verrs.Errors, 1)
	assert.Equal(t, "user_id", verrs.Errors[0].Field)
	assert.Equal(t, "required", verrs.Errors[0].Tag)
	assert.Contains(t, verrs.First(), "user_id")
}

func TestStruct_CustomRules(t *testing.T) {
	tests := []struct {
		name  string
		input askInput
		field string
		tag   string
	}{
		{"blank question", askInput{UserID: "1", Question: "   "}, "question", TagNotBlank},
		{"user id with space", askInput{UserID: "a b", Question: "q"}, "user_id", TagUserID},
		{"user id too long", askInput{UserID: strings.Repeat("x", MaxUserIDLen+1), Question: "q"}, "user_id", TagUserID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verrs := New().Struct(&tt.input, LangEN)
			require.NotNil(t, verrs)
			assert.Equal(t, tt.field, verrs.Errors[0].Field)
			assert.Equal(t, tt.tag, verrs.Errors[0].Tag)
			assert.Contains(t, verrs.Error(), "validation failed: ")
		})
	}
}

func TestStruct_Russian(t *testing.T) {
	verrs := Global().Struct(&askInput{UserID: "1", Question: " "}, LangRU)
	require.NotNil(t, verrs)
	assert.Equal(t, "question не может быть пустым", verrs.First())

	// 未知语言回退到英文
	verrs = Global().Struct(&askInput{UserID: "1", Question: " "}, "de")
	require.NotNil(t, verrs)
	assert.Equal(t, "question must not be blank", verrs.First())
}

func TestValidationErrors_Nil(t *testing.T) {
	var v *ValidationErrors
	assert.Equal(t, "", v.Error())
	assert.Equal(t, "", v.First())
}
