package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-gateway/backend/internal/platform/apperr"
)

func TestNormalize_Valid(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"+79001234567", "+79001234567"},
		{"  +7 900 123-45-67 ", "+79001234567"},
		{"+1 (415) 555-0100", "+14155550100"},
		{"+441234567890", "+441234567890"},
		{"+1234567890", "+1234567890"},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Normalize(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalize_Invalid(t *testing.T) {
	testCases := []struct {
		in  string
		msg string
	}{
		{"", MsgRequired},
		{"   ", MsgRequired},
		{"79001234567", MsgNoPlus},
		{"abc", MsgNoPlus},
		{"+", MsgDigits},
		{"+7900+1234567", MsgDigits},
		{"+123456789", MsgTooShort},
		{"+1 23", MsgTooShort},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			_, err := Normalize(tc.in)
			require.Error(t, err)
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, apperr.KindValidation, e.Kind)
			assert.Equal(t, "invalid_phone", e.Code)
			assert.Equal(t, tc.msg, e.Message)
		})
	}
}

func TestLooksLikePhone(t *testing.T) {
	testCases := []struct {
		in   string
		want bool
	}{
		{"+79001234567", true},
		{" +7 900 1 ", true},
		{" +7 900 ", false},
		{"+12345", true},
		{"+1234", false},
		{"@durov", false},
		{"durov", false},
		{"123456789", false},
		{"me", false},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, LooksLikePhone(tc.in))
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("+7 900 123 45 67", "+79001234567"))
	assert.False(t, Equal("+79001234567", "+79001234568"))
	assert.True(t, Equal("garbage", " garbage "))
}
