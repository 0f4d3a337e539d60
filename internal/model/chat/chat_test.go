package chat

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestTitleFromTextKeepsShortText(t *testing.T) {
	require.Equal(t, "Hello", TitleFromText("Hello"))
	require.Equal(t, "Hola mundo", TitleFromText("  Hola \n\t mundo "))
}

func TestTitleFromTextTruncatesLongText(t *testing.T) {
	title := TitleFromText(strings.Repeat("á", 200))
	require.Equal(t, MaxTitleRunes, utf8.RuneCountInString(title))
	require.True(t, strings.HasSuffix(title, "…"))
}

func TestRoleValid(t *testing.T) {
	require.True(t, RoleUser.Valid())
	require.True(t, RoleBot.Valid())
	require.False(t, Role("assistant").Valid())
}
