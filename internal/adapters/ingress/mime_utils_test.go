package ingress

import (
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseMessage(t *testing.T, raw string) *mail.Message {
	t.Helper()
	msg, err := mail.ReadMessage(strings.NewReader(raw))
	require.NoError(t, err)
	return msg
}

func TestExtractTextFromPlainMessage(t *testing.T) {
	msg := parseMessage(t, "From: alice@example.com\r\n"+
		"Subject: Meeting\r\n"+
		"\r\n"+
		"Can we meet tomorrow?\r\n")

	text, err := extractTextFromMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, "Can we meet tomorrow?\r\n", text)
}

func TestExtractTextFromMultipartAlternative(t *testing.T) {
	raw := "From: alice@example.com\r\n" +
		"Content-Type: multipart/alternative; boundary=\"xyz\"\r\n" +
		"\r\n" +
		"--xyz\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Let's meet Thursday at 2pm.\r\n" +
		"--xyz\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>Let's meet Thursday at 2pm.</p>\r\n" +
		"--xyz--\r\n"

	text, err := extractTextFromMessage(parseMessage(t, raw))
	require.NoError(t, err)
	assert.Contains(t, text, "Let's meet Thursday at 2pm.")
	assert.NotContains(t, text, "<p>")
}

func TestExtractTextMultipartWithoutBoundaryFallsBack(t *testing.T) {
	raw := "From: alice@example.com\r\n" +
		"Content-Type: multipart/mixed\r\n" +
		"\r\n" +
		"raw body content\r\n"

	text, err := extractTextFromMessage(parseMessage(t, raw))
	require.NoError(t, err)
	assert.Contains(t, text, "raw body content")
}

func TestExtractTextNoPlainParts(t *testing.T) {
	raw := "From: alice@example.com\r\n" +
		"Content-Type: multipart/alternative; boundary=\"xyz\"\r\n" +
		"\r\n" +
		"--xyz\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>html only</p>\r\n" +
		"--xyz--\r\n"

	text, err := extractTextFromMessage(parseMessage(t, raw))
	require.NoError(t, err)
	assert.Equal(t, "[No text content found in multipart message]", text)
}

func TestDecodeEncodedHeader(t *testing.T) {
	decoded, err := decodeEncodedHeader("=?UTF-8?Q?R=C3=A9union_demain?=")
	require.NoError(t, err)
	assert.Equal(t, "Réunion demain", decoded)

	passthrough, err := decodeEncodedHeader("Plain subject")
	require.NoError(t, err)
	assert.Equal(t, "Plain subject", passthrough)
}
