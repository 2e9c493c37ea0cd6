package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOriginAllowedProduction(t *testing.T) {
	c := CORSConfig{FrontendOrigin: "https://app.example.com"}
	require.True(t, c.originAllowed("https://app.example.com"))
	require.False(t, c.originAllowed("https://evil.example.com"))
	require.False(t, c.originAllowed("http://localhost:3000"))
}

func TestOriginAllowedDevelopment(t *testing.T) {
	c := CORSConfig{FrontendOrigin: "https://app.example.com", Development: true}
	require.True(t, c.originAllowed("http://localhost:3000"))
	require.True(t, c.originAllowed("https://abc123.ngrok.io"))
	require.False(t, c.originAllowed("https://evil.example.com"))
}
