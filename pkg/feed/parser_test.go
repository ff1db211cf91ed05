package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Tech Digest</title>
  <link>https://digest.example.com</link>
  <description>Daily technology news</description>
  <language>en-US</language>
  <item>
    <title>Go 1.24 &amp; Generics</title>
    <link>https://digest.example.com/go-124</link>
    <description>&lt;p&gt;The new   release ships &lt;b&gt;faster&lt;/b&gt; builds.&lt;/p&gt;</description>
    <pubDate>Mon, 03 Feb 2025 10:30:00 GMT</pubDate>
  </item>
  <item>
    <title></title>
    <link>https://digest.example.com/untitled</link>
    <description>item without a title, must be skipped</description>
  </item>
  <item>
    <title>Quantum update</title>
    <link>https://digest.example.com/quantum</link>
  </item>
</channel>
</rss>`

func TestParserParse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "feedrank-test/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(testRSS)) //nolint:errcheck // test server
	}))
	defer server.Close()

	parser := NewParser(5*time.Second, "feedrank-test/1.0")
	feed, err := parser.Parse(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, "Tech Digest", feed.Title)
	assert.Equal(t, "Daily technology news", feed.Description)
	assert.Equal(t, "en", feed.Language, "feed language normalized from en-US")

	require.Len(t, feed.Items, 2, "item without title is skipped")

	first := feed.Items[0]
	assert.Equal(t, "Go 1.24 & Generics", first.Title, "entities unescaped")
	assert.Equal(t, "https://digest.example.com/go-124", first.Link)
	assert.Equal(t, "The new release ships faster builds.", first.Summary, "markup stripped, whitespace collapsed")
	assert.Equal(t, "en", first.Language)
	expected := time.Date(2025, 2, 3, 10, 30, 0, 0, time.UTC)
	assert.True(t, first.Published.Equal(expected), "pubDate parsed, got %v", first.Published)

	second := feed.Items[1]
	assert.Equal(t, "Quantum update", second.Title)
	assert.Empty(t, second.Summary)
	assert.True(t, second.Published.IsZero(), "no date on the item stays zero")
}

func TestParserParseErrors(t *testing.T) {
	parser := NewParser(5*time.Second, "feedrank-test/1.0")

	t.Run("server error status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		_, err := parser.Parse(context.Background(), server.URL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected status code: 500")
	})

	t.Run("not a feed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html><body>not a feed</body></html>")) //nolint:errcheck // test server
		}))
		defer server.Close()

		_, err := parser.Parse(context.Background(), server.URL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse feed")
	})

	t.Run("unreachable host", func(t *testing.T) {
		_, err := parser.Parse(context.Background(), "http://127.0.0.1:1/feed.xml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fetch feed")
	})

	t.Run("cancelled context", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(time.Second)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := parser.Parse(ctx, server.URL)
		require.Error(t, err)
	})
}

func TestParserLanguageFallback(t *testing.T) {
	// feed declares no language, items fall back to detection
	rss := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Unlabeled</title>
  <link>https://unlabeled.example.com</link>
  <item>
    <title>The quick brown fox jumps over the lazy dog near the river bank</title>
    <link>https://unlabeled.example.com/fox</link>
    <description>A long and thoroughly English sentence about the weather, the government and other ordinary things people write about every single day.</description>
  </item>
</channel>
</rss>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rss)) //nolint:errcheck // test server
	}))
	defer server.Close()

	parser := NewParser(5*time.Second, "feedrank-test/1.0")
	feed, err := parser.Parse(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Empty(t, feed.Language)
	require.Len(t, feed.Items, 1)
	assert.Equal(t, "en", feed.Items[0].Language)
}

func TestNormalizeLang(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain code", "en", "en"},
		{"region suffix", "en-US", "en"},
		{"underscore suffix", "pt_BR", "pt"},
		{"uppercase", "DE", "de"},
		{"padded", "  fr  ", "fr"},
		{"empty", "", ""},
		{"too long", "english", ""},
		{"single char", "e", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeLang(tt.in))
		})
	}
}

func TestDetectLanguage(t *testing.T) {
	t.Run("english text", func(t *testing.T) {
		text := "The parliament voted on the new budget proposal after weeks of heated debate between the parties"
		assert.Equal(t, "en", detectLanguage(text))
	})

	t.Run("empty text", func(t *testing.T) {
		assert.Empty(t, detectLanguage(""))
		assert.Empty(t, detectLanguage("   "))
	})

	t.Run("short ambiguous text", func(t *testing.T) {
		// too little signal for the detector to be reliable
		got := detectLanguage("ok")
		if got != "" {
			assert.Len(t, got, 2)
		}
	})
}
