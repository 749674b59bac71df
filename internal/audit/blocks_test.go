package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockDetector(t *testing.T) {
	d, err := NewBlockDetector(DefaultBlockSelectors(), DefaultBlockPatterns())
	require.NoError(t, err)

	tests := []struct {
		name    string
		markup  string
		want    string
		blocked bool
	}{
		{"clean page", `<html><body><h1>Drill</h1><span class="price">$99</span></body></html>`, "", false},
		{"access denied", `<html><body><h1>Access   Denied</h1></body></html>`, "access denied", true},
		{"captcha form", `<html><body><form action="https://v.com/captcha"></form></body></html>`, "form[action*='captcha']", true},
		{"unable to complete", `<body><p>Sorry, we're unable to complete your request at this time.</p></body>`, "sorry, we're unable to complete your request", true},
		{"error reference", `<body><p>Error Ref: 0.1234</p></body>`, "error ref:", true},
		{"blocked word", `<body><div>You have been blocked</div></body>`, "blocked", true},
		{"script text ignored", `<html><head><script>var msg = "access denied";</script></head><body>ok</body></html>`, "", false},
		{"attribute text ignored", `<body><div data-state="blocked">ok</div></body>`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, blocked := d.Detect(tt.markup)
			assert.Equal(t, tt.blocked, blocked)
			assert.Equal(t, tt.want, sig)
		})
	}
}

func TestBlockDetector_CustomPatterns(t *testing.T) {
	d, err := NewBlockDetector(nil, []string{"  Pardon Our Interruption ", ""})
	require.NoError(t, err)

	_, blocked := d.Detect(`<body><h2>Pardon our interruption</h2></body>`)
	assert.True(t, blocked)
	_, blocked = d.Detect(`<body>Access denied</body>`)
	assert.False(t, blocked)
}

func TestBlockDetector_SelectorGroup(t *testing.T) {
	d, err := NewBlockDetector([]string{"#px-captcha, iframe[src*='challenge']"}, nil)
	require.NoError(t, err)

	sig, blocked := d.Detect(`<body><iframe src="https://v.com/challenge?id=1"></iframe></body>`)
	assert.True(t, blocked)
	assert.Equal(t, "#px-captcha, iframe[src*='challenge']", sig)

	_, blocked = d.Detect(`<body><iframe src="https://v.com/video"></iframe></body>`)
	assert.False(t, blocked)
}

func TestNewBlockDetector_BadSelector(t *testing.T) {
	_, err := NewBlockDetector([]string{"div[["}, nil)
	assert.Error(t, err)
}

func TestHideScript(t *testing.T) {
	js := hideScript([]string{`[data-testid="closeIcon"]`, "#it's"})
	assert.Contains(t, js, `'[data-testid="closeIcon"]'`)
	assert.Contains(t, js, `'#it\'s'`)
	assert.Contains(t, js, "el.style.display = 'none'")
}

func TestConfigWithDefaults(t *testing.T) {
	c := Config{MinDelay: 5, MaxDelay: 1}.withDefaults()
	assert.Equal(t, 2, c.MaxRetries)
	assert.Equal(t, "https://www.bing.com/search?q=", c.SearchURL)
	assert.Equal(t, c.MinDelay, c.MaxDelay)
}
