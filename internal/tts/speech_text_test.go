package tts

import "testing"

func TestSanitizeSpeechText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"emoji and emphasis", "Sure 😊 **let's** do this / now.", "Sure let's do this now."},
		{"link label kept", "Read [the docs](https://example.com/docs) first.", "Read the docs first."},
		{"code removed", "```bash\nnpm run dev\n```\nThen run `make test` ✅", "Then run"},
		{"cjk punctuation kept tight", "**好的**，我們「馬上」開始！", "好的，我們「馬上」開始！"},
		{"cjk lines joined", "第一行\n\n第二行", "第一行第二行"},
		{"list and heading markers", "## 重點\n- 早睡\n2. 早起", "重點早睡早起"},
		{"latin inside cjk", "我用 Go 寫的。", "我用Go寫的。"},
		{"bare url dropped", "see https://example.com now", "see now"},
		{"only symbols", "🎉 ✨", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSpeechText(tc.in); got != tc.want {
				t.Fatalf("SanitizeSpeechText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
