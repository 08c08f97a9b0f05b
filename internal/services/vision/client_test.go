package vision

import "testing"

func TestParseScore(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantScore  float64
		wantReason string
		wantErr    bool
	}{
		{
			name:       "plain json",
			raw:        `{"score": 0.82, "reason": "clear single subject"}`,
			wantScore:  0.82,
			wantReason: "clear single subject",
		},
		{
			name:      "fenced json",
			raw:       "```json\n{\"score\": 0.4, \"reason\": \"cluttered\"}\n```",
			wantScore: 0.4, wantReason: "cluttered",
		},
		{
			name:      "clamped high",
			raw:       `{"score": 1.7, "reason": "x"}`,
			wantScore: 1, wantReason: "x",
		},
		{
			name:      "clamped low",
			raw:       `{"score": -0.2}`,
			wantScore: 0,
		},
		{
			name:    "garbage",
			raw:     "not json",
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			score, reason, err := ParseScore(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseScore: %v", err)
			}
			if score != tc.wantScore || reason != tc.wantReason {
				t.Fatalf("score = %v reason = %q", score, reason)
			}
		})
	}
}

func TestParseCaption(t *testing.T) {
	caption, tags, err := ParseCaption(`{"caption": "Morning light over the harbor", "tags": ["#Art", " watercolor ", ""]}`)
	if err != nil {
		t.Fatalf("ParseCaption: %v", err)
	}
	if caption != "Morning light over the harbor" {
		t.Fatalf("caption = %q", caption)
	}
	if len(tags) != 2 || tags[0] != "art" || tags[1] != "watercolor" {
		t.Fatalf("tags = %v", tags)
	}

	if _, _, err := ParseCaption(`{"caption": ""}`); err == nil {
		t.Fatal("expected error for empty caption")
	}
}

func TestImageFormat(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{"image/jpeg", "jpeg"},
		{"image/jpg", "jpeg"},
		{"image/png", "png"},
		{"image/webp", "webp"},
		{"application/octet-stream", "jpeg"},
		{"", "jpeg"},
	}
	for _, tc := range tests {
		if got := imageFormat(tc.mime); got != tc.want {
			t.Fatalf("imageFormat(%q) = %q, want %q", tc.mime, got, tc.want)
		}
	}
}
