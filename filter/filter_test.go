package filter

import (
	"testing"
	"time"
)

func testOptions() Options {
	return Options{
		MaxLength:      10,
		RateLimit:      2,
		AllowEmpty:     false,
		AllowPureImage: false,
		Words:          []string{"坏词", "bad"},
		MaskChar:       "*",
	}
}

func TestEvaluateRejects(t *testing.T) {
	e := NewEngine(testOptions())

	cases := []struct {
		name   string
		text   string
		reason RejectReason
	}{
		{"too long", "0123456789A", ReasonTooLong},
		{"empty", "   ", ReasonEmpty},
		{"placeholder image", "[图片]", ReasonPureImage},
		{"cq image", "[CQ:image,file=abc.png]", ReasonPureImage},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := e.Evaluate(tc.text, 1)
			if res.OK {
				t.Fatalf("Evaluate(%q) passed, want reject", tc.text)
			}
			if res.Reason != tc.reason {
				t.Fatalf("Evaluate(%q) reason = %v, want %v", tc.text, res.Reason, tc.reason)
			}
		})
	}
}

func TestEvaluateAllowFlags(t *testing.T) {
	opts := testOptions()
	opts.AllowEmpty = true
	opts.AllowPureImage = true
	e := NewEngine(opts)

	if res := e.Evaluate("  ", 1); !res.OK {
		t.Fatalf("empty message rejected with allow-empty on: %v", res.Reason)
	}
	if res := e.Evaluate("[图片]", 1); !res.OK {
		t.Fatalf("image rejected with allow-pure-image on: %v", res.Reason)
	}
}

func TestMaskWords(t *testing.T) {
	e := NewEngine(testOptions())

	res := e.Evaluate("有坏词bad", 1)
	if !res.OK {
		t.Fatalf("unexpected reject: %v", res.Reason)
	}
	if res.Text != "有*****" {
		t.Fatalf("masked text = %q, want %q", res.Text, "有*****")
	}
}

func TestMaskLengthCountsRunes(t *testing.T) {
	e := NewEngine(Options{MaxLength: 100, RateLimit: 10, Words: []string{"敏感"}, MaskChar: "#"})

	res := e.Evaluate("前敏感后", 1)
	if res.Text != "前##后" {
		t.Fatalf("masked text = %q, want %q", res.Text, "前##后")
	}
}

func TestFixedWindowRateLimit(t *testing.T) {
	e := NewEngine(testOptions())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	e.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if res := e.Evaluate("ok", 7); !res.OK {
			t.Fatalf("message %d rejected within limit", i)
		}
	}

	now = base.Add(30 * time.Second)
	res := e.Evaluate("ok", 7)
	if res.OK {
		t.Fatal("third message in window passed, want rate-limited")
	}
	if res.Reason != ReasonRateLimited {
		t.Fatalf("reason = %v, want ReasonRateLimited", res.Reason)
	}
	if res.RetrySeconds != 30 {
		t.Fatalf("retry = %d, want 30", res.RetrySeconds)
	}

	// 其他发送者不受影响
	if res := e.Evaluate("ok", 8); !res.OK {
		t.Fatal("different sender rejected")
	}

	// 窗口到期后首次使用重置
	now = base.Add(60 * time.Second)
	if res := e.Evaluate("ok", 7); !res.OK {
		t.Fatal("message after window expiry rejected")
	}
}

func TestReloadResetsWindows(t *testing.T) {
	opts := testOptions()
	opts.RateLimit = 1
	e := NewEngine(opts)

	if res := e.Evaluate("a", 1); !res.OK {
		t.Fatal("first message rejected")
	}
	if res := e.Evaluate("b", 1); res.OK {
		t.Fatal("second message passed, want rate-limited")
	}

	opts.Words = []string{"新词"}
	e.Reload(opts)

	res := e.Evaluate("带新词的", 1)
	if !res.OK {
		t.Fatalf("message after reload rejected: %v", res.Reason)
	}
	if res.Text != "带**的" {
		t.Fatalf("masked text = %q, want %q", res.Text, "带**的")
	}
}

func TestMaskIdempotent(t *testing.T) {
	e := NewEngine(Options{MaxLength: 100, RateLimit: 10, Words: []string{"坏词", "bad"}, MaskChar: "*"})

	first := e.Evaluate("前坏词中bad后", 1)
	if !first.OK {
		t.Fatalf("unexpected reject: %v", first.Reason)
	}

	second := e.Evaluate(first.Text, 1)
	if !second.OK {
		t.Fatalf("masked text rejected on second pass: %v", second.Reason)
	}
	if second.Text != first.Text {
		t.Fatalf("second pass changed the text: %q -> %q", first.Text, second.Text)
	}
}

func TestEmptyWordSkipped(t *testing.T) {
	e := NewEngine(Options{MaxLength: 100, RateLimit: 10, Words: []string{"", "x"}})
	res := e.Evaluate("axb", 1)
	if res.Text != "a*b" {
		t.Fatalf("masked text = %q, want %q", res.Text, "a*b")
	}
}
