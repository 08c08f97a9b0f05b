package main

import (
	"strings"
	"testing"
)

func TestRenderTableTruncatesWideColumns(t *testing.T) {
	out := renderTable(
		[]tableColumn{
			{title: "ID", right: true},
			{title: "Detail", maxWidth: 10},
		},
		[][]string{
			{"1", "a very long detail message"},
			{"2"},
		},
	)
	if !strings.Contains(out, "ID") || !strings.Contains(out, "Detail") {
		t.Fatalf("headers missing: %q", out)
	}
	if strings.Contains(out, "a very long detail message") {
		t.Fatalf("detail not truncated: %q", out)
	}
	if !strings.Contains(out, "a very lon") {
		t.Fatalf("truncated detail missing: %q", out)
	}
}
