package index

import (
	"strings"
	"testing"
)

func TestSplit_EmptyInput(t *testing.T) {
	t.Parallel()

	c := Chunker{}
	for _, in := range []string{"", "   ", "\n\n\n"} {
		if got := c.Split(in); len(got) != 0 {
			t.Errorf("Split(%q) = %v; want no chunks", in, got)
		}
	}
}

func TestSplit_ShortDocumentIsOneChunk(t *testing.T) {
	t.Parallel()

	text := "Die Lahn entspringt im Rothaargebirge.\n\nSie mündet bei Lahnstein in den Rhein."
	chunks := Chunker{}.Split(text)
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d; want 1", len(chunks))
	}
	if !strings.Contains(chunks[0], "Rothaargebirge") || !strings.Contains(chunks[0], "Lahnstein") {
		t.Errorf("chunk dropped content: %q", chunks[0])
	}
}

func TestSplit_ParagraphsGroupUpToSize(t *testing.T) {
	t.Parallel()

	para := strings.Repeat("w ", 30) // ~60 runes
	text := strings.Join([]string{para, para, para, para}, "\n\n")

	chunks := Chunker{Size: 150, Overlap: -1}.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d; want a split at the size boundary", len(chunks))
	}
	for i, ch := range chunks {
		if len([]rune(ch)) > 150 {
			t.Errorf("chunk %d has %d runes; limit 150", i, len([]rune(ch)))
		}
	}
}

func TestSplit_OversizedParagraphHardSplit(t *testing.T) {
	t.Parallel()

	// One paragraph well past the chunk size, with interior newlines the
	// splitter should prefer as cut points.
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("eine lange Zeile über den Fluss\n")
	}
	chunks := Chunker{Size: 200, Overlap: -1}.Split(b.String())
	if len(chunks) < 3 {
		t.Fatalf("chunks = %d; want several", len(chunks))
	}
	for i, ch := range chunks {
		if len([]rune(ch)) > 200 {
			t.Errorf("chunk %d has %d runes; limit 200", i, len([]rune(ch)))
		}
	}
}

func TestSplit_NoContentLost(t *testing.T) {
	t.Parallel()

	paras := []string{
		"Absatz eins über die Quelle.",
		"Absatz zwei über das Mittelgebirge.",
		"Absatz drei über die Mündung.",
	}
	chunks := Chunker{Size: 60, Overlap: -1}.Split(strings.Join(paras, "\n\n"))

	joined := strings.Join(chunks, "\n")
	for _, p := range paras {
		if !strings.Contains(joined, p) {
			t.Errorf("paragraph %q missing from chunks", p)
		}
	}
}

func TestSplit_OverlapCarriesTrailingText(t *testing.T) {
	t.Parallel()

	para1 := strings.Repeat("a", 80) + " ENDE-EINS"
	para2 := strings.Repeat("b", 80)
	chunks := Chunker{Size: 100, Overlap: 20}.Split(para1 + "\n\n" + para2)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d; want 2", len(chunks))
	}
	if !strings.Contains(chunks[1], "ENDE-EINS") {
		t.Errorf("second chunk missing overlap from first: %q", chunks[1])
	}
}

func TestSplit_UnicodeBoundaries(t *testing.T) {
	t.Parallel()

	// Rune-based splitting must never cut a multi-byte character in half.
	text := strings.Repeat("Flußaue Überlauf Mündung ", 40)
	chunks := Chunker{Size: 100, Overlap: -1}.Split(text)
	for i, ch := range chunks {
		if strings.ContainsRune(ch, '�') {
			t.Errorf("chunk %d contains a replacement character: %q", i, ch)
		}
	}
}

func TestSplit_CRLFNormalized(t *testing.T) {
	t.Parallel()

	chunks := Chunker{}.Split("erster Absatz\r\n\r\nzweiter Absatz")
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d; want 1", len(chunks))
	}
	if strings.Contains(chunks[0], "\r") {
		t.Errorf("carriage returns not stripped: %q", chunks[0])
	}
}
