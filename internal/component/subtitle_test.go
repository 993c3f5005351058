// SPDX-License-Identifier: GPL-3.0-or-later

package component

import "testing"

func TestStripSRTRemovesTags(t *testing.T) {
	got := stripSRT("<i>hello</i> <b>world</b>")
	if want := "hello world"; got != want {
		t.Fatalf("stripSRT() = %q, want %q", got, want)
	}
}

func TestStripASSExtractsDialogueTextField(t *testing.T) {
	line := `Dialogue: 0,0:00:01.00,0:00:02.00,Default,,0,0,0,,Greetings\Nworld`
	got := stripASS(line)
	if want := "Greetings\nworld"; got != want {
		t.Fatalf("stripASS() = %q, want %q", got, want)
	}
}

func TestStripASSStripsOverrideBlocks(t *testing.T) {
	line := `Dialogue: 0,0:00:01.00,0:00:02.00,Default,,0,0,0,,{\i1}emphasised{\i0} text`
	got := stripASS(line)
	if want := "emphasised text"; got != want {
		t.Fatalf("stripASS() = %q, want %q", got, want)
	}
}

func TestStripASSIgnoresNonDialogueLines(t *testing.T) {
	if got := stripASS("Comment: not a dialogue line"); got != "" {
		t.Fatalf("stripASS() on non-dialogue line = %q, want empty", got)
	}
}

func TestStripASSCaseInsensitivePrefix(t *testing.T) {
	line := `DIALOGUE: 0,0:00:01.00,0:00:02.00,Default,,0,0,0,,hi`
	if got := stripASS(line); got != "hi" {
		t.Fatalf("stripASS() = %q, want %q", got, "hi")
	}
}

func TestRemoveBracesNested(t *testing.T) {
	if got := removeBraces("a{b{c}d}e"); got != "ae" {
		t.Fatalf("removeBraces() = %q, want %q", got, "ae")
	}
}
