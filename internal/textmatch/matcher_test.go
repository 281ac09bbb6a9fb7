package textmatch

import "testing"

func TestLiteralFirst(t *testing.T) {
	m := Literal{}
	tests := []struct {
		name    string
		text    string
		phrases []string
		want    string
		ok      bool
	}{
		{"case insensitive", "Picture THIS for a moment", []string{"picture this"}, "picture this", true},
		{"phrase order wins", "call a friend or your therapist", []string{"therapist", "friend"}, "therapist", true},
		{"smart apostrophe", "I’m all you need", []string{"i'm all you need"}, "i'm all you need", true},
		{"whitespace collapsed", "reach    out\nto someone", []string{"reach out to"}, "reach out to", true},
		{"no match", "a calm reply", []string{"visualize"}, "", false},
		{"empty phrase ignored", "anything", []string{""}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.First(tt.text, tt.phrases)
			if got != tt.want || ok != tt.ok {
				t.Errorf("First() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestLiteralAll(t *testing.T) {
	got := Literal{}.All("I'm so stressed and overwhelmed, can't cope", []string{"overwhelmed", "panic", "stressed", "can't cope"})
	want := []string{"overwhelmed", "stressed", "can't cope"}
	if len(got) != len(want) {
		t.Fatalf("All() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("All()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
