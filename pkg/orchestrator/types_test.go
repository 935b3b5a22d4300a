package orchestrator

import "testing"

func TestMessage(t *testing.T) {
	msg := Message{Role: "user", Content: "Hello"}
	if msg.Role != "user" {
		t.Errorf("Expected role 'user', got '%s'", msg.Role)
	}
}

func TestVoiceAndLanguageAreDistinctStrings(t *testing.T) {
	if VoiceF1 == Voice(LanguageEn) {
		t.Fatal("Voice and Language constants should not collide")
	}
}
