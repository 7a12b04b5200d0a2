package repository

import (
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/sim31/fractalgram/internal/models"
)

// The filters above address the embedded ids by path, so the stored layout
// and the query paths have to agree. Marshal the docs and look the paths up.

func TestMessageDocLayoutMatchesQueryPath(t *testing.T) {
	raw, err := bson.Marshal(messageDoc{
		ChatID:  "chat-1",
		Message: &models.Message{ID: 5, ChatID: "chat-1", SenderID: "u1", Text: "hi"},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	val, err := bson.Raw(raw).LookupErr(strings.Split(messageIDField, ".")...)
	if err != nil {
		t.Fatalf("lookup %q: %v", messageIDField, err)
	}
	if got, ok := val.DoubleOK(); !ok || got != 5 {
		t.Fatalf("lookup %q = %v, want double 5", messageIDField, val)
	}
}

func TestMemberDocLayoutMatchesQueryPath(t *testing.T) {
	raw, err := bson.Marshal(memberDoc{
		ChatID: "chat-1",
		User:   models.ExtUser{ID: "u1", FirstName: "Alice"},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	val, err := bson.Raw(raw).LookupErr(strings.Split(memberIDField, ".")...)
	if err != nil {
		t.Fatalf("lookup %q: %v", memberIDField, err)
	}
	if got, ok := val.StringValueOK(); !ok || got != "u1" {
		t.Fatalf("lookup %q = %v, want %q", memberIDField, val, "u1")
	}
}
