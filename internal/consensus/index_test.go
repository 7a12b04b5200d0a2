package consensus

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/sim31/fractalgram/internal/models"
)

func TestMessagesAddedClassifies(t *testing.T) {
	prompt := textMsg(1, 100, "admin", RenderPrompt("acme"))
	reply := replyMsg(2, 110, "u1", "alice1", 1)
	ranking := pollMsg(3, 120, "Level 2 poll", []string{"Alice", "Bob"}, nil)
	delegate := pollMsg(4, 130, RenderDelegatePoll(), []string{"Alice", "Bob"}, nil)
	plain := textMsg(5, 140, "u2", "hello everyone")

	byID := byIDOf(prompt, reply, ranking, delegate, plain)
	ix := NewIndex().MessagesAdded(byID, []*models.Message{prompt, reply, ranking, delegate, plain})

	if got := ix.AccountPrompts[1]; got != "acme" {
		t.Errorf("AccountPrompts[1] = %q, want %q", got, "acme")
	}
	if _, ok := ix.AccountReplies["acme"][2]; !ok {
		t.Error("reply 2 not recorded under acme")
	}
	if _, ok := ix.RankingPolls[2][3]; !ok {
		t.Error("ranking poll 3 not recorded under rank 2")
	}
	if _, ok := ix.DelegatePolls[4]; !ok {
		t.Error("delegate poll 4 not recorded")
	}
	if ix.Contains(5) {
		t.Error("plain message 5 should not be indexed")
	}
}

func TestRetroactiveReplyPickup(t *testing.T) {
	// The reply exists before the prompt is learned.
	reply := replyMsg(2, 110, "u1", "alice1", 7)
	byID := byIDOf(reply)
	ix := NewIndex().MessagesAdded(byID, []*models.Message{reply})
	if ix.Contains(2) {
		t.Fatal("reply indexed before its prompt is known")
	}

	prompt := textMsg(7, 100, "admin", RenderPrompt("acme"))
	byID[prompt.ID] = prompt
	ix = ix.MessagesAdded(byID, []*models.Message{prompt})

	if _, ok := ix.AccountReplies["acme"][2]; !ok {
		t.Error("pre-existing reply 2 not picked up after prompt arrived")
	}
}

func TestMessagesAddedIdempotent(t *testing.T) {
	prompt := textMsg(1, 100, "admin", RenderPrompt("acme"))
	reply := replyMsg(2, 110, "u1", "alice1", 1)
	byID := byIDOf(prompt, reply)

	ix := NewIndex().MessagesAdded(byID, []*models.Message{prompt, reply})
	again := ix.MessagesAdded(byID, []*models.Message{prompt, reply})

	if !reflect.DeepEqual(ix, again) {
		t.Errorf("replaying a batch changed the index:\n%+v\nvs\n%+v", ix, again)
	}
}

func TestBucketsMutuallyExclusive(t *testing.T) {
	// A reply whose text happens to be a prompt classifies as a prompt, not
	// as a reply.
	prompt := textMsg(1, 100, "admin", RenderPrompt("acme"))
	promptReply := replyMsg(2, 110, "u1", RenderPrompt("other"), 1)
	pollReply := pollMsg(3, 120, "Level 1 poll", []string{"Alice"}, nil)
	pollReply.ReplyToID = 1
	pollReply.SenderID = "u2"

	byID := byIDOf(prompt, promptReply, pollReply)
	ix := NewIndex().MessagesAdded(byID, []*models.Message{prompt, promptReply, pollReply})

	for _, id := range []models.MessageID{1, 2, 3} {
		if n := bucketsHolding(ix, id); n > 1 {
			t.Errorf("message %v held by %d buckets", id, n)
		}
	}
	if got := ix.AccountPrompts[2]; got != "other" {
		t.Errorf("message 2 should be indexed as a prompt for %q, got %q", "other", got)
	}
	if _, ok := ix.RankingPolls[1][3]; !ok {
		t.Error("poll 3 should be indexed as a ranking poll despite replying to a prompt")
	}
}

func TestMessagesDeleted(t *testing.T) {
	prompt := textMsg(1, 100, "admin", RenderPrompt("acme"))
	reply := replyMsg(2, 110, "u1", "alice1", 1)
	ranking := pollMsg(3, 120, "Level 3 poll", []string{"Alice"}, nil)
	byID := byIDOf(prompt, reply, ranking)
	ix := NewIndex().MessagesAdded(byID, []*models.Message{prompt, reply, ranking})

	t.Run("ranking poll", func(t *testing.T) {
		after := ix.MessagesDeleted(byID, []models.MessageID{3})
		if after.Contains(3) {
			t.Error("deleted poll 3 still indexed")
		}
		if !after.Contains(1) || !after.Contains(2) {
			t.Error("unrelated messages dropped on delete")
		}
	})

	t.Run("prompt cascades to replies", func(t *testing.T) {
		after := ix.MessagesDeleted(byID, []models.MessageID{1})
		if after.Contains(1) {
			t.Error("deleted prompt 1 still indexed")
		}
		if after.Contains(2) {
			t.Error("reply 2 kept after its prompt was deleted")
		}
		delete(byID, models.MessageID(1))
		defer func() { byID[prompt.ID] = prompt }()
		if want := Rebuild(byID); !reflect.DeepEqual(after, want) {
			t.Errorf("post-delete index diverges from rebuild:\n%+v\nvs\n%+v", after, want)
		}
	})
}

func TestMessageUpdatedRetractsRankingPoll(t *testing.T) {
	poll := pollMsg(3, 120, "Level 3 poll", []string{"Alice"}, nil)
	byID := byIDOf(poll)
	ix := NewIndex().MessagesAdded(byID, []*models.Message{poll})

	edited := pollMsg(3, 120, "What should we have for lunch?", []string{"Pizza"}, nil)
	byID[edited.ID] = edited
	after := ix.MessageUpdated(byID, poll, edited)

	if after.Contains(3) {
		t.Error("edited poll 3 still indexed under its old rank")
	}
	if len(after.RankingPolls) != 0 {
		t.Errorf("RankingPolls not empty after retraction: %+v", after.RankingPolls)
	}
}

func TestMessageUpdatedPromptRetraction(t *testing.T) {
	prompt := textMsg(1, 100, "admin", RenderPrompt("acme"))
	reply := replyMsg(2, 110, "u1", "alice1", 1)
	byID := byIDOf(prompt, reply)
	ix := NewIndex().MessagesAdded(byID, []*models.Message{prompt, reply})

	edited := textMsg(1, 100, "admin", "never mind")
	byID[edited.ID] = edited
	after := ix.MessageUpdated(byID, prompt, edited)

	if after.Contains(1) {
		t.Error("edited prompt 1 still indexed")
	}
	if after.Contains(2) {
		t.Error("reply 2 kept after its prompt stopped being one")
	}
}

func TestMessageUpdatedReclassifies(t *testing.T) {
	plain := textMsg(4, 100, "admin", "hello")
	reply := replyMsg(5, 110, "u1", "alice1", 4)
	byID := byIDOf(plain, reply)
	ix := NewIndex().MessagesAdded(byID, []*models.Message{plain, reply})

	// Editing a plain message into a prompt picks up existing replies.
	edited := textMsg(4, 100, "admin", RenderPrompt("acme"))
	byID[edited.ID] = edited
	after := ix.MessageUpdated(byID, plain, edited)

	if got := after.AccountPrompts[4]; got != "acme" {
		t.Fatalf("AccountPrompts[4] = %q, want %q", got, "acme")
	}
	if _, ok := after.AccountReplies["acme"][5]; !ok {
		t.Error("existing reply 5 not picked up when message 4 became a prompt")
	}
}

func TestMessageUpdatedNoTrackedFieldChange(t *testing.T) {
	poll := pollMsg(3, 120, "Level 3 poll", []string{"Alice"}, []int{0})
	byID := byIDOf(poll)
	ix := NewIndex().MessagesAdded(byID, []*models.Message{poll})

	// Vote counts changed, question did not.
	voted := pollMsg(3, 120, "Level 3 poll", []string{"Alice"}, []int{2})
	byID[voted.ID] = voted
	after := ix.MessageUpdated(byID, poll, voted)

	if !reflect.DeepEqual(ix, after) {
		t.Error("update without tracked field changes altered the index")
	}
}

func TestReplayMatchesRebuild(t *testing.T) {
	prompt := textMsg(1, 100, "admin", RenderPrompt("acme"))
	earlyReply := replyMsg(0.5, 90, "u2", "bob-on-acme", 1)
	reply := replyMsg(2, 110, "u1", "alice1", 1)
	rank1 := pollMsg(3, 120, "Level 1 poll", []string{"Alice", "Bob"}, nil)
	rank1b := pollMsg(4, 130, "Level 1 poll", []string{"Alice", "Bob"}, nil)
	delegate := pollMsg(5, 140, RenderDelegatePoll(), []string{"Alice", "Bob"}, nil)
	plain := textMsg(6, 150, "u3", "unrelated")

	byID := map[models.MessageID]*models.Message{}
	ix := NewIndex()

	add := func(msgs ...*models.Message) {
		for _, m := range msgs {
			byID[m.ID] = m
		}
		ix = ix.MessagesAdded(byID, msgs)
	}

	// Replies arrive before their prompt; polls trickle in; a poll gets
	// edited out of its bucket; a prompt gets deleted and re-added.
	add(earlyReply)
	add(prompt, reply)
	add(rank1, delegate)
	add(rank1b, plain)

	edited := pollMsg(4, 130, "changed my mind", []string{"Alice", "Bob"}, nil)
	byID[edited.ID] = edited
	ix = ix.MessageUpdated(byID, rank1b, edited)

	ix = ix.MessagesDeleted(byID, []models.MessageID{1})
	delete(byID, models.MessageID(1))

	add(prompt)

	if want := Rebuild(byID); !reflect.DeepEqual(ix, want) {
		t.Errorf("replayed index diverges from rebuild:\nreplayed: %+v\nrebuilt:  %+v", ix, want)
	}
}

func TestIndexJSONRoundTrip(t *testing.T) {
	prompt := textMsg(1, 100, "admin", RenderPrompt("acme"))
	reply := replyMsg(2.5, 110, "u1", "alice1", 1)
	ranking := pollMsg(3, 120, "Level 2 poll", []string{"Alice", "Bob"}, nil)
	delegate := pollMsg(4, 130, RenderDelegatePoll(), []string{"Alice"}, nil)
	byID := byIDOf(prompt, reply, ranking, delegate)
	ix := Rebuild(byID)

	b, err := json.Marshal(ix)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Index
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	if !reflect.DeepEqual(ix, got) {
		t.Errorf("round trip changed the index:\nbefore: %+v\nafter:  %+v", ix, got)
	}
	if got.AccountPrompts[1] != "acme" {
		t.Errorf("prompt lost: %+v", got.AccountPrompts)
	}
	if _, ok := got.AccountReplies["acme"][2.5]; !ok {
		t.Errorf("fractional reply id lost: %+v", got.AccountReplies)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	prompt := textMsg(1, 100, "admin", RenderPrompt("acme"))
	byID := byIDOf(prompt)
	snapshot := NewIndex().MessagesAdded(byID, []*models.Message{prompt})
	want := Rebuild(byID)

	reply := replyMsg(2, 110, "u1", "alice1", 1)
	byID[reply.ID] = reply
	_ = snapshot.MessagesAdded(byID, []*models.Message{reply})
	_ = snapshot.MessagesDeleted(byID, []models.MessageID{1})

	if !reflect.DeepEqual(snapshot, want) {
		t.Errorf("operations after snapshot capture mutated it:\n%+v\nvs\n%+v", snapshot, want)
	}
}
