package chatclient

import (
	"testing"
	"time"
)

func TestTypingAutoExpiry(t *testing.T) {
	tr := NewTracker(&fakePublisher{}, 40*time.Millisecond)
	defer tr.Stop()

	tr.SetTyping("u1", true)
	if !tr.Typing("u1") {
		t.Fatal("typing flag not set")
	}

	time.Sleep(120 * time.Millisecond)
	if tr.Typing("u1") {
		t.Fatal("typing flag did not expire without a stop signal")
	}
}

func TestTypingRefreshResetsExpiry(t *testing.T) {
	tr := NewTracker(&fakePublisher{}, 150*time.Millisecond)
	defer tr.Stop()

	tr.SetTyping("u1", true)
	time.Sleep(90 * time.Millisecond)
	tr.SetTyping("u1", true) // refresh before the first window ends
	time.Sleep(90 * time.Millisecond)

	if !tr.Typing("u1") {
		t.Fatal("refreshed typing flag expired on the stale timer")
	}

	time.Sleep(200 * time.Millisecond)
	if tr.Typing("u1") {
		t.Fatal("typing flag never expired after the refresh window")
	}
}

func TestExplicitStopTyping(t *testing.T) {
	tr := NewTracker(&fakePublisher{}, time.Minute)
	defer tr.Stop()

	tr.SetTyping("u1", true)
	tr.SetTyping("u1", false)
	if tr.Typing("u1") {
		t.Fatal("explicit stop signal ignored")
	}
}

func TestPresenceSnapshotReplacesWholesale(t *testing.T) {
	tr := NewTracker(&fakePublisher{}, time.Minute)
	defer tr.Stop()

	tr.ReplacePresence(map[string]bool{"9841000001": true, "9841000002": true})
	tr.ReplacePresence(map[string]bool{"9841000003": true})

	if tr.Online("9841000001") || tr.Online("9841000002") {
		t.Fatal("stale presence survived a snapshot replace")
	}
	if !tr.Online("9841000003") {
		t.Fatal("snapshot entry missing")
	}
}

func TestPresencePointMerge(t *testing.T) {
	tr := NewTracker(&fakePublisher{}, time.Minute)
	defer tr.Stop()

	tr.ReplacePresence(map[string]bool{"9841000001": true})
	tr.SetOnline("9841000002", true)

	if !tr.Online("9841000001") || !tr.Online("9841000002") {
		t.Fatal("point update should merge, not replace")
	}

	tr.SetOnline("9841000001", false)
	if tr.Online("9841000001") {
		t.Fatal("offline point update ignored")
	}
}

func TestNotifyTypingPublishes(t *testing.T) {
	pub := &fakePublisher{}
	tr := NewTracker(pub, time.Minute)
	defer tr.Stop()

	tr.NotifyTyping("c1", true)

	frames := pub.byDest(DestTyping)
	if len(frames) != 1 {
		t.Fatalf("expected 1 typing publish, got %d", len(frames))
	}
	if frames[0].payload["conversation_id"] != "c1" || frames[0].payload["is_typing"] != true {
		t.Fatalf("typing payload wrong: %v", frames[0].payload)
	}
}
