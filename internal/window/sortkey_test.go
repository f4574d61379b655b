package window

import (
	"testing"
	"time"

	"github.com/emberchat/ember/internal/models"
)

func msg(id, globalID int64, date time.Time) models.Message {
	return models.Message{
		Peer:      models.UserPeer(1),
		MessageID: id,
		GlobalID:  globalID,
		FromID:    7,
		Date:      date,
		Text:      "m",
	}
}

func ids(msgs []models.Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for i := range msgs {
		out = append(out, msgs[i].MessageID)
	}
	return out
}

func assertIDs(t *testing.T, msgs []models.Message, want []int64) {
	t.Helper()
	got := ids(msgs)
	if len(got) != len(want) {
		t.Fatalf("expected ids %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected ids %v, got %v", want, got)
		}
	}
}

// assertOrdered checks the total-order invariant over presentation order.
func assertOrdered(t *testing.T, msgs []models.Message, reversed bool) {
	t.Helper()
	for i := 1; i < len(msgs); i++ {
		c := CompareMessages(&msgs[i-1], &msgs[i])
		if !reversed && c > 0 {
			t.Fatalf("order violated at %d: %v before %v", i, msgs[i-1].MessageID, msgs[i].MessageID)
		}
		if reversed && c < 0 {
			t.Fatalf("reversed order violated at %d: %v before %v", i, msgs[i-1].MessageID, msgs[i].MessageID)
		}
	}
}

// assertNoDuplicateIDs checks the no-duplicate-ids invariant.
func assertNoDuplicateIDs(t *testing.T, msgs []models.Message) {
	t.Helper()
	seen := make(map[int64]struct{}, len(msgs))
	for i := range msgs {
		if _, dup := seen[msgs[i].MessageID]; dup {
			t.Fatalf("duplicate message id %d", msgs[i].MessageID)
		}
		seen[msgs[i].MessageID] = struct{}{}
	}
}

func TestCompareMessagesKeyPrecedence(t *testing.T) {
	base := time.Unix(1700000000, 0).UTC()

	a := msg(1, 100, base)
	b := msg(2, 200, base.Add(time.Second))
	if CompareMessages(&a, &b) != -1 || CompareMessages(&b, &a) != 1 {
		t.Fatal("timestamp should dominate")
	}

	// Same timestamp: global id breaks the tie even against message id.
	c := msg(9, 100, base)
	d := msg(1, 200, base)
	if CompareMessages(&c, &d) != -1 {
		t.Fatal("global id should break timestamp ties")
	}

	// Same timestamp, both uncommitted: message id decides.
	e := msg(3, 0, base)
	f := msg(5, 0, base)
	if CompareMessages(&e, &f) != -1 {
		t.Fatal("message id should break global id ties")
	}

	g := msg(3, 0, base)
	if CompareMessages(&e, &g) != 0 {
		t.Fatal("identical keys should compare equal")
	}
}

func TestStableSortOrders(t *testing.T) {
	base := time.Unix(1700000000, 0).UTC()
	batch := []models.Message{
		msg(3, 103, base.Add(2 * time.Minute)),
		msg(1, 101, base),
		msg(2, 102, base.Add(time.Minute)),
	}

	StableSort(batch, false)
	assertIDs(t, batch, []int64{1, 2, 3})
	assertOrdered(t, batch, false)

	StableSort(batch, true)
	assertIDs(t, batch, []int64{3, 2, 1})
	assertOrdered(t, batch, true)
}

func TestStableSortPreservesOffsetForEqualKeys(t *testing.T) {
	base := time.Unix(1700000000, 0).UTC()

	// Two optimistic sends with identical keys apart from message id zeroed:
	// craft fully equal keys via identical ids is impossible, so use equal
	// (date, global) and equal message ids across distinct texts.
	a := msg(5, 0, base)
	a.Text = "first"
	b := msg(5, 0, base)
	b.Text = "second"
	batch := []models.Message{a, b}

	StableSort(batch, false)
	if batch[0].Text != "first" || batch[1].Text != "second" {
		t.Fatalf("equal keys must keep insertion order, got %q then %q", batch[0].Text, batch[1].Text)
	}

	StableSort(batch, true)
	if batch[0].Text != "first" || batch[1].Text != "second" {
		t.Fatalf("reversed sort of equal keys must keep insertion order, got %q then %q", batch[0].Text, batch[1].Text)
	}
}
