package chat

import (
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kacharaalert/internal/model"
)

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func msgAt(id string, minute int, body string) model.Message {
	return model.Message{ID: id, SenderID: "me", RecipientID: "u2", Body: body, CreatedAt: base.Add(time.Duration(minute) * time.Minute)}
}

func TestUpsertKeepsOrderAndIsIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		var list []model.Message
		for i := 0; i < 20; i++ {
			id := string(rune('a' + rng.Intn(8)))
			m := msgAt(id, rng.Intn(30), "v")
			list = Upsert(list, m)

			assert.True(t, sort.SliceIsSorted(list, func(a, b int) bool {
				return list[a].CreatedAt.Before(list[b].CreatedAt)
			}))
			assert.Equal(t, list, Upsert(list, m))
		}
		ids := map[string]bool{}
		for _, m := range list {
			assert.False(t, ids[m.ID], "duplicate id %s", m.ID)
			ids[m.ID] = true
		}
	}
}

func TestUpsertReplacesInPlace(t *testing.T) {
	history := []model.Message{msgAt("m0", -5, "before"), msgAt("m1", 0, "original"), msgAt("m2", 5, "after")}
	next := Upsert(history, msgAt("m1", 0, "edited"))

	assert.Len(t, next, 3)
	assert.Equal(t, "m1", next[1].ID)
	assert.Equal(t, "edited", next[1].Body)
	assert.Equal(t, "original", history[1].Body, "input is not mutated")
}

func TestUpsertOrderIndependent(t *testing.T) {
	a, b, c := msgAt("a", 3, ""), msgAt("b", 1, ""), msgAt("c", 2, "")
	one := Merge(nil, []model.Message{a, b, c, b})
	two := Merge(nil, []model.Message{c, b, a})
	assert.Equal(t, one, two)
	assert.Equal(t, []string{"b", "c", "a"}, []string{one[0].ID, one[1].ID, one[2].ID})
}

func TestAccepts(t *testing.T) {
	tests := []struct {
		name string
		msg  model.Message
		want bool
	}{
		{"incoming", model.Message{SenderID: "u2", RecipientID: "me"}, true},
		{"outgoing", model.Message{SenderID: "me", RecipientID: "u2"}, true},
		{"other contact", model.Message{SenderID: "u3", RecipientID: "me"}, false},
		{"not involving me", model.Message{SenderID: "u2", RecipientID: "u3"}, false},
		{"strangers", model.Message{SenderID: "u4", RecipientID: "u5"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Accepts("me", "u2", tt.msg))
		})
	}
	assert.False(t, Accepts("me", "", model.Message{SenderID: "me", RecipientID: ""}))
}
