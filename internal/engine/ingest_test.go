package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/dsam/internal/config"
	"github.com/rcliao/dsam/internal/model"
)

func TestStoreConversationScenarioA(t *testing.T) {
	ctx := context.Background()
	h := newTestEngine(t, nil)

	m, err := h.StoreConversation(ctx, "The bandit tried to attack with a rusty weapon", ConversationContext{
		Participants: []string{"alice", "bob"},
		Location:     "Tavern",
		Time:         time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		Themes:       []string{},
	})
	require.NoError(t, err)

	require.Len(t, m.Associations, 5)
	got := make([]string, len(m.Associations))
	for i, a := range m.Associations {
		got[i] = string(a.Type) + ":" + a.TargetID
	}
	assert.ElementsMatch(t, []string{"character:alice", "character:bob"}, got[:2])
	assert.Equal(t, []string{"temporal:time:2024-01-01", "spatial:Tavern", "thematic:theme:combat"}, got[2:])

	want := []float64{0.9, 0.9, 0.8, 0.7, 0.6}
	for i, a := range m.Associations {
		assert.Equal(t, want[i], a.Strength)
	}

	assert.True(t, strings.HasPrefix(m.ID, IDPrefix))
	assert.Equal(t, model.TypeConversation, m.Type)
	assert.Equal(t, []string{"combat"}, m.Metadata.Context)
	assert.Equal(t, []string{
		"participant:alice", "participant:bob", "location:Tavern",
		"tone:neutral", "importance:moderate", "time:morning",
	}, m.Metadata.Tags)
	assert.Equal(t, 5, m.CompressionLevel)
	assert.Equal(t, 0.7, m.RelevanceScore)
	assert.Equal(t, []string{"dictionary"}, h.compressor.methods, "chosen method is passed to Compress")

	for _, target := range []string{"alice", "bob", "Tavern", "time:2024-01-01", "theme:combat"} {
		assert.Equal(t, []string{m.ID}, h.Lookup(target), target)
	}
	assertIndexConsistent(t, h.Engine)
}

func TestStoreConversationTruncatesAssociations(t *testing.T) {
	h := newTestEngine(t, func(c *config.Config) { c.MaxAssociations = 3 })

	m, err := h.StoreConversation(context.Background(), "spell and ritual under the arcane moon", ConversationContext{
		Participants: []string{"a", "b", "c", "d"},
		Location:     "Tower",
	})
	require.NoError(t, err)

	require.Len(t, m.Associations, 3)
	for i := 1; i < len(m.Associations); i++ {
		assert.GreaterOrEqual(t, m.Associations[i-1].Strength, m.Associations[i].Strength)
	}
	for _, a := range m.Associations {
		assert.Equal(t, model.AssocCharacter, a.Type)
	}
	assert.Contains(t, m.Metadata.Context, "magic", "themes are kept even when their association is cut")
	assert.Empty(t, h.Lookup("theme:magic"))
	assertIndexConsistent(t, h.Engine)
}

func TestStoreConversationCompressionRatio(t *testing.T) {
	h := newTestEngine(t, nil)

	m, err := h.StoreConversation(context.Background(), map[string]any{
		"participants": []string{"alice"},
		"text":         strings.Repeat("A long speech about the harvest. ", 20),
	}, ConversationContext{Participants: []string{"alice"}})
	require.NoError(t, err)

	md := m.Metadata
	require.Positive(t, md.OriginalTokens)
	assert.InDelta(t, float64(md.CompressedTokens)/float64(md.OriginalTokens), md.CompressionRatio, 1e-9)
}

func TestStoreConversationDefaultsTime(t *testing.T) {
	h := newTestEngine(t, nil)
	h.clock.Advance(10 * time.Hour) // 20:00

	m, err := h.StoreConversation(context.Background(), "quiet night", ConversationContext{})
	require.NoError(t, err)
	assert.True(t, m.Timestamp.Equal(epoch.Add(10*time.Hour)))
	assert.Contains(t, m.Metadata.Tags, "time:evening")
	assert.Equal(t, "time:2024-01-01", m.Associations[0].TargetID)
}

func TestStoreConversationCollaboratorFailure(t *testing.T) {
	boom := errors.New("boom")
	cases := map[string]func(*Engine){
		"tokens":   func(e *Engine) { e.tokens = fakeTokens{err: boom} },
		"choose":   func(e *Engine) { e.compressor = &fakeCompressor{chooseErr: boom} },
		"compress": func(e *Engine) { e.compressor = &fakeCompressor{compressErr: boom} },
		"score":    func(e *Engine) { e.scorer = fakeScorer{err: boom} },
	}
	for name, breakIt := range cases {
		t.Run(name, func(t *testing.T) {
			h := newTestEngine(t, nil)
			breakIt(h.Engine)

			_, err := h.StoreConversation(context.Background(), "attack weapon", ConversationContext{Participants: []string{"alice"}})
			require.ErrorIs(t, err, boom)
			assert.Zero(t, h.Stats().Memories)
			assert.Zero(t, h.Stats().IndexKeys)
		})
	}
}

func TestStoreConversationDisabled(t *testing.T) {
	h := newTestEngine(t, func(c *config.Config) { c.Enabled = false })
	_, err := h.StoreConversation(context.Background(), "hi", ConversationContext{})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestStoreConversationClampsScore(t *testing.T) {
	h := newTestEngine(t, nil)
	h.scorer = fakeScorer{score: 3}
	m, err := h.StoreConversation(context.Background(), "hi", ConversationContext{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.RelevanceScore)
}

func TestDeriveThemes(t *testing.T) {
	assert.Empty(t, deriveThemes(nil, "they attack at dawn"), "one keyword is not enough")
	assert.Equal(t, []string{"combat"}, deriveThemes(nil, "They ATTACK with a WEAPON"))
	assert.Equal(t, []string{"heist", "combat", "magic"},
		deriveThemes([]string{"heist", "combat", " "}, "sword fight; a wizard casts a spell"))
	assert.Equal(t, []string{"combat"}, deriveThemes([]string{"Combat", " COMBAT "}, "attack with a weapon"))
}

func TestStoreConversationThemesIgnoreCase(t *testing.T) {
	h := newTestEngine(t, nil)
	m, err := h.StoreConversation(context.Background(), "attack with a weapon", ConversationContext{Themes: []string{"Combat"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"combat"}, m.Metadata.Context)
	var thematic []string
	for _, a := range m.Associations {
		if a.Type == model.AssocThematic {
			thematic = append(thematic, a.TargetID)
		}
	}
	assert.Equal(t, []string{"theme:combat"}, thematic)

	res, err := h.QueryMemories(context.Background(), Query{Context: QueryContext{Themes: []string{"COMBAT"}}})
	require.NoError(t, err)
	require.Len(t, res.Memories, 1)
	assert.InDelta(t, 0.2, res.Memories[0].QueryRelevance, 1e-9)
}

func TestTimeOfDay(t *testing.T) {
	cases := map[int]string{0: "dawn", 5: "dawn", 6: "morning", 11: "morning", 12: "afternoon", 17: "afternoon", 18: "evening", 23: "evening"}
	for hour, want := range cases {
		at := time.Date(2024, 1, 1, hour, 30, 0, 0, time.UTC)
		assert.Equal(t, want, timeOfDay(at), "hour %d", hour)
	}
}

func TestDeriveImportance(t *testing.T) {
	cases := []struct {
		name   string
		cc     ConversationContext
		themes []string
		want   model.Importance
	}{
		{"nothing", ConversationContext{}, nil, model.ImportanceMinor},
		{"romance only", ConversationContext{}, []string{"romance"}, model.ImportanceMinor},
		{"negative romance", ConversationContext{EmotionalTone: model.ToneNegative}, []string{"romance"}, model.ImportanceModerate},
		{"player", ConversationContext{Participants: []string{"player"}}, nil, model.ImportanceModerate},
		{"player tense", ConversationContext{Participants: []string{"player"}, EmotionalTone: model.ToneTense}, nil, model.ImportanceMajor},
		{"royal combat politics", ConversationContext{Participants: []string{"King_Aldric"}}, []string{"combat", "politics"}, model.ImportanceCritical},
		{"player queen tense", ConversationContext{Participants: []string{"player", "queen-mab"}, EmotionalTone: model.ToneTense}, nil, model.ImportanceCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, deriveImportance(tc.cc, tc.themes))
		})
	}
}

func TestSerialize(t *testing.T) {
	raw, err := serialize([]byte(`{"a":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(raw))

	raw, err = serialize([]byte("not json"))
	require.NoError(t, err)
	assert.Equal(t, `"not json"`, string(raw))

	_, err = serialize(math.Inf(1))
	assert.Error(t, err)
}
