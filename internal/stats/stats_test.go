package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	countersignal "github.com/YannKr/countersignal"
	"github.com/YannKr/countersignal/internal/db"
	"github.com/YannKr/countersignal/internal/model"
)

type fakeBacklog struct{}

func (fakeBacklog) Depth(context.Context) (int64, error) { return 3, nil }
func (fakeBacklog) DeadLetters() (int, error)            { return 1, nil }

func TestSummarise(t *testing.T) {
	l := Summarise([]float64{5, 1, 4, 2, 3})
	assert.Equal(t, 5, l.Count)
	assert.InDelta(t, 3.0, l.Mean, 1e-9)
	assert.Equal(t, 3.0, l.P50)
	assert.Equal(t, 5.0, l.P99)
	assert.Equal(t, 5.0, l.Max)

	assert.Equal(t, Latency{}, Summarise(nil))
}

func TestCollect(t *testing.T) {
	database, err := db.OpenMemory()
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, db.Migrate(database, countersignal.MigrationFS))

	ctx := context.Background()
	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	c := &model.Campaign{ID: "c1", Name: "stats", CreatedAt: created}
	require.NoError(t, db.CreateCampaign(ctx, database, c, []model.Token{
		{Value: "tok-a", CampaignID: "c1", Format: model.FormatHTML, Technique: "meta_tag",
			PayloadStyle: model.StyleObvious, PayloadType: model.TypeCallback, CreatedAt: created},
	}))
	for i, conf := range []model.Confidence{model.ConfidenceHigh, model.ConfidenceHigh, model.ConfidenceLow} {
		require.NoError(t, db.InsertHit(ctx, database, &model.Hit{
			ID: string(rune('a' + i)), Token: "tok-a", CampaignID: "c1",
			ReceivedAt: created.Add(time.Duration(i+1) * 10 * time.Second),
			Method:     "GET", Confidence: conf,
		}))
	}

	s, err := Collect(ctx, database, "", fakeBacklog{})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Campaigns)
	assert.Equal(t, 1, s.Tokens)
	assert.Equal(t, 3, s.Hits)
	assert.Equal(t, map[string]int{"HIGH": 2, "MEDIUM": 0, "LOW": 1}, s.ByConfidence)
	assert.Equal(t, 3, s.Latency.Count)
	assert.InDelta(t, 20.0, s.Latency.P50, 1e-6)
	assert.EqualValues(t, 3, s.SpoolDepth)
	assert.Equal(t, 1, s.DeadLetters)
}
