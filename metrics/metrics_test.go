package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordGeneration(t *testing.T) {
	okBefore := testutil.ToFloat64(GenerationsTotal.WithLabelValues(PathBlended, OutcomeOK))
	errBefore := testutil.ToFloat64(GenerationsTotal.WithLabelValues(PathBlended, OutcomeError))

	RecordGeneration(PathBlended, nil, 10*time.Millisecond)
	RecordGeneration(PathBlended, errors.New("boom"), time.Millisecond)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(GenerationsTotal.WithLabelValues(PathBlended, OutcomeOK)))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(GenerationsTotal.WithLabelValues(PathBlended, OutcomeError)))
}

func TestRecordPreferenceUpdate(t *testing.T) {
	before := testutil.ToFloat64(PreferenceUpdatesTotal.WithLabelValues(OutcomeOK))
	RecordPreferenceUpdate(nil)
	assert.Equal(t, before+1, testutil.ToFloat64(PreferenceUpdatesTotal.WithLabelValues(OutcomeOK)))
}

func TestRecordInteractionAndMatch(t *testing.T) {
	before := testutil.ToFloat64(InteractionsTotal.WithLabelValues("liked"))
	matches := testutil.ToFloat64(MatchesTotal)

	RecordInteraction("liked")
	RecordMatch()

	assert.Equal(t, before+1, testutil.ToFloat64(InteractionsTotal.WithLabelValues("liked")))
	assert.Equal(t, matches+1, testutil.ToFloat64(MatchesTotal))
}

func TestObserveStage(t *testing.T) {
	ObserveStage(StageRandom, 3)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(StageCandidates), 1)
}
