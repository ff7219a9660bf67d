package chrono

import (
	"testing"
	"time"

	"comebackwatch/internal/components/telemetry"
	"comebackwatch/lib/timezone"

	"github.com/stretchr/testify/require"
)

func TestStandardImplLocation(t *testing.T) {
	clock := NewStandardImpl()
	require.Equal(t, timezone.Location, clock.Location())
	require.Equal(t, timezone.Location, clock.Now().Location())
}

func TestFixedImplAdvance(t *testing.T) {
	start := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFixedImpl(start)
	require.True(t, clock.Now().Equal(start))

	clock.Advance(time.Hour)
	require.True(t, clock.Now().Equal(start.Add(time.Hour)))
	require.Equal(t, timezone.Location, clock.Now().Location())
}

func TestStandardCronRejectsBadSpec(t *testing.T) {
	cronner := NewStandardCron(telemetry.NewRecorder(), NewStandardImpl())
	require.Error(t, cronner.Cron("not a spec", func() {}))
	require.NoError(t, cronner.Cron("0 */6 * * *", func() {}))
}
